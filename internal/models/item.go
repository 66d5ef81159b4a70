package models

import "github.com/google/uuid"

type ItemStatus string

const (
	ItemStatusActive   ItemStatus = "active"
	ItemStatusReceived ItemStatus = "received"
	ItemStatusArchived ItemStatus = "archived"
)

type Item struct {
	BaseModel
	OwnerID    uuid.UUID  `json:"ownerID" gorm:"type:uuid;not null;index"`
	Name       string     `json:"name" gorm:"type:varchar(255);not null"`
	URL        *string    `json:"url,omitempty" gorm:"type:text"`
	PriceCents *int64     `json:"priceCents,omitempty"`
	Notes      *string    `json:"notes,omitempty" gorm:"type:text"`
	ImagePath  *string    `json:"imagePath,omitempty" gorm:"type:text"`
	Priority   int        `json:"priority" gorm:"not null;default:3"`
	Status     ItemStatus `json:"status" gorm:"type:varchar(20);not null;default:'active';index"`

	Owner      User            `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
	Recipients []ItemRecipient `json:"recipients,omitempty" gorm:"foreignKey:ItemID"`
	Claims     []Claim         `json:"-" gorm:"foreignKey:ItemID"`

	// Populated on read paths, never persisted.
	ClaimableAmount *int64  `json:"claimableAmount,omitempty" gorm:"-"`
	VisibleClaims   []Claim `json:"claims,omitempty" gorm:"-"`
}

func (Item) TableName() string {
	return "items"
}
