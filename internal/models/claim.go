package models

import (
	"time"

	"github.com/google/uuid"
)

// Claim reserves an item (or part of its price) for the claiming user.
// AmountCents nil means a full claim, which excludes every other claim on
// the item. The one-full-claim-per-item rule is enforced by a partial
// unique index created in the database package.
type Claim struct {
	BaseModel
	ItemID      uuid.UUID  `json:"itemID" gorm:"type:uuid;not null;index"`
	UserID      uuid.UUID  `json:"userID" gorm:"type:uuid;not null;index"`
	AmountCents *int64     `json:"amountCents,omitempty"`
	ExpiresAt   time.Time  `json:"expiresAt" gorm:"not null;index"`
	PurchasedAt *time.Time `json:"purchasedAt,omitempty"`

	Item Item `json:"item,omitempty" gorm:"foreignKey:ItemID"`
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (Claim) TableName() string {
	return "claims"
}

// IsFull reports whether the claim reserves the entire item.
func (c *Claim) IsFull() bool {
	return c.AmountCents == nil
}
