package models

import (
	"time"

	"github.com/google/uuid"
)

type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusDeclined InvitationStatus = "declined"
	InvitationStatusExpired  InvitationStatus = "expired"
)

type Invitation struct {
	BaseModel
	GroupID      uuid.UUID           `json:"groupID" gorm:"type:uuid;not null;index"`
	InviterID    uuid.UUID           `json:"inviterID" gorm:"type:uuid;not null"`
	InviteeEmail string              `json:"inviteeEmail" gorm:"type:varchar(255);not null;index"`
	Role         GroupMembershipRole `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	Token        string              `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	Status       InvitationStatus    `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	ExpiresAt    time.Time           `json:"expiresAt" gorm:"not null"`

	Group   Group `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	Inviter User  `json:"inviter,omitempty" gorm:"foreignKey:InviterID"`
}

func (Invitation) TableName() string {
	return "invitations"
}

// IsPending reports whether the invitation can still be acted on.
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationStatusPending
}
