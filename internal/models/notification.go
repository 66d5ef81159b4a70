package models

import "github.com/google/uuid"

type NotificationType string

const (
	NotificationClaimCreated   NotificationType = "claim.created"
	NotificationClaimReleased  NotificationType = "claim.released"
	NotificationClaimPurchased NotificationType = "claim.purchased"
	NotificationClaimExpired   NotificationType = "claim.expired"
	NotificationItemShared     NotificationType = "items.shared"
	NotificationItemsUnshared  NotificationType = "items.unshared"
	NotificationInviteReceived NotificationType = "invitation.received"
	NotificationInviteAccepted NotificationType = "invitation.accepted"
	NotificationInviteDeclined NotificationType = "invitation.declined"
	NotificationMemberJoined   NotificationType = "group.member_joined"
)

// Notification is append-only except for the read flag, which only the
// owning user may mutate.
type Notification struct {
	BaseModel
	UserID uuid.UUID              `json:"userID" gorm:"type:uuid;not null;index"`
	Type   NotificationType       `json:"type" gorm:"type:varchar(50);not null"`
	Title  string                 `json:"title" gorm:"type:varchar(255);not null"`
	Body   string                 `json:"body" gorm:"type:text;not null"`
	Data   map[string]interface{} `json:"data,omitempty" gorm:"type:jsonb;serializer:json"`
	IsRead bool                   `json:"isRead" gorm:"not null;default:false;index"`
}

func (Notification) TableName() string {
	return "notifications"
}
