package models

import "github.com/google/uuid"

// ItemRecipient is the sharing edge between an item and a group. Its
// presence makes the item visible to every member of the group, except
// that the item's owner never sees claim data through it.
type ItemRecipient struct {
	BaseModel
	ItemID  uuid.UUID `json:"itemID" gorm:"type:uuid;not null;index;uniqueIndex:idx_item_group"`
	GroupID uuid.UUID `json:"groupID" gorm:"type:uuid;not null;index;uniqueIndex:idx_item_group"`
	Item    Item      `json:"item,omitempty" gorm:"foreignKey:ItemID"`
	Group   Group     `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}

func (ItemRecipient) TableName() string {
	return "item_recipients"
}
