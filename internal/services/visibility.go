package services

import (
	"github.com/google/uuid"
	"github.com/wishlane/backend/internal/models"
	"gorm.io/gorm"
)

// VisibilityService is the single authority for who may see what. The
// owner blind spot (an item's owner never observes claim data on their
// own items, through any query path) lives here and nowhere else.
type VisibilityService struct {
	DB *gorm.DB
}

func NewVisibilityService(db *gorm.DB) *VisibilityService {
	return &VisibilityService{DB: db}
}

// IsRecipient reports whether userID can see itemID through a group the
// item is tagged to. The item's owner is not a recipient of their own
// item even when they belong to a tagged group.
func (v *VisibilityService) IsRecipient(userID uuid.UUID, item *models.Item) (bool, error) {
	if userID == item.OwnerID {
		return false, nil
	}

	var count int64
	err := v.DB.Model(&models.ItemRecipient{}).
		Joins("JOIN group_memberships gm ON gm.group_id = item_recipients.group_id").
		Where("item_recipients.item_id = ? AND gm.user_id = ?", item.ID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CanViewClaim is the shared predicate invoked from every read and write
// path that touches claims: never the item's owner, always the claimer,
// and otherwise any legitimate recipient of the item.
func (v *VisibilityService) CanViewClaim(claim *models.Claim, item *models.Item, viewerID uuid.UUID) (bool, error) {
	if viewerID == item.OwnerID {
		return false, nil
	}
	if viewerID == claim.UserID {
		return true, nil
	}
	return v.IsRecipient(viewerID, item)
}

// RecipientIDs returns the distinct users who can see the item (members
// of every tagged group), excluding the owner and any ids in exclude.
func (v *VisibilityService) RecipientIDs(item *models.Item, exclude ...uuid.UUID) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{item.OwnerID: true}
	for _, id := range exclude {
		seen[id] = true
	}

	var memberships []models.GroupMembership
	err := v.DB.Model(&models.GroupMembership{}).
		Joins("JOIN item_recipients ir ON ir.group_id = group_memberships.group_id").
		Where("ir.item_id = ?", item.ID).
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}

	var result []uuid.UUID
	for _, m := range memberships {
		if seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		result = append(result, m.UserID)
	}
	return result, nil
}
