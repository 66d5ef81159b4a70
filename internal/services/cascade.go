package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/wishlane/backend/internal/models"
	"gorm.io/gorm"
)

// CascadeService reacts to structural changes (group deletion, membership
// removal and addition, un-sharing) by revoking claims that are no longer
// justified and notifying the affected claimers. Claims to release are
// snapshotted before the structural rows are deleted, because the
// snapshot is what tells us who to notify; the structural deletion is the
// authoritative effect and notification dispatch is best-effort.
type CascadeService struct {
	DB       *gorm.DB
	Notifier *NotificationService
}

func NewCascadeService(db *gorm.DB, notifier *NotificationService) *CascadeService {
	return &CascadeService{DB: db, Notifier: notifier}
}

// DeleteGroup removes the group with its memberships, invitations and
// recipient tags, releasing every claim that the deletion orphans. The
// acting owner gets no notifications.
func (s *CascadeService) DeleteGroup(group *models.Group, actorID uuid.UUID) error {
	var tags []models.ItemRecipient
	if err := s.DB.Where("group_id = ?", group.ID).Find(&tags).Error; err != nil {
		return err
	}
	itemIDs := make([]uuid.UUID, len(tags))
	for i, tag := range tags {
		itemIDs[i] = tag.ItemID
	}

	candidates, err := s.claimsOnItems(itemIDs)
	if err != nil {
		return err
	}

	var released []models.Claim
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.Invitation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.ItemRecipient{}).Error; err != nil {
			return err
		}
		released, err = releaseOrphanedClaims(tx, candidates)
		if err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, "id = ?", group.ID).Error
	})
	if err != nil {
		return err
	}

	s.notifyReleased(released, actorID,
		fmt.Sprintf("the group \"%s\" was deleted", group.Name))
	return nil
}

// RemoveMember deletes the membership and releases the removed user's
// claims on items they can no longer see. Self-leave and forced removal
// share the cascade; only the notification wording differs.
func (s *CascadeService) RemoveMember(group *models.Group, memberID uuid.UUID, selfLeave bool) error {
	var candidates []models.Claim
	err := s.DB.Preload("Item").
		Joins("JOIN item_recipients ir ON ir.item_id = claims.item_id").
		Where("ir.group_id = ? AND claims.user_id = ?", group.ID, memberID).
		Find(&candidates).Error
	if err != nil {
		return err
	}

	var released []models.Claim
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ? AND user_id = ?", group.ID, memberID).
			Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		released, err = releaseOrphanedClaims(tx, candidates)
		return err
	})
	if err != nil {
		return err
	}

	reason := fmt.Sprintf("you were removed from the group \"%s\"", group.Name)
	if selfLeave {
		reason = fmt.Sprintf("you left the group \"%s\"", group.Name)
	}
	// The removed user is the one to notify here, never skipped.
	s.notifyReleased(released, uuid.Nil, reason)
	return nil
}

// MemberAdded runs when a user joins a group. Items the new member owns
// that are already shared via that group are immediately un-shared and
// every claim on them deleted, whoever made it, so the owner can never
// observe claims that predate their joining.
func (s *CascadeService) MemberAdded(group *models.Group, newMemberID uuid.UUID) error {
	var tags []models.ItemRecipient
	err := s.DB.
		Joins("JOIN items ON items.id = item_recipients.item_id").
		Where("item_recipients.group_id = ? AND items.owner_id = ?", group.ID, newMemberID).
		Find(&tags).Error
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}

	itemIDs := make([]uuid.UUID, len(tags))
	for i, tag := range tags {
		itemIDs[i] = tag.ItemID
	}

	doomed, err := s.claimsOnItems(itemIDs)
	if err != nil {
		return err
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ? AND item_id IN ?", group.ID, itemIDs).
			Delete(&models.ItemRecipient{}).Error; err != nil {
			return err
		}
		return tx.Where("item_id IN ?", itemIDs).Delete(&models.Claim{}).Error
	})
	if err != nil {
		return err
	}

	for i := range doomed {
		claim := doomed[i]
		s.Notifier.Notify(claim.UserID, models.NotificationItemsUnshared,
			"Item unshared",
			fmt.Sprintf("\"%s\" is no longer shared with \"%s\" and your claim was released.", claim.Item.Name, group.Name),
			map[string]interface{}{
				"itemID":  claim.ItemID.String(),
				"groupID": group.ID.String(),
			})
	}
	return nil
}

// UnshareItem removes one recipient tag and releases the claims of group
// members who lose access to the item through it.
func (s *CascadeService) UnshareItem(item *models.Item, group *models.Group) error {
	var candidates []models.Claim
	err := s.DB.Preload("Item").
		Joins("JOIN group_memberships gm ON gm.user_id = claims.user_id").
		Where("claims.item_id = ? AND gm.group_id = ?", item.ID, group.ID).
		Find(&candidates).Error
	if err != nil {
		return err
	}

	var released []models.Claim
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ? AND group_id = ?", item.ID, group.ID).
			Delete(&models.ItemRecipient{}).Error; err != nil {
			return err
		}
		released, err = releaseOrphanedClaims(tx, candidates)
		return err
	})
	if err != nil {
		return err
	}

	s.notifyReleased(released, uuid.Nil,
		fmt.Sprintf("\"%s\" is no longer shared with you", item.Name))
	return nil
}

// DeleteItem removes an item with its tags and claims, notifying every
// claimer that the claim is gone.
func (s *CascadeService) DeleteItem(item *models.Item, actorID uuid.UUID) error {
	doomed, err := s.claimsOnItems([]uuid.UUID{item.ID})
	if err != nil {
		return err
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ?", item.ID).Delete(&models.ItemRecipient{}).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", item.ID).Delete(&models.Claim{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Item{}, "id = ?", item.ID).Error
	})
	if err != nil {
		return err
	}

	s.notifyReleased(doomed, actorID,
		fmt.Sprintf("\"%s\" was removed by its owner", item.Name))
	return nil
}

func (s *CascadeService) claimsOnItems(itemIDs []uuid.UUID) ([]models.Claim, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	var claims []models.Claim
	err := s.DB.Preload("Item").Where("item_id IN ?", itemIDs).Find(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// releaseOrphanedClaims deletes, within the caller's transaction, every
// candidate claim whose claimer is no longer a legitimate recipient of
// the item now that the structural rows are gone. Claims still justified
// through another tagged group survive.
func releaseOrphanedClaims(tx *gorm.DB, candidates []models.Claim) ([]models.Claim, error) {
	vis := &VisibilityService{DB: tx}
	var released []models.Claim
	for i := range candidates {
		claim := candidates[i]
		stillRecipient, err := vis.IsRecipient(claim.UserID, &claim.Item)
		if err != nil {
			return nil, err
		}
		if stillRecipient {
			continue
		}
		if err := tx.Delete(&models.Claim{}, "id = ?", claim.ID).Error; err != nil {
			return nil, err
		}
		released = append(released, claim)
	}
	return released, nil
}

func (s *CascadeService) notifyReleased(released []models.Claim, skip uuid.UUID, reason string) {
	for i := range released {
		claim := released[i]
		if claim.UserID == skip {
			continue
		}
		s.Notifier.Notify(claim.UserID, models.NotificationClaimReleased,
			"Claim released",
			fmt.Sprintf("Your claim on \"%s\" was released because %s.", claim.Item.Name, reason),
			map[string]interface{}{
				"itemID": claim.ItemID.String(),
			})
	}
}
