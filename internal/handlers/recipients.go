package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wishlane/backend/internal/middleware"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/internal/services"
	"github.com/wishlane/backend/pkg/logger"
	"github.com/wishlane/backend/pkg/utils"
	"gorm.io/gorm"
)

// RecipientHandler manages the sharing edges between items and groups.
// Tagging requires the owner to belong to the group; a group whose only
// member is the item's owner is rejected because nobody could ever see
// the item through it.
type RecipientHandler struct {
	DB       *gorm.DB
	Cascade  *services.CascadeService
	Notifier *services.NotificationService
}

func NewRecipientHandler(db *gorm.DB, cascade *services.CascadeService, notifier *services.NotificationService) *RecipientHandler {
	return &RecipientHandler{DB: db, Cascade: cascade, Notifier: notifier}
}

type tagRequest struct {
	GroupID string `json:"groupID"`
}

func (h *RecipientHandler) Add(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	itemID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid item id")
	}

	var req tagRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	groupID, err := parseUUID(req.GroupID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var item models.Item
	if err := h.DB.First(&item, "id = ?", itemID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "item not found")
	}
	if item.OwnerID != user.ID {
		return utils.Error(c, fiber.StatusNotFound, "item not found")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	var ownMembership models.GroupMembership
	if err := h.DB.First(&ownMembership, "group_id = ? AND user_id = ?", groupID, user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	var otherMembers int64
	err = h.DB.Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id != ?", groupID, user.ID).
		Count(&otherMembers).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to share item")
	}
	if otherMembers == 0 {
		return utils.Error(c, fiber.StatusConflict, "the group has no members who could see this item")
	}

	var existing models.ItemRecipient
	if err := h.DB.First(&existing, "item_id = ? AND group_id = ?", itemID, groupID).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "item is already shared with this group")
	}

	tag := models.ItemRecipient{ItemID: itemID, GroupID: groupID}
	if err := h.DB.Create(&tag).Error; err != nil {
		logger.Error("item_share_failed", err, map[string]interface{}{
			"item_id":  itemID.String(),
			"group_id": groupID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to share item")
	}

	// Tell the group members, never the owner.
	var members []models.GroupMembership
	if err := h.DB.Where("group_id = ? AND user_id != ?", groupID, user.ID).Find(&members).Error; err == nil {
		memberIDs := make([]uuid.UUID, len(members))
		for i, m := range members {
			memberIDs[i] = m.UserID
		}
		h.Notifier.NotifyAllExcept(memberIDs, nil, models.NotificationItemShared,
			"New item shared",
			fmt.Sprintf("\"%s\" was shared with the group \"%s\".", item.Name, group.Name),
			map[string]interface{}{
				"itemID":  item.ID.String(),
				"groupID": group.ID.String(),
			})
	}

	logger.InfoWithUser(user.ID.String(), "item_shared", map[string]interface{}{
		"item_id":  itemID.String(),
		"group_id": groupID.String(),
	})
	return utils.Success(c, fiber.StatusCreated, tag)
}

// Remove un-shares the item from one group. Claims of members who lose
// access through the removed group are released by the cascade.
func (h *RecipientHandler) Remove(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	itemID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid item id")
	}
	groupID, err := parseUUID(c.Params("groupId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var item models.Item
	if err := h.DB.First(&item, "id = ?", itemID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "item not found")
	}
	if item.OwnerID != user.ID {
		return utils.Error(c, fiber.StatusNotFound, "item not found")
	}

	var tag models.ItemRecipient
	if err := h.DB.First(&tag, "item_id = ? AND group_id = ?", itemID, groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "item is not shared with this group")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	if err := h.Cascade.UnshareItem(&item, &group); err != nil {
		logger.Error("item_unshare_failed", err, map[string]interface{}{
			"item_id":  itemID.String(),
			"group_id": groupID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to unshare item")
	}

	logger.InfoWithUser(user.ID.String(), "item_unshared", map[string]interface{}{
		"item_id":  itemID.String(),
		"group_id": groupID.String(),
	})
	return c.SendStatus(fiber.StatusNoContent)
}
