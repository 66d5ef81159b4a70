package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wishlane/backend/internal/middleware"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/internal/services"
	"github.com/wishlane/backend/pkg/logger"
	"github.com/wishlane/backend/pkg/utils"
	"gorm.io/gorm"
)

// GroupHandler covers the group lifecycle and membership management.
// Groups a user does not belong to are reported as not found, never as
// forbidden, so their existence cannot be probed.
type GroupHandler struct {
	DB       *gorm.DB
	Cascade  *services.CascadeService
	Notifier *services.NotificationService
}

func NewGroupHandler(db *gorm.DB, cascade *services.CascadeService, notifier *services.NotificationService) *GroupHandler {
	return &GroupHandler{DB: db, Cascade: cascade, Notifier: notifier}
}

// membershipOf loads the caller's membership in the group, or nil.
func (h *GroupHandler) membershipOf(groupID, userID uuid.UUID) (*models.GroupMembership, error) {
	var membership models.GroupMembership
	err := h.DB.First(&membership, "group_id = ? AND user_id = ?", groupID, userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}

type groupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (h *GroupHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req groupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "group name is required")
	}

	group := models.Group{
		Name:        req.Name,
		Description: req.Description,
		CreatedByID: user.ID,
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		membership := models.GroupMembership{
			UserID:  user.ID,
			GroupID: group.ID,
			Role:    models.GroupRoleOwner,
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		logger.Error("group_create_failed", err, map[string]interface{}{"user_id": user.ID.String()})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create group")
	}

	logger.InfoWithUser(user.ID.String(), "group_created", map[string]interface{}{
		"group_id": group.ID.String(),
	})
	return utils.Success(c, fiber.StatusCreated, group)
}

func (h *GroupHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var groups []models.Group
	err := h.DB.
		Joins("JOIN group_memberships gm ON gm.group_id = groups.id").
		Where("gm.user_id = ?", user.ID).
		Preload("Memberships.User").
		Find(&groups).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list groups")
	}

	return utils.Success(c, fiber.StatusOK, groups)
}

func (h *GroupHandler) Get(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	membership, err := h.membershipOf(groupID, user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load group")
	}
	if membership == nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	var group models.Group
	if err := h.DB.Preload("Memberships.User").First(&group, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	return utils.Success(c, fiber.StatusOK, group)
}

func (h *GroupHandler) Update(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	membership, err := h.membershipOf(groupID, user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load group")
	}
	if membership == nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}
	if membership.Role != models.GroupRoleOwner && membership.Role != models.GroupRoleAdmin {
		return utils.Error(c, fiber.StatusForbidden, "only owners and admins can update the group")
	}

	var req groupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "group name is required")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	group.Name = req.Name
	group.Description = req.Description
	if err := h.DB.Model(&models.Group{}).Where("id = ?", groupID).Updates(map[string]interface{}{
		"name":        group.Name,
		"description": group.Description,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update group")
	}

	return utils.Success(c, fiber.StatusOK, group)
}

// Delete removes the group and cascades through every claim the deletion
// orphans. Owner only.
func (h *GroupHandler) Delete(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	membership, err := h.membershipOf(groupID, user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load group")
	}
	if membership == nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}
	if membership.Role != models.GroupRoleOwner {
		return utils.Error(c, fiber.StatusForbidden, "only the owner can delete the group")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	if err := h.Cascade.DeleteGroup(&group, user.ID); err != nil {
		logger.Error("group_delete_failed", err, map[string]interface{}{"group_id": groupID.String()})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to delete group")
	}

	logger.InfoWithUser(user.ID.String(), "group_deleted", map[string]interface{}{
		"group_id": groupID.String(),
	})
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveMember handles both leaving (member removes self) and forced
// removal. Role rules: the owner cannot be removed, admins may remove
// members only, the owner may remove anyone but themselves.
func (h *GroupHandler) RemoveMember(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	targetID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	actor, err := h.membershipOf(groupID, user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load group")
	}
	if actor == nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	target, err := h.membershipOf(groupID, targetID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load group")
	}
	if target == nil {
		return utils.Error(c, fiber.StatusNotFound, "member not found")
	}

	selfLeave := targetID == user.ID
	if target.Role == models.GroupRoleOwner {
		return utils.Error(c, fiber.StatusForbidden, "the group owner cannot be removed")
	}
	if !selfLeave {
		switch actor.Role {
		case models.GroupRoleOwner:
			// May remove anyone but themselves; the owner branch above
			// already excluded the owner as target.
		case models.GroupRoleAdmin:
			if target.Role != models.GroupRoleMember {
				return utils.Error(c, fiber.StatusForbidden, "admins can only remove members")
			}
		default:
			return utils.Error(c, fiber.StatusForbidden, "insufficient permissions to remove members")
		}
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	if err := h.Cascade.RemoveMember(&group, targetID, selfLeave); err != nil {
		logger.Error("member_remove_failed", err, map[string]interface{}{
			"group_id": groupID.String(),
			"user_id":  targetID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to remove member")
	}

	logger.InfoWithUser(user.ID.String(), "group_member_removed", map[string]interface{}{
		"group_id":   groupID.String(),
		"member_id":  targetID.String(),
		"self_leave": selfLeave,
	})
	return c.SendStatus(fiber.StatusNoContent)
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateMemberRole promotes or demotes between admin and member. The
// owner role is fixed at creation and never reassigned here.
func (h *GroupHandler) UpdateMemberRole(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	targetID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req updateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if !isValidMemberRole(req.Role) {
		return utils.Error(c, fiber.StatusBadRequest, "role must be admin or member")
	}

	actor, err := h.membershipOf(groupID, user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load group")
	}
	if actor == nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}
	if actor.Role != models.GroupRoleOwner {
		return utils.Error(c, fiber.StatusForbidden, "only the owner can change roles")
	}

	target, err := h.membershipOf(groupID, targetID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load group")
	}
	if target == nil {
		return utils.Error(c, fiber.StatusNotFound, "member not found")
	}
	if target.Role == models.GroupRoleOwner {
		return utils.Error(c, fiber.StatusForbidden, "the owner role cannot be changed")
	}

	newRole := models.GroupMembershipRole(strings.ToLower(strings.TrimSpace(req.Role)))
	if err := h.DB.Model(&models.GroupMembership{}).Where("id = ?", target.ID).
		Update("role", newRole).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update role")
	}
	target.Role = newRole

	return utils.Success(c, fiber.StatusOK, target)
}
