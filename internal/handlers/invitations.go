package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wishlane/backend/internal/config"
	"github.com/wishlane/backend/internal/middleware"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/internal/services"
	"github.com/wishlane/backend/pkg/logger"
	"github.com/wishlane/backend/pkg/utils"
	"gorm.io/gorm"
)

// InvitationHandler runs the invite flow: create, list, revoke, and the
// invitee-side accept/decline. Accepting triggers the member-added
// cascade, which un-shares any item the new member owns that was already
// shared through the group.
type InvitationHandler struct {
	DB       *gorm.DB
	Cascade  *services.CascadeService
	Notifier *services.NotificationService
	Mailer   services.Mailer
	Policy   config.InviteConfig
}

func NewInvitationHandler(db *gorm.DB, cascade *services.CascadeService, notifier *services.NotificationService, mailer services.Mailer, policy config.InviteConfig) *InvitationHandler {
	return &InvitationHandler{DB: db, Cascade: cascade, Notifier: notifier, Mailer: mailer, Policy: policy}
}

type createInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Create issues an invitation into a group. Owners may invite with any
// role; admins may only invite plain members.
func (h *InvitationHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var req createInvitationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return utils.Error(c, fiber.StatusBadRequest, "valid email is required")
	}
	if req.Role == "" {
		req.Role = string(models.GroupRoleMember)
	}
	if !isValidMemberRole(req.Role) {
		return utils.Error(c, fiber.StatusBadRequest, "role must be admin or member")
	}
	role := models.GroupMembershipRole(strings.ToLower(strings.TrimSpace(req.Role)))

	var actor models.GroupMembership
	if err := h.DB.First(&actor, "group_id = ? AND user_id = ?", groupID, user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}
	switch actor.Role {
	case models.GroupRoleOwner:
	case models.GroupRoleAdmin:
		if role != models.GroupRoleMember {
			return utils.Error(c, fiber.StatusForbidden, "admins can only invite members")
		}
	default:
		return utils.Error(c, fiber.StatusForbidden, "only owners and admins can invite")
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	// Reject if the invitee already belongs to the group.
	var invitee models.User
	inviteeExists := h.DB.First(&invitee, "email = ?", req.Email).Error == nil
	if inviteeExists {
		var existing models.GroupMembership
		if err := h.DB.First(&existing, "group_id = ? AND user_id = ?", groupID, invitee.ID).Error; err == nil {
			return utils.Error(c, fiber.StatusConflict, "user is already a member of this group")
		}
	}

	var pending models.Invitation
	err = h.DB.First(&pending, "group_id = ? AND invitee_email = ? AND status = ?",
		groupID, req.Email, models.InvitationStatusPending).Error
	if err == nil {
		return utils.Error(c, fiber.StatusConflict, "a pending invitation for this email already exists")
	}

	token, err := utils.GenerateInviteToken()
	if err != nil {
		logger.Error("invite_token_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create invitation")
	}

	invitation := models.Invitation{
		GroupID:      groupID,
		InviterID:    user.ID,
		InviteeEmail: req.Email,
		Role:         role,
		Token:        token,
		Status:       models.InvitationStatusPending,
		ExpiresAt:    time.Now().UTC().AddDate(0, 0, h.Policy.ExpirationDays),
	}
	if err := h.DB.Create(&invitation).Error; err != nil {
		logger.Error("invite_create_failed", err, map[string]interface{}{"group_id": groupID.String()})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create invitation")
	}

	if inviteeExists {
		h.Notifier.Notify(invitee.ID, models.NotificationInviteReceived,
			"Group invitation",
			fmt.Sprintf("%s invited you to join \"%s\".", user.DisplayName, group.Name),
			map[string]interface{}{
				"invitationID": invitation.ID.String(),
				"groupID":      group.ID.String(),
			})
	}

	go func(email, inviter, groupName, token string) {
		if err := h.Mailer.SendInvitation(email, inviter, groupName, token); err != nil {
			logger.Error("invite_email_failed", err, map[string]interface{}{"group": groupName})
		}
	}(req.Email, user.DisplayName, group.Name, token)

	logger.InfoWithUser(user.ID.String(), "invitation_created", map[string]interface{}{
		"group_id":      groupID.String(),
		"invitation_id": invitation.ID.String(),
	})
	return utils.Success(c, fiber.StatusCreated, invitation)
}

// ListForGroup shows a group's invitations to its owners and admins.
func (h *InvitationHandler) ListForGroup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var actor models.GroupMembership
	if err := h.DB.First(&actor, "group_id = ? AND user_id = ?", groupID, user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}
	if actor.Role != models.GroupRoleOwner && actor.Role != models.GroupRoleAdmin {
		return utils.Error(c, fiber.StatusForbidden, "only owners and admins can view invitations")
	}

	var invitations []models.Invitation
	err = h.DB.Preload("Inviter").
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Find(&invitations).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list invitations")
	}

	return utils.Success(c, fiber.StatusOK, invitations)
}

// ListMine shows the caller's own pending invitations, matched by email.
func (h *InvitationHandler) ListMine(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var invitations []models.Invitation
	err := h.DB.Preload("Group").Preload("Inviter").
		Where("invitee_email = ? AND status = ?", user.Email, models.InvitationStatusPending).
		Order("created_at DESC").
		Find(&invitations).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list invitations")
	}

	return utils.Success(c, fiber.StatusOK, invitations)
}

// Revoke withdraws a pending invitation. Owners and admins only.
func (h *InvitationHandler) Revoke(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	invitationID, err := parseUUID(c.Params("invitationId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid invitation id")
	}

	var invitation models.Invitation
	if err := h.DB.First(&invitation, "id = ?", invitationID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "invitation not found")
	}

	var actor models.GroupMembership
	if err := h.DB.First(&actor, "group_id = ? AND user_id = ?", invitation.GroupID, user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "invitation not found")
	}
	if actor.Role != models.GroupRoleOwner && actor.Role != models.GroupRoleAdmin {
		return utils.Error(c, fiber.StatusForbidden, "only owners and admins can revoke invitations")
	}
	if !invitation.IsPending() {
		return utils.Error(c, fiber.StatusConflict, "invitation is no longer pending")
	}

	if err := h.DB.Delete(&models.Invitation{}, "id = ?", invitation.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to revoke invitation")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// loadByToken resolves an invitation from its token and enforces the
// shared accept/decline preconditions: pending status, matching email,
// and not past expiry. Expired pending invitations flip to expired.
// On failure the error response has already been written and the
// invitation is nil; callers check the invitation, not the error.
func (h *InvitationHandler) loadByToken(c *fiber.Ctx, user *models.User) (*models.Invitation, error) {
	token := strings.TrimSpace(c.Params("token"))
	if token == "" {
		return nil, utils.Error(c, fiber.StatusBadRequest, "invitation token is required")
	}

	var invitation models.Invitation
	if err := h.DB.Preload("Group").Preload("Inviter").First(&invitation, "token = ?", token).Error; err != nil {
		return nil, utils.Error(c, fiber.StatusNotFound, "invitation not found")
	}

	if !invitation.IsPending() {
		return nil, utils.Error(c, fiber.StatusConflict, "invitation is no longer pending")
	}
	if !strings.EqualFold(invitation.InviteeEmail, user.Email) {
		return nil, utils.Error(c, fiber.StatusForbidden, "invitation was issued to a different email")
	}
	if time.Now().UTC().After(invitation.ExpiresAt) {
		if err := h.DB.Model(&models.Invitation{}).Where("id = ?", invitation.ID).
			Update("status", models.InvitationStatusExpired).Error; err != nil {
			logger.Error("invite_expire_failed", err, map[string]interface{}{
				"invitation_id": invitation.ID.String(),
			})
		}
		return nil, utils.Error(c, fiber.StatusGone, "invitation has expired")
	}

	return &invitation, nil
}

// Accept joins the caller to the group with the invited role and runs
// the member-added cascade.
func (h *InvitationHandler) Accept(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	invitation, respErr := h.loadByToken(c, user)
	if invitation == nil {
		return respErr
	}

	var existing models.GroupMembership
	if err := h.DB.First(&existing, "group_id = ? AND user_id = ?", invitation.GroupID, user.ID).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "you are already a member of this group")
	}

	membership := models.GroupMembership{
		UserID:  user.ID,
		GroupID: invitation.GroupID,
		Role:    invitation.Role,
	}
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}
		return tx.Model(&models.Invitation{}).Where("id = ?", invitation.ID).
			Update("status", models.InvitationStatusAccepted).Error
	})
	if err != nil {
		logger.Error("invite_accept_failed", err, map[string]interface{}{
			"invitation_id": invitation.ID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to accept invitation")
	}

	if err := h.Cascade.MemberAdded(&invitation.Group, user.ID); err != nil {
		logger.Error("member_added_cascade_failed", err, map[string]interface{}{
			"group_id": invitation.GroupID.String(),
			"user_id":  user.ID.String(),
		})
	}

	h.Notifier.Notify(invitation.InviterID, models.NotificationInviteAccepted,
		"Invitation accepted",
		fmt.Sprintf("%s accepted your invitation to \"%s\".", user.DisplayName, invitation.Group.Name),
		map[string]interface{}{"groupID": invitation.GroupID.String()})

	var members []models.GroupMembership
	if err := h.DB.Where("group_id = ? AND user_id NOT IN ?", invitation.GroupID,
		[]uuid.UUID{user.ID, invitation.InviterID}).Find(&members).Error; err == nil {
		memberIDs := make([]uuid.UUID, len(members))
		for i, m := range members {
			memberIDs[i] = m.UserID
		}
		h.Notifier.NotifyAllExcept(memberIDs, nil, models.NotificationMemberJoined,
			"New group member",
			fmt.Sprintf("%s joined \"%s\".", user.DisplayName, invitation.Group.Name),
			map[string]interface{}{"groupID": invitation.GroupID.String()})
	}

	logger.InfoWithUser(user.ID.String(), "invitation_accepted", map[string]interface{}{
		"group_id": invitation.GroupID.String(),
	})
	return utils.Success(c, fiber.StatusOK, membership)
}

// Decline marks a pending invitation declined and tells the inviter.
func (h *InvitationHandler) Decline(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	invitation, respErr := h.loadByToken(c, user)
	if invitation == nil {
		return respErr
	}

	if err := h.DB.Model(&models.Invitation{}).Where("id = ?", invitation.ID).
		Update("status", models.InvitationStatusDeclined).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to decline invitation")
	}

	h.Notifier.Notify(invitation.InviterID, models.NotificationInviteDeclined,
		"Invitation declined",
		fmt.Sprintf("%s declined your invitation to \"%s\".", user.DisplayName, invitation.Group.Name),
		map[string]interface{}{"groupID": invitation.GroupID.String()})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"status": models.InvitationStatusDeclined})
}
