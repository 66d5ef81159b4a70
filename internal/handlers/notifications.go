package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/wishlane/backend/internal/middleware"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/pkg/utils"
	"gorm.io/gorm"
)

type NotificationHandler struct {
	DB *gorm.DB
}

func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{DB: db}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	pagination := utils.ParsePagination(c)

	query := h.DB.Model(&models.Notification{}).Where("user_id = ?", user.ID)
	if c.Query("unread") == "true" {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list notifications")
	}

	var notifications []models.Notification
	err := utils.ApplyPagination(query, pagination).
		Order("created_at DESC").
		Find(&notifications).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list notifications")
	}

	return utils.Paginated(c, notifications, pagination.Page, pagination.Limit, total)
}

// UnreadCount combines unread notifications with pending invitations so
// a client can render one badge.
func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var unread int64
	err := h.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", user.ID, false).
		Count(&unread).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to count notifications")
	}

	var pendingInvites int64
	err = h.DB.Model(&models.Invitation{}).
		Where("invitee_email = ? AND status = ?", user.Email, models.InvitationStatusPending).
		Count(&pendingInvites).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to count invitations")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"unreadNotifications": unread,
		"pendingInvitations":  pendingInvites,
		"total":               unread + pendingInvites,
	})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	notificationID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid notification id")
	}

	result := h.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, user.ID).
		Update("is_read", true)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update notification")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "notification not found")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"isRead": true})
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	err := h.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", user.ID, false).
		Update("is_read", true).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update notifications")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"isRead": true})
}
