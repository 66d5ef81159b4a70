package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/wishlane/backend/internal/middleware"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/pkg/utils"
	"gorm.io/gorm"
)

type UserHandler struct {
	DB *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{DB: db}
}

// Search looks users up by email or display name, for the invite flow.
// It never returns the caller themselves.
func (h *UserHandler) Search(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	query := strings.TrimSpace(c.Query("q"))
	if len(query) < 2 {
		return utils.Error(c, fiber.StatusBadRequest, "query must be at least 2 characters")
	}

	pattern := "%" + strings.ToLower(query) + "%"
	var users []models.User
	err := h.DB.
		Where("id != ?", user.ID).
		Where("LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?", pattern, pattern).
		Limit(10).
		Find(&users).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "search failed")
	}

	return utils.Success(c, fiber.StatusOK, users)
}
