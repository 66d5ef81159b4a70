package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/wishlane/backend/internal/middleware"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/pkg/logger"
	"github.com/wishlane/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{DB: db}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return utils.Error(c, fiber.StatusBadRequest, "valid email is required")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	if req.DisplayName == "" {
		return utils.Error(c, fiber.StatusBadRequest, "display name is required")
	}

	var existing models.User
	if err := h.DB.First(&existing, "email = ?", req.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "email is already registered")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		logger.Error("password_hash_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create account")
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		logger.Error("user_create_failed", err, map[string]interface{}{"email": req.Email})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create account")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		logger.Error("token_generation_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create session")
	}

	logger.InfoWithUser(user.ID.String(), "user_registered", map[string]interface{}{
		"email": user.Email,
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"token": token,
		"user":  user,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := h.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		logger.Warn("login_unknown_email", map[string]interface{}{
			"ip": c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_bad_password", map[string]interface{}{
			"ip":      c.IP(),
			"user_id": user.ID.String(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		logger.Error("token_generation_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create session")
	}

	logger.InfoWithUser(user.ID.String(), "user_logged_in", nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token": token,
		"user":  user,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	return utils.Success(c, fiber.StatusOK, user)
}

type updateMeRequest struct {
	DisplayName *string `json:"displayName"`
	AvatarURL   *string `json:"avatarURL"`
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req updateMeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return utils.Error(c, fiber.StatusBadRequest, "display name cannot be empty")
		}
		updates["display_name"] = name
		user.DisplayName = name
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = req.AvatarURL
		user.AvatarURL = req.AvatarURL
	}

	if len(updates) > 0 {
		if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			logger.Error("user_update_failed", err, map[string]interface{}{"user_id": user.ID.String()})
			return utils.Error(c, fiber.StatusInternalServerError, "failed to update profile")
		}
	}

	return utils.Success(c, fiber.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !utils.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		logger.Warn("password_change_rejected", map[string]interface{}{
			"user_id": user.ID.String(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "current password is incorrect")
	}
	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		logger.Error("password_hash_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed to change password")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).
		Update("password_hash", hash).Error; err != nil {
		logger.Error("password_update_failed", err, map[string]interface{}{"user_id": user.ID.String()})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to change password")
	}

	logger.InfoWithUser(user.ID.String(), "password_changed", nil)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}
