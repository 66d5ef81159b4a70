package handlers

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wishlane/backend/internal/middleware"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/internal/services"
	"github.com/wishlane/backend/internal/storage"
	"github.com/wishlane/backend/pkg/logger"
	"github.com/wishlane/backend/pkg/utils"
	"gorm.io/gorm"
)

// ItemHandler is the owner-facing wishlist surface. Everything here is
// gated on ownership; claim data never appears in any response because
// the owner must not see it.
type ItemHandler struct {
	DB      *gorm.DB
	Storage *storage.MinIOClient
	Cascade *services.CascadeService
}

func NewItemHandler(db *gorm.DB, store *storage.MinIOClient, cascade *services.CascadeService) *ItemHandler {
	return &ItemHandler{DB: db, Storage: store, Cascade: cascade}
}

type itemRequest struct {
	Name       string  `json:"name"`
	URL        *string `json:"url"`
	PriceCents *int64  `json:"priceCents"`
	Notes      *string `json:"notes"`
	Priority   *int    `json:"priority"`
	Status     *string `json:"status"`
}

func validateItemRequest(req *itemRequest) string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "item name is required"
	}
	if req.PriceCents != nil && *req.PriceCents < 0 {
		return "price cannot be negative"
	}
	if req.Priority != nil && (*req.Priority < 1 || *req.Priority > 5) {
		return "priority must be between 1 and 5"
	}
	if req.Status != nil {
		switch models.ItemStatus(*req.Status) {
		case models.ItemStatusActive, models.ItemStatusReceived, models.ItemStatusArchived:
		default:
			return "status must be active, received or archived"
		}
	}
	return ""
}

// ownedItem loads the item and verifies the caller owns it. Items owned
// by someone else are reported as not found. On failure the error
// response has already been written and the item is nil; callers check
// the item, not the error.
func (h *ItemHandler) ownedItem(c *fiber.Ctx, user *models.User) (*models.Item, error) {
	itemID, err := parseUUID(c.Params("id"))
	if err != nil {
		return nil, utils.Error(c, fiber.StatusBadRequest, "invalid item id")
	}

	var item models.Item
	if err := h.DB.First(&item, "id = ?", itemID).Error; err != nil {
		return nil, utils.Error(c, fiber.StatusNotFound, "item not found")
	}
	if item.OwnerID != user.ID {
		return nil, utils.Error(c, fiber.StatusNotFound, "item not found")
	}
	return &item, nil
}

func (h *ItemHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req itemRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if msg := validateItemRequest(&req); msg != "" {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	item := models.Item{
		OwnerID:    user.ID,
		Name:       req.Name,
		URL:        req.URL,
		PriceCents: req.PriceCents,
		Notes:      req.Notes,
		Status:     models.ItemStatusActive,
		Priority:   3,
	}
	if req.Priority != nil {
		item.Priority = *req.Priority
	}
	if req.Status != nil {
		item.Status = models.ItemStatus(*req.Status)
	}

	if err := h.DB.Create(&item).Error; err != nil {
		logger.Error("item_create_failed", err, map[string]interface{}{"user_id": user.ID.String()})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create item")
	}

	logger.InfoWithUser(user.ID.String(), "item_created", map[string]interface{}{
		"item_id": item.ID.String(),
	})
	return utils.Success(c, fiber.StatusCreated, item)
}

// List returns the caller's own items with recipient tags preloaded and
// without any claim data.
func (h *ItemHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	pagination := utils.ParsePagination(c)

	query := h.DB.Model(&models.Item{}).Where("owner_id = ?", user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list items")
	}

	var items []models.Item
	err := utils.ApplyPagination(query, pagination).
		Preload("Recipients.Group").
		Order("priority ASC, created_at DESC").
		Find(&items).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list items")
	}

	return utils.Paginated(c, items, pagination.Page, pagination.Limit, total)
}

func (h *ItemHandler) Get(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	item, respErr := h.ownedItem(c, user)
	if item == nil {
		return respErr
	}

	if err := h.DB.Preload("Recipients.Group").First(item, "id = ?", item.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "item not found")
	}
	return utils.Success(c, fiber.StatusOK, item)
}

func (h *ItemHandler) Update(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	item, respErr := h.ownedItem(c, user)
	if item == nil {
		return respErr
	}

	var req itemRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if msg := validateItemRequest(&req); msg != "" {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	item.Name = req.Name
	item.URL = req.URL
	item.PriceCents = req.PriceCents
	item.Notes = req.Notes
	if req.Priority != nil {
		item.Priority = *req.Priority
	}
	if req.Status != nil {
		item.Status = models.ItemStatus(*req.Status)
	}

	err := h.DB.Model(&models.Item{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
		"name":        item.Name,
		"url":         item.URL,
		"price_cents": item.PriceCents,
		"notes":       item.Notes,
		"priority":    item.Priority,
		"status":      item.Status,
	}).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update item")
	}

	return utils.Success(c, fiber.StatusOK, item)
}

// Delete removes the item and cascades: recipient tags and claims are
// deleted and claimers are notified.
func (h *ItemHandler) Delete(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	item, respErr := h.ownedItem(c, user)
	if item == nil {
		return respErr
	}

	if err := h.Cascade.DeleteItem(item, user.ID); err != nil {
		logger.Error("item_delete_failed", err, map[string]interface{}{"item_id": item.ID.String()})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to delete item")
	}

	if item.ImagePath != nil && h.Storage != nil {
		if err := h.Storage.Delete(c.Context(), *item.ImagePath); err != nil {
			logger.Warn("item_image_cleanup_failed", map[string]interface{}{
				"item_id": item.ID.String(),
			})
		}
	}

	logger.InfoWithUser(user.ID.String(), "item_deleted", map[string]interface{}{
		"item_id": item.ID.String(),
	})
	return c.SendStatus(fiber.StatusNoContent)
}

// UploadImage stores an item image in object storage and records its
// path on the item. Returns 503 when object storage is not configured.
func (h *ItemHandler) UploadImage(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	if h.Storage == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "image storage is not configured")
	}

	item, respErr := h.ownedItem(c, user)
	if item == nil {
		return respErr
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "image file is required")
	}
	if fileHeader.Size > 10*1024*1024 {
		return utils.Error(c, fiber.StatusBadRequest, "image must be smaller than 10MB")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return utils.Error(c, fiber.StatusBadRequest, "file must be an image")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to read upload")
	}
	defer file.Close()

	objectName := storage.ItemImagePath(item.ID, uuid.New().String()+filepath.Ext(fileHeader.Filename))
	if err := h.Storage.Upload(c.Context(), objectName, file, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to store image")
	}

	// Replace any previous image, best-effort cleanup.
	if item.ImagePath != nil {
		_ = h.Storage.Delete(c.Context(), *item.ImagePath)
	}

	if err := h.DB.Model(&models.Item{}).Where("id = ?", item.ID).
		Update("image_path", objectName).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to save image path")
	}
	item.ImagePath = &objectName

	return utils.Success(c, fiber.StatusOK, item)
}

// ImageURL returns a short-lived presigned URL for the item image.
func (h *ItemHandler) ImageURL(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	if h.Storage == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "image storage is not configured")
	}

	itemID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid item id")
	}

	var item models.Item
	if err := h.DB.First(&item, "id = ?", itemID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "item not found")
	}

	// Owners and recipients may fetch the image; nobody else learns the
	// item exists.
	if item.OwnerID != user.ID {
		vis := services.NewVisibilityService(h.DB)
		isRecipient, err := vis.IsRecipient(user.ID, &item)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to load item")
		}
		if !isRecipient {
			return utils.Error(c, fiber.StatusNotFound, "item not found")
		}
	}

	if item.ImagePath == nil {
		return utils.Error(c, fiber.StatusNotFound, "item has no image")
	}

	url, err := h.Storage.PresignedGetURL(c.Context(), *item.ImagePath, 15*time.Minute)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to sign image url")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}
