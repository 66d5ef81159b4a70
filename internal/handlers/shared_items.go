package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wishlane/backend/internal/middleware"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/internal/services"
	"github.com/wishlane/backend/pkg/utils"
	"gorm.io/gorm"
)

// SharedItemHandler is the recipient-facing read model: every item
// shared with the caller through any group, with the claim data they
// are allowed to see and the remaining claimable amount.
type SharedItemHandler struct {
	DB         *gorm.DB
	Visibility *services.VisibilityService
	Claims     *services.ClaimService
}

func NewSharedItemHandler(db *gorm.DB, visibility *services.VisibilityService, claims *services.ClaimService) *SharedItemHandler {
	return &SharedItemHandler{DB: db, Visibility: visibility, Claims: claims}
}

func (h *SharedItemHandler) sharedScope(userID uuid.UUID) *gorm.DB {
	sub := h.DB.Model(&models.ItemRecipient{}).
		Select("item_recipients.item_id").
		Joins("JOIN group_memberships gm ON gm.group_id = item_recipients.group_id").
		Where("gm.user_id = ?", userID)

	return h.DB.Model(&models.Item{}).
		Where("items.id IN (?)", sub).
		Where("items.owner_id != ?", userID)
}

// List returns the items shared with the caller. Claims on each item are
// filtered through the visibility predicate before they leave the
// server; the claimable amount reflects only live claims.
func (h *SharedItemHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	pagination := utils.ParsePagination(c)

	query := h.sharedScope(user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("items.status = ?", status)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(items.name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list shared items")
	}

	var items []models.Item
	err := utils.ApplyPagination(query, pagination).
		Preload("Owner").
		Order("items.created_at DESC").
		Find(&items).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list shared items")
	}

	if err := h.attachClaimData(items, user.ID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load claim data")
	}

	return utils.Paginated(c, items, pagination.Page, pagination.Limit, total)
}

// Get returns one shared item. Items not shared with the caller are
// reported as not found, whether or not they exist.
func (h *SharedItemHandler) Get(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	itemID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid item id")
	}

	var item models.Item
	if err := h.DB.Preload("Owner").First(&item, "id = ?", itemID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "item not found")
	}

	isRecipient, err := h.Visibility.IsRecipient(user.ID, &item)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load item")
	}
	if !isRecipient {
		return utils.Error(c, fiber.StatusNotFound, "item not found")
	}

	items := []models.Item{item}
	if err := h.attachClaimData(items, user.ID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load claim data")
	}

	return utils.Success(c, fiber.StatusOK, items[0])
}

// attachClaimData populates VisibleClaims and ClaimableAmount on each
// item in place, applying the per-claim visibility predicate.
func (h *SharedItemHandler) attachClaimData(items []models.Item, viewerID uuid.UUID) error {
	if len(items) == 0 {
		return nil
	}

	itemIDs := make([]uuid.UUID, len(items))
	byID := make(map[uuid.UUID]*models.Item, len(items))
	for i := range items {
		itemIDs[i] = items[i].ID
		byID[items[i].ID] = &items[i]
	}

	now := time.Now().UTC()
	liveClaims, err := h.Claims.LiveClaimsForItems(itemIDs, now)
	if err != nil {
		return err
	}

	liveByItem := make(map[uuid.UUID][]models.Claim)
	for i := range liveClaims {
		claim := liveClaims[i]
		liveByItem[claim.ItemID] = append(liveByItem[claim.ItemID], claim)
	}

	for i := range items {
		item := &items[i]
		live := liveByItem[item.ID]
		item.ClaimableAmount = h.Claims.ClaimableAmount(item, live)

		visible := make([]models.Claim, 0, len(live))
		for j := range live {
			canView, err := h.Visibility.CanViewClaim(&live[j], item, viewerID)
			if err != nil {
				return err
			}
			if canView {
				visible = append(visible, live[j])
			}
		}
		item.VisibleClaims = visible
	}
	return nil
}
