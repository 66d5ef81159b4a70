package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/wishlane/backend/internal/middleware"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/internal/services"
	"github.com/wishlane/backend/pkg/logger"
	"github.com/wishlane/backend/pkg/utils"
	"gorm.io/gorm"
)

// ClaimHandler exposes the claim lifecycle over HTTP. All precondition
// logic lives in the claim service; this layer only maps its errors to
// status codes.
type ClaimHandler struct {
	DB     *gorm.DB
	Claims *services.ClaimService
}

func NewClaimHandler(db *gorm.DB, claims *services.ClaimService) *ClaimHandler {
	return &ClaimHandler{DB: db, Claims: claims}
}

type createClaimRequest struct {
	ItemID      string `json:"itemID"`
	AmountCents *int64 `json:"amountCents"`
}

func claimErrorResponse(c *fiber.Ctx, err error) error {
	var overcommit *services.OvercommitError
	if errors.As(err, &overcommit) {
		return utils.ErrorWithDetails(c, fiber.StatusConflict,
			"requested amount exceeds the remaining claimable amount",
			fiber.Map{"remainingAmount": overcommit.Remaining})
	}

	switch {
	case errors.Is(err, services.ErrItemNotFound):
		return utils.Error(c, fiber.StatusNotFound, "item not found")
	case errors.Is(err, services.ErrOwnItemClaim):
		return utils.Error(c, fiber.StatusForbidden, "you cannot claim your own item")
	case errors.Is(err, services.ErrNotRecipient):
		return utils.Error(c, fiber.StatusNotFound, "item not found")
	case errors.Is(err, services.ErrAlreadyClaimed):
		return utils.Error(c, fiber.StatusConflict, "item is already claimed")
	case errors.Is(err, services.ErrItemUnpriced):
		return utils.Error(c, fiber.StatusBadRequest, "item has no price, only a full claim is possible")
	case errors.Is(err, services.ErrInvalidAmount):
		return utils.Error(c, fiber.StatusBadRequest, "amount must be a positive number of cents")
	case errors.Is(err, services.ErrClaimNotFound):
		return utils.Error(c, fiber.StatusNotFound, "claim not found")
	case errors.Is(err, services.ErrNotClaimOwner):
		return utils.Error(c, fiber.StatusForbidden, "claim belongs to another user")
	default:
		logger.Error("claim_operation_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "claim operation failed")
	}
}

func (h *ClaimHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req createClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	itemID, err := parseUUID(req.ItemID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid item id")
	}

	claim, err := h.Claims.Create(itemID, user.ID, req.AmountCents)
	if err != nil {
		return claimErrorResponse(c, err)
	}

	logger.InfoWithUser(user.ID.String(), "claim_created", map[string]interface{}{
		"claim_id": claim.ID.String(),
		"item_id":  itemID.String(),
		"full":     claim.IsFull(),
	})
	return utils.Success(c, fiber.StatusCreated, claim)
}

func (h *ClaimHandler) Release(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	claimID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid claim id")
	}

	if err := h.Claims.Release(claimID, user.ID); err != nil {
		return claimErrorResponse(c, err)
	}

	logger.InfoWithUser(user.ID.String(), "claim_released", map[string]interface{}{
		"claim_id": claimID.String(),
	})
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ClaimHandler) MarkPurchased(c *fiber.Ctx) error {
	return h.setPurchased(c, true)
}

func (h *ClaimHandler) UnmarkPurchased(c *fiber.Ctx) error {
	return h.setPurchased(c, false)
}

func (h *ClaimHandler) setPurchased(c *fiber.Ctx, purchased bool) error {
	user := middleware.GetCurrentUser(c)

	claimID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid claim id")
	}

	claim, err := h.Claims.SetPurchased(claimID, user.ID, purchased)
	if err != nil {
		return claimErrorResponse(c, err)
	}
	return utils.Success(c, fiber.StatusOK, claim)
}

// List returns the caller's own claims with items and their owners
// preloaded, live ones first.
func (h *ClaimHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var claims []models.Claim
	err := h.DB.Preload("Item.Owner").
		Where("user_id = ?", user.ID).
		Order("expires_at DESC").
		Find(&claims).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list claims")
	}

	now := time.Now().UTC()
	live := make([]models.Claim, 0, len(claims))
	for i := range claims {
		if h.Claims.IsLive(&claims[i], now) {
			live = append(live, claims[i])
		}
	}

	return utils.Success(c, fiber.StatusOK, live)
}
