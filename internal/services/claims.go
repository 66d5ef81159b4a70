package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wishlane/backend/internal/config"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrItemNotFound   = errors.New("item not found")
	ErrOwnItemClaim   = errors.New("cannot claim your own item")
	ErrNotRecipient   = errors.New("item is not shared with you")
	ErrAlreadyClaimed = errors.New("item is already claimed")
	ErrItemUnpriced   = errors.New("item has no price, only full claims are possible")
	ErrInvalidAmount  = errors.New("amount must be a positive number of cents")
	ErrClaimNotFound  = errors.New("claim not found")
	ErrNotClaimOwner  = errors.New("claim belongs to another user")
)

// OvercommitError carries the actual remaining claimable amount back to
// the caller so the UI can correct the input.
type OvercommitError struct {
	Remaining int64
}

func (e *OvercommitError) Error() string {
	return fmt.Sprintf("requested amount exceeds the remaining claimable amount (%d)", e.Remaining)
}

// ClaimService is the claim lifecycle state machine: create (full or
// partial), release, mark purchased, and the claimable-amount read path.
type ClaimService struct {
	DB         *gorm.DB
	Visibility *VisibilityService
	Notifier   *NotificationService
	Policy     config.ClaimsConfig
}

func NewClaimService(db *gorm.DB, visibility *VisibilityService, notifier *NotificationService, policy config.ClaimsConfig) *ClaimService {
	return &ClaimService{DB: db, Visibility: visibility, Notifier: notifier, Policy: policy}
}

// IsLive reports whether a claim still counts toward the exclusivity and
// sum invariants. Expired claims are treated as implicitly released;
// purchased claims optionally never expire.
func (s *ClaimService) IsLive(claim *models.Claim, now time.Time) bool {
	if s.Policy.PurchasedSuppressesExpiry && claim.PurchasedAt != nil {
		return true
	}
	return claim.ExpiresAt.After(now)
}

func (s *ClaimService) liveScope(db *gorm.DB, now time.Time) *gorm.DB {
	if s.Policy.PurchasedSuppressesExpiry {
		return db.Where("expires_at > ? OR purchased_at IS NOT NULL", now)
	}
	return db.Where("expires_at > ?", now)
}

// Create inserts a claim after checking the preconditions in order:
// item exists, claimer is not the owner, claimer is a recipient, and the
// full/partial exclusivity and remaining-amount rules hold. The invariant
// checks and the insert share one transaction; on Postgres the item row
// is locked so concurrent partial claims cannot overcommit. A concurrent
// double full-claim is additionally stopped by the partial unique index.
func (s *ClaimService) Create(itemID, userID uuid.UUID, amount *int64) (*models.Claim, error) {
	var item models.Item
	if err := s.DB.First(&item, "id = ?", itemID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	if item.OwnerID == userID {
		return nil, ErrOwnItemClaim
	}

	isRecipient, err := s.Visibility.IsRecipient(userID, &item)
	if err != nil {
		return nil, err
	}
	if !isRecipient {
		return nil, ErrNotRecipient
	}

	if amount != nil {
		if item.PriceCents == nil {
			return nil, ErrItemUnpriced
		}
		if *amount <= 0 {
			return nil, ErrInvalidAmount
		}
	}

	now := time.Now().UTC()
	claim := models.Claim{
		ItemID:      item.ID,
		UserID:      userID,
		AmountCents: amount,
		ExpiresAt:   now.AddDate(0, 0, s.Policy.ExpirationDays),
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		itemQuery := tx
		if tx.Dialector.Name() == "postgres" {
			itemQuery = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var locked models.Item
		if err := itemQuery.First(&locked, "id = ?", item.ID).Error; err != nil {
			return err
		}

		// Expired claims are treated as released, but their rows still
		// occupy the full-claim unique index until the sweeper runs.
		// Clear them before inserting.
		expired := tx.Where("item_id = ? AND expires_at <= ?", item.ID, now)
		if s.Policy.PurchasedSuppressesExpiry {
			expired = expired.Where("purchased_at IS NULL")
		}
		if err := expired.Delete(&models.Claim{}).Error; err != nil {
			return err
		}

		var existing []models.Claim
		if err := s.liveScope(tx.Where("item_id = ?", item.ID), now).Find(&existing).Error; err != nil {
			return err
		}

		for i := range existing {
			if existing[i].IsFull() {
				return ErrAlreadyClaimed
			}
		}

		if amount == nil {
			// A full claim excludes all other claims, so any live
			// partial also blocks it.
			if len(existing) > 0 {
				return ErrAlreadyClaimed
			}
		} else {
			var sum int64
			for i := range existing {
				sum += *existing[i].AmountCents
			}
			remaining := *item.PriceCents - sum
			if remaining < 0 {
				remaining = 0
			}
			if *amount > remaining {
				return &OvercommitError{Remaining: remaining}
			}
		}

		if err := tx.Create(&claim).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyClaimed
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyOtherRecipients(&item, userID, models.NotificationClaimCreated,
		"Item claimed",
		fmt.Sprintf("\"%s\" was claimed by another member.", item.Name),
		map[string]interface{}{
			"itemID":  item.ID.String(),
			"claimID": claim.ID.String(),
		})

	return &claim, nil
}

// Release deletes the caller's own claim. Deleting the row frees the
// amount implicitly, no recomputation needed.
func (s *ClaimService) Release(claimID, userID uuid.UUID) error {
	var claim models.Claim
	if err := s.DB.First(&claim, "id = ?", claimID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrClaimNotFound
		}
		return err
	}
	if claim.UserID != userID {
		return ErrNotClaimOwner
	}
	return s.DB.Delete(&models.Claim{}, "id = ?", claim.ID).Error
}

// SetPurchased sets or clears purchasedAt on the caller's own claim.
// Marking notifies the other recipients; unmarking only does when the
// policy asks for it.
func (s *ClaimService) SetPurchased(claimID, userID uuid.UUID, purchased bool) (*models.Claim, error) {
	var claim models.Claim
	if err := s.DB.Preload("Item").First(&claim, "id = ?", claimID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrClaimNotFound
		}
		return nil, err
	}
	if claim.UserID != userID {
		return nil, ErrNotClaimOwner
	}

	var purchasedAt *time.Time
	if purchased {
		now := time.Now().UTC()
		purchasedAt = &now
	}

	if err := s.DB.Model(&models.Claim{}).Where("id = ?", claim.ID).Update("purchased_at", purchasedAt).Error; err != nil {
		return nil, err
	}
	claim.PurchasedAt = purchasedAt

	if purchased || s.Policy.NotifyOnUnpurchase {
		title := "Item purchased"
		body := fmt.Sprintf("\"%s\" was marked as purchased.", claim.Item.Name)
		if !purchased {
			title = "Purchase unmarked"
			body = fmt.Sprintf("\"%s\" is no longer marked as purchased.", claim.Item.Name)
		}
		s.notifyOtherRecipients(&claim.Item, userID, models.NotificationClaimPurchased, title, body,
			map[string]interface{}{
				"itemID":  claim.ItemID.String(),
				"claimID": claim.ID.String(),
			})
	}

	return &claim, nil
}

// LiveClaimsForItems loads the live claims for a set of items with the
// claiming users preloaded, for the shared-items read model.
func (s *ClaimService) LiveClaimsForItems(itemIDs []uuid.UUID, now time.Time) ([]models.Claim, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	var claims []models.Claim
	err := s.liveScope(s.DB.Preload("User").Where("item_id IN ?", itemIDs), now).Find(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ClaimableAmount computes what is still claimable on an item given its
// live claims: nil when the item is unpriced (full claims only), zero
// when a full claim exists, otherwise price minus the partial sum.
func (s *ClaimService) ClaimableAmount(item *models.Item, liveClaims []models.Claim) *int64 {
	if item.PriceCents == nil {
		return nil
	}
	var sum int64
	for i := range liveClaims {
		if liveClaims[i].IsFull() {
			zero := int64(0)
			return &zero
		}
		sum += *liveClaims[i].AmountCents
	}
	remaining := *item.PriceCents - sum
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

func (s *ClaimService) notifyOtherRecipients(item *models.Item, actorID uuid.UUID, notifType models.NotificationType, title, body string, data map[string]interface{}) {
	recipients, err := s.Visibility.RecipientIDs(item, actorID)
	if err != nil {
		logger.Error("claim_notify_recipients_failed", err, map[string]interface{}{
			"item_id": item.ID.String(),
		})
		return
	}
	s.Notifier.NotifyAllExcept(recipients, nil, notifType, title, body, data)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
