package services

import (
	"fmt"
	"time"

	"github.com/wishlane/backend/internal/config"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/pkg/logger"
	"gorm.io/gorm"
)

// ClaimSweeper physically deletes expired claims. Expiration is already
// passive, expired claims never count toward the claim invariants, so
// the sweep only cleans rows up and tells people about it.
type ClaimSweeper struct {
	DB         *gorm.DB
	Visibility *VisibilityService
	Notifier   *NotificationService
	Policy     config.ClaimsConfig

	stop chan struct{}
	done chan struct{}
}

func NewClaimSweeper(db *gorm.DB, visibility *VisibilityService, notifier *NotificationService, policy config.ClaimsConfig) *ClaimSweeper {
	return &ClaimSweeper{DB: db, Visibility: visibility, Notifier: notifier, Policy: policy}
}

// Start runs the sweep on a low-frequency ticker until Stop is called.
func (s *ClaimSweeper) Start(interval time.Duration) {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Sweep(time.Now().UTC()); err != nil {
					logger.Error("claim_sweep_failed", err, nil)
				}
			case <-s.stop:
				return
			}
		}
	}()

	logger.Info("claim_sweeper_started", map[string]interface{}{
		"interval": interval.String(),
	})
}

// Stop ends the sweep loop and waits for it to exit.
func (s *ClaimSweeper) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

// Sweep deletes every claim expired as of now and notifies the claimer
// plus the item's other recipients.
func (s *ClaimSweeper) Sweep(now time.Time) error {
	query := s.DB.Preload("Item").Where("expires_at <= ?", now)
	if s.Policy.PurchasedSuppressesExpiry {
		query = query.Where("purchased_at IS NULL")
	}

	var expired []models.Claim
	if err := query.Find(&expired).Error; err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	for i := range expired {
		claim := expired[i]
		if err := s.DB.Delete(&models.Claim{}, "id = ?", claim.ID).Error; err != nil {
			logger.Error("claim_sweep_delete_failed", err, map[string]interface{}{
				"claim_id": claim.ID.String(),
			})
			continue
		}

		data := map[string]interface{}{"itemID": claim.ItemID.String()}
		s.Notifier.Notify(claim.UserID, models.NotificationClaimExpired,
			"Claim expired",
			fmt.Sprintf("Your claim on \"%s\" expired and was released.", claim.Item.Name),
			data)

		recipients, err := s.Visibility.RecipientIDs(&claim.Item, claim.UserID)
		if err != nil {
			logger.Error("claim_sweep_notify_failed", err, map[string]interface{}{
				"claim_id": claim.ID.String(),
			})
			continue
		}
		s.Notifier.NotifyAllExcept(recipients, nil, models.NotificationClaimExpired,
			"Claim expired",
			fmt.Sprintf("A claim on \"%s\" expired; the item can be claimed again.", claim.Item.Name),
			data)
	}

	logger.Info("claim_sweep_completed", map[string]interface{}{
		"released": len(expired),
	})
	return nil
}
