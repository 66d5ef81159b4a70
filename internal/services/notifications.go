package services

import (
	"sync"

	"github.com/google/uuid"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/pkg/logger"
	"gorm.io/gorm"
)

// NotificationService persists in-app notification rows through a buffered
// queue so request handlers never block on notification delivery. A full
// queue drops the notification with a warning; the primary mutation that
// triggered it has already committed and must not be affected.
type NotificationService struct {
	DB      *gorm.DB
	queue   chan models.Notification
	pending sync.WaitGroup
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	s := &NotificationService{
		DB:    db,
		queue: make(chan models.Notification, 1000),
	}
	go s.processQueue()
	return s
}

// Notify enqueues a single notification, fire-and-forget.
func (s *NotificationService) Notify(userID uuid.UUID, notifType models.NotificationType, title, body string, data map[string]interface{}) {
	s.dispatch(models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
		Data:   data,
	})
}

// NotifyAllExcept fans a notification out to userIDs, skipping any id in
// exclude. Used by the claim engine and cascade coordinator for the
// "every other recipient except owner and actor" pattern.
func (s *NotificationService) NotifyAllExcept(userIDs []uuid.UUID, exclude map[uuid.UUID]bool, notifType models.NotificationType, title, body string, data map[string]interface{}) {
	seen := map[uuid.UUID]bool{}
	for _, id := range userIDs {
		if exclude[id] || seen[id] {
			continue
		}
		seen[id] = true
		s.Notify(id, notifType, title, body, data)
	}
}

func (s *NotificationService) dispatch(row models.Notification) {
	s.pending.Add(1)
	select {
	case s.queue <- row:
	default:
		s.pending.Done()
		logger.Warn("notification_queue_full", map[string]interface{}{
			"type":    string(row.Type),
			"user_id": row.UserID.String(),
			"dropped": true,
		})
	}
}

func (s *NotificationService) processQueue() {
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("notification_insert_failed", err, map[string]interface{}{
				"type":    string(row.Type),
				"user_id": row.UserID.String(),
			})
		}
		s.pending.Done()
	}
}

// Flush blocks until every enqueued notification has been written. Tests
// call it before asserting on notification rows.
func (s *NotificationService) Flush() {
	s.pending.Wait()
}
