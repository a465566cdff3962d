package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/epetcare/notifier/internal/models"
	apperrors "github.com/epetcare/notifier/pkg/errors"
)

// ListNotificationsInput defines filters for querying owner notifications.
type ListNotificationsInput struct {
	OwnerID string
	IsRead  *bool
	Limit   int
	Offset  int
}

// NotificationService is the owner-facing read side of the notification
// store: listing and the read flag. Creation belongs to the event hook and
// the capture triggers; the emailed flag belongs to the dispatch pipeline.
type NotificationService struct {
	db *gorm.DB
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db}, nil
}

// ListForOwner returns notifications for the supplied owner ordered by recency.
func (s *NotificationService) ListForOwner(ctx context.Context, input ListNotificationsInput) ([]models.Notification, error) {
	ctx = ensureContext(ctx)
	ownerID := strings.TrimSpace(input.OwnerID)
	if ownerID == "" {
		return nil, errors.New("notification service: owner id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)

	if input.IsRead != nil {
		query = query.Where("is_read = ?", *input.IsRead)
	}

	var rows []models.Notification
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return rows, nil
}

// UnreadCount reports how many unread notifications the owner has.
func (s *NotificationService) UnreadCount(ctx context.Context, ownerID string) (int64, error) {
	ctx = ensureContext(ctx)
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("owner_id = ? AND is_read = ?", ownerID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: unread count: %w", err)
	}
	return count, nil
}

// MarkRead sets the notification read flag for an owner.
func (s *NotificationService) MarkRead(ctx context.Context, ownerID, notificationID string) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", notificationID, ownerID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&notification).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}

	notification.IsRead = true
	notification.ReadAt = &now
	return &notification, nil
}

// MarkAllRead marks all notifications for the owner as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, ownerID string) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("owner_id = ? AND is_read = ?", ownerID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return fmt.Errorf("notification service: mark all read: %w", err)
	}
	return nil
}
