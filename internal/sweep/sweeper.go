package sweep

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/epetcare/notifier/internal/models"
	"github.com/epetcare/notifier/pkg/logger"
	"github.com/epetcare/notifier/pkg/metrics"
)

const defaultBatchSize = 100

// NotificationDispatcher delivers a single notification row over email.
type NotificationDispatcher interface {
	DispatchNotification(ctx context.Context, notificationID string) error
}

// Stats summarises one sweep pass.
type Stats struct {
	Processed int
	Sent      int
	Failed    int
	Skipped   int
}

// Sweeper is the catch-up half of delivery: it walks notification rows with
// emailed=false oldest-first and pushes each through the dispatch pipeline.
// Rows captured by the database triggers get their first delivery attempt
// here, rows whose inline dispatch failed get retried. Failed rows stay
// pending and are picked up again on the next pass.
type Sweeper struct {
	db         *gorm.DB
	dispatcher NotificationDispatcher
	batch      int
	log        *zap.Logger
}

// NewSweeper constructs a Sweeper. batch bounds how many rows one pass
// processes; zero or negative selects the default.
func NewSweeper(db *gorm.DB, dispatcher NotificationDispatcher, batch int) (*Sweeper, error) {
	if db == nil {
		return nil, errors.New("sweep: db is required")
	}
	if dispatcher == nil {
		return nil, errors.New("sweep: dispatcher is required")
	}
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Sweeper{
		db:         db,
		dispatcher: dispatcher,
		batch:      batch,
		log:        logger.WithModule("sweep"),
	}, nil
}

// Run executes one sweep pass. The returned error aggregates every dispatch
// failure; rows behind failures remain pending.
func (s *Sweeper) Run(ctx context.Context) (Stats, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ids, err := s.pendingIDs(ctx, "", s.batch)
	if err != nil {
		return Stats{}, err
	}

	stats, errs := s.process(ctx, ids)

	if pending, err := s.pendingCount(ctx); err == nil {
		metrics.PendingNotifications.Set(float64(pending))
	}

	if stats.Processed > 0 {
		s.log.Info("sweep pass complete",
			zap.Int("processed", stats.Processed),
			zap.Int("sent", stats.Sent),
			zap.Int("failed", stats.Failed),
			zap.Int("skipped", stats.Skipped))
	}

	return stats, errs
}

// RunForOwner sweeps pending rows for a single owner. The portal calls this
// opportunistically when the owner opens their notification list, so trigger
//-captured rows go out without waiting for the next scheduled pass.
func (s *Sweeper) RunForOwner(ctx context.Context, ownerID string, limit int) (Stats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ownerID == "" {
		return Stats{}, errors.New("sweep: owner id is required")
	}
	if limit <= 0 || limit > s.batch {
		limit = s.batch
	}

	ids, err := s.pendingIDs(ctx, ownerID, limit)
	if err != nil {
		return Stats{}, err
	}

	stats, errs := s.process(ctx, ids)
	return stats, errs
}

func (s *Sweeper) process(ctx context.Context, ids []string) (Stats, error) {
	var stats Stats
	var errs error

	for _, id := range ids {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		stats.Processed++

		// A queue worker may have delivered the row after our batch select.
		var emailed bool
		if err := s.db.WithContext(ctx).
			Model(&models.Notification{}).
			Where("id = ?", id).
			Pluck("emailed", &emailed).Error; err == nil && emailed {
			stats.Skipped++
			metrics.SweepProcessed.WithLabelValues("skipped").Inc()
			continue
		}

		if err := s.dispatcher.DispatchNotification(ctx, id); err != nil {
			stats.Failed++
			metrics.SweepProcessed.WithLabelValues("failed").Inc()
			s.log.Warn("sweep dispatch failed",
				zap.String("notification_id", id),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("notification %s: %w", id, err))
			continue
		}

		stats.Sent++
		metrics.SweepProcessed.WithLabelValues("sent").Inc()
	}

	return stats, errs
}

func (s *Sweeper) pendingIDs(ctx context.Context, ownerID string, limit int) ([]string, error) {
	query := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("emailed = ?", false).
		Order("created_at ASC").
		Limit(limit)
	if ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}

	var ids []string
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("sweep: list pending notifications: %w", err)
	}
	return ids, nil
}

func (s *Sweeper) pendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("emailed = ?", false).
		Count(&count).Error
	return count, err
}
