package sweep

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/epetcare/notifier/pkg/logger"
)

const (
	defaultSweepSpec = "@every 5m"
	defaultGCSpec    = "@daily"
)

// CodePurger removes dead password reset codes.
type CodePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler drives the periodic background jobs: the catch-up sweep and the
// reset code purge. Any nil dependency results in the corresponding job
// being skipped.
type Scheduler struct {
	sweeper *Sweeper
	purger  CodePurger
	cron    *cron.Cron
	log     *zap.Logger

	sweepSchedule string
	gcSchedule    string
}

// SchedulerOption customises the Scheduler.
type SchedulerOption func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) SchedulerOption {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithSweepSchedule overrides the cron specification for the catch-up sweep.
func WithSweepSchedule(spec string) SchedulerOption {
	return func(s *Scheduler) {
		if spec != "" {
			s.sweepSchedule = spec
		}
	}
}

// WithGCSchedule overrides the cron specification for the reset code purge.
func WithGCSchedule(spec string) SchedulerOption {
	return func(s *Scheduler) {
		if spec != "" {
			s.gcSchedule = spec
		}
	}
}

// NewScheduler constructs a Scheduler with sensible defaults.
func NewScheduler(sweeper *Sweeper, purger CodePurger, opts ...SchedulerOption) *Scheduler {
	scheduler := &Scheduler{
		sweeper:       sweeper,
		purger:        purger,
		sweepSchedule: defaultSweepSpec,
		gcSchedule:    defaultGCSpec,
		log:           logger.WithModule("scheduler"),
	}

	for _, opt := range opts {
		opt(scheduler)
	}

	if scheduler.cron == nil {
		scheduler.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return scheduler
}

// Start registers the jobs with the cron scheduler and launches it.
func (s *Scheduler) Start() error {
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(s.sweepSchedule, func() {
			if _, err := s.sweeper.Run(context.Background()); err != nil {
				s.log.Warn("scheduled sweep reported failures", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.purger != nil {
		if _, err := s.cron.AddFunc(s.gcSchedule, func() {
			if _, err := s.purger.PurgeExpired(context.Background()); err != nil {
				s.log.Warn("reset code purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes both jobs sequentially. Used by the one-shot sweep command
// and during graceful shutdown.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if s.sweeper != nil {
		if _, err := s.sweeper.Run(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if s.purger != nil {
		if _, err := s.purger.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
