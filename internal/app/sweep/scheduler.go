package sweep

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/subwatch/subwatch/pkg/logger"
)

const (
	defaultEventSpec     = "0 8 * * *" // daily, morning local time
	defaultRetentionSpec = "@daily"
)

// Scheduler runs the event and retention sweeps on a single shared cron
// process. The two jobs are independent; neither waits on the other.
type Scheduler struct {
	events    *EventSweeper
	retention *RetentionSweeper
	cron      *cron.Cron
	log       *zap.Logger

	eventSchedule     string
	retentionSchedule string
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

// WithEventSchedule overrides the cron specification for the event sweep.
func WithEventSchedule(spec string) SchedulerOption {
	return func(s *Scheduler) {
		if spec != "" {
			s.eventSchedule = spec
		}
	}
}

// WithRetentionSchedule overrides the cron specification for retention.
func WithRetentionSchedule(spec string) SchedulerOption {
	return func(s *Scheduler) {
		if spec != "" {
			s.retentionSchedule = spec
		}
	}
}

// NewScheduler wires the sweepers into a cron scheduler. A nil sweeper
// simply skips that job.
func NewScheduler(events *EventSweeper, retention *RetentionSweeper, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		events:            events,
		retention:         retention,
		log:               logger.WithModule("sweep"),
		eventSchedule:     defaultEventSpec,
		retentionSchedule: defaultRetentionSpec,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return s
}

// Start registers the sweep jobs and launches the scheduler.
func (s *Scheduler) Start() error {
	if s.events != nil {
		if _, err := s.cron.AddFunc(s.eventSchedule, func() {
			s.events.Run(context.Background())
		}); err != nil {
			return err
		}
	}

	if s.retention != nil {
		if _, err := s.cron.AddFunc(s.retentionSchedule, func() {
			if _, err := s.retention.Run(context.Background()); err != nil {
				s.log.Warn("retention sweep reported errors", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes both sweeps sequentially. Used by tests and for an
// explicit sweep trigger at shutdown or via tooling.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if s.events != nil {
		s.events.Run(ctx)
	}

	if s.retention != nil {
		if _, err := s.retention.Run(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
