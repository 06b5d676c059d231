package sweep

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/subwatch/subwatch/internal/database"
	"github.com/subwatch/subwatch/internal/services"
	"github.com/subwatch/subwatch/pkg/logger"
	"github.com/subwatch/subwatch/pkg/metrics"
)

const (
	defaultReadRetentionDays   = 30
	defaultUnreadRetentionDays = 90
	defaultIdleEndpointDays    = 180
)

// RetentionSweeper deletes aged notification records and deactivates stale
// push endpoints on a daily schedule. Unread records are kept longer than
// read ones since the user has not seen them yet.
type RetentionSweeper struct {
	db            *gorm.DB
	notifications *services.NotificationService
	subscriptions *services.PushSubscriptionService
	now           func() time.Time
	log           *zap.Logger

	readRetentionDays   int
	unreadRetentionDays int
	idleEndpointDays    int
	optimize            bool
}

// RetentionOption customises the RetentionSweeper.
type RetentionOption func(*RetentionSweeper)

// WithRetentionClock overrides the clock used for cutoff computation.
func WithRetentionClock(now func() time.Time) RetentionOption {
	return func(s *RetentionSweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReadRetentionDays adjusts how long read notifications are kept.
func WithReadRetentionDays(days int) RetentionOption {
	return func(s *RetentionSweeper) {
		if days > 0 {
			s.readRetentionDays = days
		}
	}
}

// WithUnreadRetentionDays adjusts how long unread notifications are kept.
func WithUnreadRetentionDays(days int) RetentionOption {
	return func(s *RetentionSweeper) {
		if days > 0 {
			s.unreadRetentionDays = days
		}
	}
}

// WithIdleEndpointDays adjusts the idle threshold after which push
// endpoints are considered stale.
func WithIdleEndpointDays(days int) RetentionOption {
	return func(s *RetentionSweeper) {
		if days > 0 {
			s.idleEndpointDays = days
		}
	}
}

// WithOptimize toggles the best-effort storage maintenance step.
func WithOptimize(enabled bool) RetentionOption {
	return func(s *RetentionSweeper) {
		s.optimize = enabled
	}
}

// NewRetentionSweeper constructs a RetentionSweeper with default thresholds.
func NewRetentionSweeper(
	db *gorm.DB,
	notifications *services.NotificationService,
	subscriptions *services.PushSubscriptionService,
	opts ...RetentionOption,
) (*RetentionSweeper, error) {
	if db == nil {
		return nil, errors.New("retention sweeper: db is required")
	}
	if notifications == nil {
		return nil, errors.New("retention sweeper: notification service is required")
	}
	if subscriptions == nil {
		return nil, errors.New("retention sweeper: push subscription service is required")
	}

	s := &RetentionSweeper{
		db:                  db,
		notifications:       notifications,
		subscriptions:       subscriptions,
		now:                 time.Now,
		log:                 logger.WithModule("sweep.retention"),
		readRetentionDays:   defaultReadRetentionDays,
		unreadRetentionDays: defaultUnreadRetentionDays,
		idleEndpointDays:    defaultIdleEndpointDays,
		optimize:            true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RetentionResult reports what each independent step removed.
type RetentionResult struct {
	ReadPurged           int64 `json:"read_purged"`
	UnreadPurged         int64 `json:"unread_purged"`
	EndpointsDeactivated int64 `json:"endpoints_deactivated"`
	Optimized            bool  `json:"optimized"`
}

// Run executes all retention steps. Steps are independent; a failing step
// is captured in the aggregate error without blocking the others.
func (s *RetentionSweeper) Run(ctx context.Context) (RetentionResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now().UTC()
	var result RetentionResult
	var errs error

	readCutoff := now.AddDate(0, 0, -s.readRetentionDays)
	if purged, err := s.notifications.PurgeReadBefore(ctx, readCutoff); err != nil {
		s.log.Error("purge read notifications failed", zap.Error(err))
		errs = multierr.Append(errs, err)
	} else {
		result.ReadPurged = purged
	}

	unreadCutoff := now.AddDate(0, 0, -s.unreadRetentionDays)
	if purged, err := s.notifications.PurgeUnreadBefore(ctx, unreadCutoff); err != nil {
		s.log.Error("purge unread notifications failed", zap.Error(err))
		errs = multierr.Append(errs, err)
	} else {
		result.UnreadPurged = purged
	}

	idleCutoff := now.AddDate(0, 0, -s.idleEndpointDays)
	if deactivated, err := s.subscriptions.DeactivateIdleSince(ctx, idleCutoff); err != nil {
		s.log.Error("deactivate idle endpoints failed", zap.Error(err))
		errs = multierr.Append(errs, err)
	} else {
		result.EndpointsDeactivated = deactivated
	}

	// Storage maintenance is best effort: failures are logged, never fatal.
	if s.optimize {
		if err := database.Optimize(ctx, s.db); err != nil {
			s.log.Warn("storage optimize failed", zap.Error(err))
		} else {
			result.Optimized = true
		}
	}

	outcome := "ok"
	if errs != nil {
		outcome = "error"
	}
	metrics.SweepRuns.WithLabelValues("retention", outcome).Inc()

	s.log.Info("retention sweep finished",
		zap.Int64("read_purged", result.ReadPurged),
		zap.Int64("unread_purged", result.UnreadPurged),
		zap.Int64("endpoints_deactivated", result.EndpointsDeactivated),
		zap.Bool("optimized", result.Optimized))

	return result, errs
}
