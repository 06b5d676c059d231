package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/subwatch/subwatch/internal/models"
	apperrors "github.com/subwatch/subwatch/pkg/errors"
	"github.com/subwatch/subwatch/pkg/metrics"
)

// PushSubscriptionService manages the registry of browser push endpoints.
type PushSubscriptionService struct {
	db *gorm.DB
}

// NewPushSubscriptionService constructs a PushSubscriptionService.
func NewPushSubscriptionService(db *gorm.DB) (*PushSubscriptionService, error) {
	if db == nil {
		return nil, errors.New("push subscription service: db is required")
	}
	return &PushSubscriptionService{db: db}, nil
}

// UpsertSubscriptionInput carries a browser registration.
type UpsertSubscriptionInput struct {
	UserID    string
	Endpoint  string
	P256dh    string
	Auth      string
	UserAgent string
}

// Upsert registers an endpoint for a user. Re-registration of the same
// endpoint refreshes the credential material and reactivates the row in
// place, keeping at most one row per (user, endpoint).
func (s *PushSubscriptionService) Upsert(ctx context.Context, input UpsertSubscriptionInput) (*models.PushSubscription, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	endpoint := strings.TrimSpace(input.Endpoint)
	if userID == "" || endpoint == "" {
		return nil, errors.New("push subscription service: user id and endpoint are required")
	}
	if input.P256dh == "" || input.Auth == "" {
		return nil, apperrors.NewBadRequest("subscription keys are required")
	}

	record := models.PushSubscription{
		UserID:    userID,
		Endpoint:  endpoint,
		P256dh:    input.P256dh,
		Auth:      input.Auth,
		UserAgent: strings.TrimSpace(input.UserAgent),
		IsActive:  true,
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "user_agent", "is_active", "updated_at"}),
		}).
		Create(&record).Error; err != nil {
		return nil, fmt.Errorf("push subscription service: upsert: %w", err)
	}

	var stored models.PushSubscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		First(&stored).Error; err != nil {
		return nil, fmt.Errorf("push subscription service: load subscription: %w", err)
	}

	s.refreshActiveGauge(ctx)
	return &stored, nil
}

// ListActive returns the active endpoints registered for a user.
func (s *PushSubscriptionService) ListActive(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	ctx = ensureContext(ctx)

	var rows []models.PushSubscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("push subscription service: list active: %w", err)
	}
	return rows, nil
}

// Deactivate logically removes an endpoint. Idempotent: deactivating an
// already-inactive or unknown endpoint is a no-op.
func (s *PushSubscriptionService) Deactivate(ctx context.Context, endpoint string) error {
	ctx = ensureContext(ctx)

	if err := s.db.WithContext(ctx).
		Model(&models.PushSubscription{}).
		Where("endpoint = ?", endpoint).
		Update("is_active", false).Error; err != nil {
		return fmt.Errorf("push subscription service: deactivate: %w", err)
	}

	s.refreshActiveGauge(ctx)
	return nil
}

// DeactivateForUser removes an endpoint registration owned by the user.
func (s *PushSubscriptionService) DeactivateForUser(ctx context.Context, userID, endpoint string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.PushSubscription{}).
		Where("user_id = ? AND endpoint = ? AND is_active = ?", userID, endpoint, true).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("push subscription service: deactivate for user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.refreshActiveGauge(ctx)
	return nil
}

// DeactivateMany removes a batch of subscriptions by id.
func (s *PushSubscriptionService) DeactivateMany(ctx context.Context, ids []string) (int64, error) {
	ctx = ensureContext(ctx)

	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.PushSubscription{}).
		Where("id IN ?", ids).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("push subscription service: deactivate many: %w", result.Error)
	}

	s.refreshActiveGauge(ctx)
	return result.RowsAffected, nil
}

// DeactivateIdleSince deactivates endpoints not used since cutoff. They are
// treated as probably stale rather than deleted so history survives.
func (s *PushSubscriptionService) DeactivateIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.PushSubscription{}).
		Where("is_active = ? AND updated_at < ?", true, cutoff).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("push subscription service: deactivate idle: %w", result.Error)
	}

	s.refreshActiveGauge(ctx)
	return result.RowsAffected, nil
}

// TouchUsed bumps updated_at after a successful delivery so the idle
// retention sweep treats the endpoint as live.
func (s *PushSubscriptionService) TouchUsed(ctx context.Context, ids []string) error {
	ctx = ensureContext(ctx)

	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).
		Model(&models.PushSubscription{}).
		Where("id IN ?", ids).
		Update("updated_at", time.Now().UTC()).Error; err != nil {
		return fmt.Errorf("push subscription service: touch used: %w", err)
	}
	return nil
}

func (s *PushSubscriptionService) refreshActiveGauge(ctx context.Context) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.PushSubscription{}).
		Where("is_active = ?", true).
		Count(&count).Error; err != nil {
		return
	}
	metrics.ActiveSubscriptions.Set(float64(count))
}
