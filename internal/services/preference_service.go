package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/subwatch/subwatch/internal/models"
	"github.com/subwatch/subwatch/internal/notify"
	apperrors "github.com/subwatch/subwatch/pkg/errors"
)

// PreferenceService manages per-user push opt-out flags. An absent row
// means the notification type is enabled; only explicit opt-outs are stored
// alongside explicit re-enables.
type PreferenceService struct {
	db *gorm.DB
}

// NewPreferenceService constructs a PreferenceService.
func NewPreferenceService(db *gorm.DB) (*PreferenceService, error) {
	if db == nil {
		return nil, errors.New("preference service: db is required")
	}
	return &PreferenceService{db: db}, nil
}

// Get returns the full preference map for a user with catalog defaults
// applied for types that have no stored row.
func (s *PreferenceService) Get(ctx context.Context, userID string) (map[string]bool, error) {
	ctx = ensureContext(ctx)

	prefs := make(map[string]bool, len(notify.Types()))
	for _, t := range notify.Types() {
		prefs[t] = true
	}

	var rows []models.NotificationPreference
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("preference service: load preferences: %w", err)
	}

	for _, row := range rows {
		if _, known := prefs[row.PreferenceType]; known {
			prefs[row.PreferenceType] = row.Enabled
		}
	}
	return prefs, nil
}

// Set stores an explicit preference for one notification type.
func (s *PreferenceService) Set(ctx context.Context, userID, preferenceType string, enabled bool) error {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("preference service: user id is required")
	}
	if !notify.IsKnownType(preferenceType) {
		return apperrors.ErrUnknownNotificationType
	}

	record := models.NotificationPreference{
		UserID:         userID,
		PreferenceType: preferenceType,
		Enabled:        enabled,
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "preference_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
		}).
		Create(&record).Error; err != nil {
		return fmt.Errorf("preference service: set preference: %w", err)
	}
	return nil
}

// Allows reports whether push delivery of the supplied type is enabled for
// the user. Missing rows default to enabled.
func (s *PreferenceService) Allows(ctx context.Context, userID, preferenceType string) (bool, error) {
	ctx = ensureContext(ctx)

	var row models.NotificationPreference
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND preference_type = ?", userID, preferenceType).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return true, fmt.Errorf("preference service: load preference: %w", err)
	}
	return row.Enabled, nil
}
