package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/subwatch/subwatch/internal/models"
	apperrors "github.com/subwatch/subwatch/pkg/errors"
	"github.com/subwatch/subwatch/pkg/metrics"
)

// NotificationService is the system of record for notification entities.
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

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	Audience string
	UserID   *string // required iff Audience == user
	Type     string
	Title    string
	Message  string
	UniqKey  string
	Data     map[string]any
}

// CreateResult reports whether the insert actually happened. Created=false
// means a record with the same uniq_key already existed; the existing
// record is returned and no error is raised.
type CreateResult struct {
	Notification models.Notification
	Created      bool
}

// CreateIfAbsent inserts a notification record, relying on the uniq_key
// unique constraint for idempotency. Duplicate attempts are no-ops, which
// keeps repeated sweep runs and racing scheduler instances safe without
// in-process locking.
func (s *NotificationService) CreateIfAbsent(ctx context.Context, input CreateNotificationInput) (*CreateResult, error) {
	ctx = ensureContext(ctx)

	uniqKey := strings.TrimSpace(input.UniqKey)
	if uniqKey == "" {
		return nil, errors.New("notification service: uniq key is required")
	}
	if strings.TrimSpace(input.Type) == "" {
		return nil, errors.New("notification service: type is required")
	}

	audience := input.Audience
	switch audience {
	case models.AudienceUser:
		if input.UserID == nil || strings.TrimSpace(*input.UserID) == "" {
			return nil, errors.New("notification service: user id is required for user audience")
		}
	case models.AudienceAdmin:
		if input.UserID != nil {
			return nil, errors.New("notification service: admin notifications have no owning user")
		}
	default:
		return nil, fmt.Errorf("notification service: invalid audience %q", input.Audience)
	}

	record := models.Notification{
		Audience: audience,
		UserID:   input.UserID,
		Type:     strings.TrimSpace(input.Type),
		Title:    strings.TrimSpace(input.Title),
		Message:  strings.TrimSpace(input.Message),
		UniqKey:  uniqKey,
		Status:   models.StatusPending,
	}

	if input.Data != nil {
		raw, err := json.Marshal(input.Data)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal data: %w", err)
		}
		record.Data = datatypes.JSON(raw)
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uniq_key"}},
			DoNothing: true,
		}).
		Create(&record)
	if result.Error != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		var existing models.Notification
		if err := s.db.WithContext(ctx).
			Where("uniq_key = ?", uniqKey).
			First(&existing).Error; err != nil {
			return nil, fmt.Errorf("notification service: load existing notification: %w", err)
		}
		return &CreateResult{Notification: existing, Created: false}, nil
	}

	metrics.NotificationsCreated.WithLabelValues(record.Type, record.Audience).Inc()
	return &CreateResult{Notification: record, Created: true}, nil
}

// UpdateStatus records the push attempt outcome. Only pending records are
// touched, so the pending -> sent|failed transition happens at most once.
func (s *NotificationService) UpdateStatus(ctx context.Context, id, status string, sentAt *time.Time) error {
	ctx = ensureContext(ctx)

	if status != models.StatusSent && status != models.StatusFailed {
		return fmt.Errorf("notification service: invalid status transition to %q", status)
	}

	updates := map[string]any{"status": status}
	if sentAt != nil {
		updates["sent_at"] = *sentAt
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("notification service: update status: %w", err)
	}
	return nil
}

// ExistsKey reports whether a record with the supplied uniq_key exists.
func (s *NotificationService) ExistsKey(ctx context.Context, uniqKey string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("uniq_key = ?", uniqKey).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("notification service: exists key: %w", err)
	}
	return count > 0, nil
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	Type       string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// ListForUser returns notifications for the supplied user ordered by
// recency, plus the total matching count for pagination.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]models.Notification, int64, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, 0, errors.New("notification service: user id is required")
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
		Model(&models.Notification{}).
		Where("audience = ? AND user_id = ?", models.AudienceUser, userID)

	if t := strings.TrimSpace(input.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	if input.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: count notifications: %w", err)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return rows, total, nil
}

// CountUnread returns the unread notification count for a user.
func (s *NotificationService) CountUnread(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("audience = ? AND user_id = ? AND read_at IS NULL", models.AudienceUser, userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}
	return count, nil
}

// MarkRead stamps read_at on a notification owned by the supplied user.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	var record models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}

	if record.ReadAt != nil {
		return &record, nil
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&record).
		Update("read_at", now).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}

	record.ReadAt = &now
	return &record, nil
}

// MarkAllRead stamps read_at on every unread notification for the user.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("audience = ? AND user_id = ? AND read_at IS NULL", models.AudienceUser, userID).
		Update("read_at", time.Now().UTC())
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// DeleteAllRead clears every already-read notification for the user.
func (s *NotificationService) DeleteAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("audience = ? AND user_id = ? AND read_at IS NOT NULL", models.AudienceUser, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: delete read notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// NotificationStats summarises stored records for the admin dashboard.
type NotificationStats struct {
	Total    int64            `json:"total"`
	Unread   int64            `json:"unread"`
	ByStatus map[string]int64 `json:"by_status"`
}

// Stats counts stored notifications overall, unread, and per push status.
func (s *NotificationService) Stats(ctx context.Context) (*NotificationStats, error) {
	ctx = ensureContext(ctx)

	stats := &NotificationStats{ByStatus: make(map[string]int64)}

	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("notification service: count total: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("read_at IS NULL").
		Count(&stats.Unread).Error; err != nil {
		return nil, fmt.Errorf("notification service: count unread: %w", err)
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: count by status: %w", err)
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
	}

	return stats, nil
}

// PurgeReadBefore deletes read records whose read_at is older than cutoff.
func (s *NotificationService) PurgeReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: purge read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PurgeUnreadBefore deletes unread records created before cutoff. Unread
// retention runs longer than read retention since the user never saw them.
func (s *NotificationService) PurgeUnreadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("read_at IS NULL AND created_at < ?", cutoff).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: purge unread: %w", result.Error)
	}
	return result.RowsAffected, nil
}
