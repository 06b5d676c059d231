package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/subwatch/subwatch/internal/models"
	"github.com/subwatch/subwatch/internal/notify"
	"github.com/subwatch/subwatch/internal/push"
	"github.com/subwatch/subwatch/pkg/logger"
	"github.com/subwatch/subwatch/pkg/metrics"
)

const (
	defaultChunkSize  = 10
	defaultChunkDelay = 500 * time.Millisecond
)

// DeliveryService composes the notification store, the push endpoint
// registry, and the push transport into "create record, attempt push,
// update status" as one unit. The durable record is the source of truth;
// push delivery is best effort.
type DeliveryService struct {
	notifications *NotificationService
	subscriptions *PushSubscriptionService
	preferences   *PreferenceService
	transport     push.Transport // nil degrades to record-only mode

	log        *zap.Logger
	now        func() time.Time
	sleep      func(time.Duration)
	chunkSize  int
	chunkDelay time.Duration
}

// DeliveryOption customises the DeliveryService.
type DeliveryOption func(*DeliveryService)

// WithChunkSize bounds how many users are pushed to concurrently.
func WithChunkSize(size int) DeliveryOption {
	return func(s *DeliveryService) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithChunkDelay sets the pause between batch chunks. Zero disables the
// delay, which tests rely on.
func WithChunkDelay(delay time.Duration) DeliveryOption {
	return func(s *DeliveryService) {
		if delay >= 0 {
			s.chunkDelay = delay
		}
	}
}

// WithDeliveryClock overrides the clock, primarily for testing.
func WithDeliveryClock(now func() time.Time) DeliveryOption {
	return func(s *DeliveryService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDeliveryService constructs the delivery pipeline. A nil transport is
// allowed and turns the push path into a no-op while records are still
// created.
func NewDeliveryService(
	notifications *NotificationService,
	subscriptions *PushSubscriptionService,
	preferences *PreferenceService,
	transport push.Transport,
	opts ...DeliveryOption,
) (*DeliveryService, error) {
	if notifications == nil {
		return nil, errors.New("delivery service: notification service is required")
	}
	if subscriptions == nil {
		return nil, errors.New("delivery service: push subscription service is required")
	}
	if preferences == nil {
		return nil, errors.New("delivery service: preference service is required")
	}

	s := &DeliveryService{
		notifications: notifications,
		subscriptions: subscriptions,
		preferences:   preferences,
		transport:     transport,
		log:           logger.WithModule("delivery"),
		now:           time.Now,
		sleep:         time.Sleep,
		chunkSize:     defaultChunkSize,
		chunkDelay:    defaultChunkDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SendInput describes one notification to create and (best effort) push.
type SendInput struct {
	UserID  *string // nil targets the admin audience
	Type    string
	Title   string
	Message string
	URL     string
	Data    map[string]any
	UniqKey string // computed from the content when empty
}

// SendOutcome reports the result of a SendAndSave call.
type SendOutcome struct {
	NotificationID string `json:"notification_id"`
	Created        bool   `json:"created"`
	Delivered      bool   `json:"delivered"`
}

// SendAndSave creates the durable record idempotently and, for newly
// created user-audience records, attempts push delivery to every active
// endpoint. Duplicate creations return the existing record id and never
// push again, so repeated sweep runs do not re-notify.
func (s *DeliveryService) SendAndSave(ctx context.Context, input SendInput) (*SendOutcome, error) {
	ctx = ensureContext(ctx)

	audience := models.AudienceAdmin
	if input.UserID != nil {
		audience = models.AudienceUser
	}

	uniqKey := strings.TrimSpace(input.UniqKey)
	if uniqKey == "" {
		uniqKey = s.contentKey(audience, input)
	}

	data := input.Data
	if input.URL != "" {
		if data == nil {
			data = map[string]any{}
		}
		if _, ok := data["url"]; !ok {
			data["url"] = input.URL
		}
	}

	created, err := s.notifications.CreateIfAbsent(ctx, CreateNotificationInput{
		Audience: audience,
		UserID:   input.UserID,
		Type:     input.Type,
		Title:    input.Title,
		Message:  input.Message,
		UniqKey:  uniqKey,
		Data:     data,
	})
	if err != nil {
		return nil, fmt.Errorf("delivery service: %w", err)
	}

	outcome := &SendOutcome{
		NotificationID: created.Notification.ID,
		Created:        created.Created,
	}

	// Duplicate creation is a no-op, and admin records have no push path.
	if !created.Created || audience != models.AudienceUser {
		return outcome, nil
	}

	delivered := s.pushToUser(ctx, *input.UserID, input.Type, push.Payload{
		Title: input.Title,
		Body:  input.Message,
		Type:  input.Type,
		URL:   input.URL,
		Data:  data,
	})

	status := models.StatusFailed
	var sentAt *time.Time
	if delivered {
		now := s.now().UTC()
		status = models.StatusSent
		sentAt = &now
	}

	if err := s.notifications.UpdateStatus(ctx, created.Notification.ID, status, sentAt); err != nil {
		s.log.Warn("update notification status failed",
			zap.String("notification_id", created.Notification.ID),
			zap.Error(err))
	}

	outcome.Delivered = delivered
	return outcome, nil
}

// pushToUser attempts delivery to every active endpoint for the user and
// reports overall success (at least one endpoint delivered). Expired
// endpoints are deactivated as a side effect; that deactivation sticks even
// when the overall send fails for the remaining endpoints.
func (s *DeliveryService) pushToUser(ctx context.Context, userID, eventType string, payload push.Payload) bool {
	if s.transport == nil {
		return false
	}

	allowed, err := s.preferences.Allows(ctx, userID, eventType)
	if err != nil {
		s.log.Warn("preference lookup failed", zap.String("user_id", userID), zap.Error(err))
	}
	if !allowed {
		return false
	}

	subs, err := s.subscriptions.ListActive(ctx, userID)
	if err != nil {
		s.log.Warn("list active subscriptions failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}

	var deliveredIDs []string
	for _, sub := range subs {
		result := s.transport.Deliver(ctx, sub, payload)
		metrics.PushDeliveries.WithLabelValues(string(result.Outcome)).Inc()

		switch result.Outcome {
		case push.OutcomeDelivered:
			deliveredIDs = append(deliveredIDs, sub.ID)
		case push.OutcomeExpired:
			if err := s.subscriptions.Deactivate(ctx, sub.Endpoint); err != nil {
				s.log.Warn("deactivate expired endpoint failed",
					zap.String("subscription_id", sub.ID),
					zap.Error(err))
			}
		case push.OutcomeTransientError:
			s.log.Debug("push delivery failed",
				zap.String("subscription_id", sub.ID),
				zap.Error(result.Err))
		}
	}

	if len(deliveredIDs) == 0 {
		return false
	}

	if err := s.subscriptions.TouchUsed(ctx, deliveredIDs); err != nil {
		s.log.Warn("touch delivered subscriptions failed", zap.Error(err))
	}
	return true
}

// UserResult is the per-recipient detail of a batch send.
type UserResult struct {
	UserID         string `json:"user_id"`
	NotificationID string `json:"notification_id,omitempty"`
	Created        bool   `json:"created"`
	Delivered      bool   `json:"delivered"`
	Error          string `json:"error,omitempty"`
}

// BatchResult aggregates a SendBatch run. Successful + Failed == Total.
type BatchResult struct {
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Results    []UserResult `json:"results"`
}

// SendBatch delivers one notification to many users. Recipients are
// partitioned into fixed-size chunks processed concurrently, with a fixed
// delay between chunks as the sole backpressure against the push transport
// and the store. One user's failure never aborts the batch; SendBatch never
// returns an error.
func (s *DeliveryService) SendBatch(ctx context.Context, userIDs []string, eventType, title, message string, data map[string]any) BatchResult {
	ctx = ensureContext(ctx)

	ids := normaliseIDs(userIDs)
	result := BatchResult{Total: len(ids)}
	if len(ids) == 0 {
		return result
	}

	var mu sync.Mutex
	for start := 0; start < len(ids); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		var wg sync.WaitGroup
		for _, userID := range chunk {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				userResult := s.sendToOne(ctx, userID, eventType, title, message, data)

				mu.Lock()
				defer mu.Unlock()
				if userResult.Error == "" {
					result.Successful++
				} else {
					result.Failed++
				}
				result.Results = append(result.Results, userResult)
			}(userID)
		}
		wg.Wait()

		if end < len(ids) && s.chunkDelay > 0 {
			s.sleep(s.chunkDelay)
		}
	}

	return result
}

// sendToOne wraps a single batch recipient, converting panics and errors
// into a per-user failure entry.
func (s *DeliveryService) sendToOne(ctx context.Context, userID, eventType, title, message string, data map[string]any) (userResult UserResult) {
	userResult = UserResult{UserID: userID}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("batch send panicked", zap.String("user_id", userID), zap.Any("panic", r))
			userResult.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	outcome, err := s.SendAndSave(ctx, SendInput{
		UserID:  &userID,
		Type:    eventType,
		Title:   title,
		Message: message,
		Data:    data,
	})
	if err != nil {
		s.log.Warn("batch send failed", zap.String("user_id", userID), zap.Error(err))
		userResult.Error = err.Error()
		return userResult
	}

	userResult.NotificationID = outcome.NotificationID
	userResult.Created = outcome.Created
	userResult.Delivered = outcome.Delivered
	return userResult
}

// contentKey fingerprints ad hoc sends (admin broadcasts, direct calls)
// that carry no precomputed dedup key: same recipient, content, and day
// collapse to one record.
func (s *DeliveryService) contentKey(audience string, input SendInput) string {
	subject := "admin"
	if input.UserID != nil {
		subject = *input.UserID
	}
	return notify.Key(
		input.Type,
		audience,
		subject,
		s.now().UTC().Format("2006-01-02"),
		input.Title,
		input.Message,
	)
}
