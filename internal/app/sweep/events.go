package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/subwatch/subwatch/internal/models"
	"github.com/subwatch/subwatch/internal/notify"
	"github.com/subwatch/subwatch/internal/services"
	"github.com/subwatch/subwatch/pkg/logger"
	"github.com/subwatch/subwatch/pkg/metrics"
)

var (
	defaultRenewalMilestones = []int{7, 3, 1}
	defaultPaymentMilestones = []int{3, 1}
)

// EventSweeper periodically re-derives which business events are due and
// ensures a notification exists for each. Dedup keys make re-running a
// sweep on the same day a no-op.
type EventSweeper struct {
	db       *gorm.DB
	delivery *services.DeliveryService
	now      func() time.Time
	log      *zap.Logger

	renewalMilestones []int
	paymentMilestones []int
}

// EventSweeperOption customises the EventSweeper.
type EventSweeperOption func(*EventSweeper)

// WithClock overrides the clock used to compute target dates.
func WithClock(now func() time.Time) EventSweeperOption {
	return func(s *EventSweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRenewalMilestones sets how many days before a subscription's end
// date reminders fire.
func WithRenewalMilestones(days []int) EventSweeperOption {
	return func(s *EventSweeper) {
		if len(days) > 0 {
			s.renewalMilestones = days
		}
	}
}

// WithPaymentMilestones sets how many days before an invoice due date
// reminders fire.
func WithPaymentMilestones(days []int) EventSweeperOption {
	return func(s *EventSweeper) {
		if len(days) > 0 {
			s.paymentMilestones = days
		}
	}
}

// NewEventSweeper constructs an EventSweeper.
func NewEventSweeper(db *gorm.DB, delivery *services.DeliveryService, opts ...EventSweeperOption) (*EventSweeper, error) {
	if db == nil {
		return nil, errors.New("event sweeper: db is required")
	}
	if delivery == nil {
		return nil, errors.New("event sweeper: delivery service is required")
	}

	s := &EventSweeper{
		db:                db,
		delivery:          delivery,
		now:               time.Now,
		log:               logger.WithModule("sweep.events"),
		renewalMilestones: defaultRenewalMilestones,
		paymentMilestones: defaultPaymentMilestones,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EventSweepResult counts the events each category discovered.
type EventSweepResult struct {
	Renewals    int `json:"renewals"`
	Expirations int `json:"expirations"`
	PaymentsDue int `json:"payments_due"`
	Overdue     int `json:"overdue"`
}

// Run executes every category. A failure in one category is logged and
// never prevents the others from running; Run itself never fails.
func (s *EventSweeper) Run(ctx context.Context) EventSweepResult {
	if ctx == nil {
		ctx = context.Background()
	}

	var result EventSweepResult

	run := func(job string, fn func(context.Context) (int, error)) int {
		count, err := fn(ctx)
		if err != nil {
			s.log.Error("sweep category failed", zap.String("job", job), zap.Error(err))
			metrics.SweepRuns.WithLabelValues(job, "error").Inc()
			return count
		}
		metrics.SweepRuns.WithLabelValues(job, "ok").Inc()
		return count
	}

	result.Renewals = run("renewals", s.sweepRenewals)
	result.Expirations = run("expirations", s.sweepExpirations)
	result.PaymentsDue = run("payments_due", s.sweepPaymentsDue)
	result.Overdue = run("overdue", s.sweepOverdue)

	s.log.Info("event sweep finished",
		zap.Int("renewals", result.Renewals),
		zap.Int("expirations", result.Expirations),
		zap.Int("payments_due", result.PaymentsDue),
		zap.Int("overdue", result.Overdue))

	return result
}

// sweepRenewals fires one reminder per milestone for active subscriptions
// whose end date lands exactly N days from today. The exact-date match
// means a subscription is reminded once per milestone, not on every day
// inside a sliding window.
func (s *EventSweeper) sweepRenewals(ctx context.Context) (int, error) {
	today := s.today()
	count := 0

	for _, daysAhead := range s.renewalMilestones {
		if daysAhead <= 0 {
			continue
		}
		target := today.AddDate(0, 0, daysAhead)

		subs, err := s.subscriptionsEndingOn(ctx, target)
		if err != nil {
			return count, fmt.Errorf("renewals milestone %d: %w", daysAhead, err)
		}

		for _, sub := range subs {
			s.emitSubscriptionEvent(ctx, notify.TypeRenewalUpcoming, sub, daysAhead, target)
			count++
		}
	}
	return count, nil
}

// sweepExpirations fires on the end date itself (milestone zero).
func (s *EventSweeper) sweepExpirations(ctx context.Context) (int, error) {
	today := s.today()

	subs, err := s.subscriptionsEndingOn(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("expirations: %w", err)
	}

	for _, sub := range subs {
		s.emitSubscriptionEvent(ctx, notify.TypeSubscriptionExpired, sub, 0, today)
	}
	return len(subs), nil
}

// sweepPaymentsDue fires one reminder per milestone for pending invoices
// due exactly N days from today.
func (s *EventSweeper) sweepPaymentsDue(ctx context.Context) (int, error) {
	today := s.today()
	count := 0

	for _, daysAhead := range s.paymentMilestones {
		if daysAhead <= 0 {
			continue
		}
		target := today.AddDate(0, 0, daysAhead)

		var invoices []models.Invoice
		if err := s.db.WithContext(ctx).
			Preload("User").
			Where("status = ? AND due_date >= ? AND due_date < ?",
				models.InvoiceStatusPending, target, target.AddDate(0, 0, 1)).
			Find(&invoices).Error; err != nil {
			return count, fmt.Errorf("payments milestone %d: %w", daysAhead, err)
		}

		for _, invoice := range invoices {
			s.emitInvoiceEvent(ctx, notify.TypePaymentDue, invoice, daysAhead, 0, invoice.DueDate, daysAhead)
			count++
		}
	}
	return count, nil
}

// sweepOverdue reminds about pending invoices past their due date. The
// condition recurs daily, so the dedup key embeds today's date: one
// reminder per invoice per day, safe against racing sweep instances.
func (s *EventSweeper) sweepOverdue(ctx context.Context) (int, error) {
	today := s.today()

	var invoices []models.Invoice
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("status = ? AND due_date < ?", models.InvoiceStatusPending, today).
		Find(&invoices).Error; err != nil {
		return 0, fmt.Errorf("overdue: %w", err)
	}

	for _, invoice := range invoices {
		daysOverdue := int(today.Sub(dateOnly(invoice.DueDate)).Hours() / 24)
		s.emitInvoiceEvent(ctx, notify.TypeInvoiceOverdue, invoice, -1, daysOverdue, today, 0)
	}
	return len(invoices), nil
}

// emitSubscriptionEvent creates one user-audience and one admin-audience
// record for a subscription milestone. The keys are independent so either
// record deduplicates without affecting the other.
func (s *EventSweeper) emitSubscriptionEvent(ctx context.Context, eventType string, sub models.Subscription, daysAhead int, keyDay time.Time) {
	data := notify.EventData{
		Username:         sub.User.Username,
		SubscriptionID:   sub.ID,
		SubscriptionName: sub.Name,
		DaysLeft:         daysAhead,
	}
	bag := map[string]any{"subscription_id": sub.ID}

	for _, audience := range []string{models.AudienceUser, models.AudienceAdmin} {
		content, err := notify.Render(eventType, audience, data)
		if err != nil {
			s.log.Error("render notification failed", zap.String("type", eventType), zap.Error(err))
			continue
		}

		input := services.SendInput{
			Type:    eventType,
			Title:   content.Title,
			Message: content.Message,
			URL:     content.URL,
			Data:    cloneBag(bag),
			UniqKey: notify.MilestoneKey(eventType, audience, sub.ID, keyDay, daysAhead),
		}
		if audience == models.AudienceUser {
			userID := sub.UserID
			input.UserID = &userID
		}

		if _, err := s.delivery.SendAndSave(ctx, input); err != nil {
			s.log.Warn("send sweep notification failed",
				zap.String("type", eventType),
				zap.String("audience", audience),
				zap.String("subscription_id", sub.ID),
				zap.Error(err))
		}
	}
}

// emitInvoiceEvent mirrors emitSubscriptionEvent for invoice milestones.
// A negative daysAhead selects the daily EventKey used by overdue
// reminders instead of the milestone key.
func (s *EventSweeper) emitInvoiceEvent(ctx context.Context, eventType string, invoice models.Invoice, daysAhead, daysOverdue int, keyDay time.Time, daysLeft int) {
	data := notify.EventData{
		Username:      invoice.User.Username,
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.Number,
		Amount:        invoice.Amount,
		Currency:      invoice.Currency,
		DaysLeft:      daysLeft,
		DaysOverdue:   daysOverdue,
	}
	bag := map[string]any{"invoice_id": invoice.ID}

	for _, audience := range []string{models.AudienceUser, models.AudienceAdmin} {
		content, err := notify.Render(eventType, audience, data)
		if err != nil {
			s.log.Error("render notification failed", zap.String("type", eventType), zap.Error(err))
			continue
		}

		var uniqKey string
		if daysAhead >= 0 {
			uniqKey = notify.MilestoneKey(eventType, audience, invoice.ID, keyDay, daysAhead)
		} else {
			uniqKey = notify.EventKey(eventType, audience, invoice.ID, keyDay)
		}

		input := services.SendInput{
			Type:    eventType,
			Title:   content.Title,
			Message: content.Message,
			URL:     content.URL,
			Data:    cloneBag(bag),
			UniqKey: uniqKey,
		}
		if audience == models.AudienceUser {
			userID := invoice.UserID
			input.UserID = &userID
		}

		if _, err := s.delivery.SendAndSave(ctx, input); err != nil {
			s.log.Warn("send sweep notification failed",
				zap.String("type", eventType),
				zap.String("audience", audience),
				zap.String("invoice_id", invoice.ID),
				zap.Error(err))
		}
	}
}

func (s *EventSweeper) subscriptionsEndingOn(ctx context.Context, day time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("status = ? AND end_date >= ? AND end_date < ?",
			models.SubscriptionStatusActive, day, day.AddDate(0, 0, 1)).
		Find(&subs).Error
	return subs, err
}

func (s *EventSweeper) today() time.Time {
	return dateOnly(s.now().UTC())
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func cloneBag(bag map[string]any) map[string]any {
	out := make(map[string]any, len(bag))
	for k, v := range bag {
		out[k] = v
	}
	return out
}
