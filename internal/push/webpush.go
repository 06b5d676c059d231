package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/subwatch/subwatch/internal/models"
)

// Config holds the process-wide Web Push (VAPID) settings. The key pair is
// initialised once at start; when absent the push path is skipped entirely
// and notifications remain record-only.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string // contact address required by the push services
	TTLSeconds      int
}

// Enabled reports whether the transport can be constructed from this config.
func (c Config) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// WebPushTransport delivers payloads over the Web Push protocol.
type WebPushTransport struct {
	cfg Config
}

// NewWebPushTransport builds a transport from the supplied VAPID material.
func NewWebPushTransport(cfg Config) (*WebPushTransport, error) {
	if !cfg.Enabled() {
		return nil, errors.New("webpush: VAPID key pair is required")
	}
	if cfg.Subscriber == "" {
		return nil, errors.New("webpush: subscriber contact is required")
	}
	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = 86400
	}
	return &WebPushTransport{cfg: cfg}, nil
}

// GenerateVAPIDKeys creates a fresh VAPID key pair for first-time setup.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}

// Deliver sends the payload to one endpoint. HTTP 404/410 from the push
// service marks the endpoint expired; anything else non-2xx is transient.
func (t *WebPushTransport) Deliver(ctx context.Context, sub models.PushSubscription, payload Payload) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Outcome: OutcomeTransientError, Err: fmt.Errorf("webpush: marshal payload: %w", err)}
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		Subscriber:      t.cfg.Subscriber,
		VAPIDPublicKey:  t.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: t.cfg.VAPIDPrivateKey,
		TTL:             t.cfg.TTLSeconds,
	})
	if err != nil {
		return Result{Outcome: OutcomeTransientError, Err: fmt.Errorf("webpush: send: %w", err)}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return Result{Outcome: OutcomeExpired}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{Outcome: OutcomeDelivered}
	default:
		return Result{
			Outcome: OutcomeTransientError,
			Err:     fmt.Errorf("webpush: push service returned status %d", resp.StatusCode),
		}
	}
}
