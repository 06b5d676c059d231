package push

import (
	"context"

	"github.com/subwatch/subwatch/internal/models"
)

// Outcome classifies a single delivery attempt.
type Outcome string

const (
	// OutcomeDelivered means the push service accepted the message.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeExpired means the endpoint is permanently gone (HTTP 404/410)
	// and the subscription should be deactivated.
	OutcomeExpired Outcome = "expired"
	// OutcomeTransientError covers every other failure. The engine does not
	// retry; the durable record is marked failed instead.
	OutcomeTransientError Outcome = "transient_error"
)

// Payload is the JSON document the browser service worker renders.
type Payload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Type  string         `json:"type"`
	URL   string         `json:"url,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Result reports how a delivery attempt ended. Err carries detail for
// logging only; callers branch on Outcome.
type Result struct {
	Outcome Outcome
	Err     error
}

// Transport delivers a payload to one registered endpoint and classifies
// the outcome. Implementations are expected to enforce their own timeouts.
type Transport interface {
	Deliver(ctx context.Context, sub models.PushSubscription, payload Payload) Result
}
