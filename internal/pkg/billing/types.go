package billing

import (
	"errors"
	"time"
)

// EventKind is the closed set of billing event types the processor
// dispatches on. Anything else normalizes to EventUnknown and is ignored.
type EventKind string

const (
	EventSubscriptionCreated       EventKind = "subscription_created"
	EventSubscriptionUpdated       EventKind = "subscription_updated"
	EventSubscriptionCancelled     EventKind = "subscription_cancelled"
	EventSubscriptionExpired       EventKind = "subscription_expired"
	EventSubscriptionPaymentFailed EventKind = "subscription_payment_failed"
	EventOrderCreated              EventKind = "order_created"
	EventUnknown                   EventKind = "unknown"
)

// Sentinel errors surfaced by the webhook receiver path.
var (
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrMissingConfiguration = errors.New("webhook secret is not configured")
	ErrMalformedPayload     = errors.New("malformed webhook payload")

	// ErrSubscriptionGone means the provider no longer knows the
	// subscription; a retry cannot recover it.
	ErrSubscriptionGone = errors.New("subscription no longer exists at provider")
)

// NormalizedEvent is the provider-agnostic shape the processor applies to
// subscription state. Provider payload parsers produce it at the boundary so
// unrecognized shapes fail closed before any business logic runs.
type NormalizedEvent struct {
	Kind                   EventKind
	Provider               string
	ProviderEventID        string
	ProviderSubscriptionID string
	UserID                 uint
	PlanName               string
	ProviderPlanRef        string
	Status                 string
	RenewsAt               *time.Time
	EndsAt                 *time.Time
	CancellationReason     string
	OccurredAt             time.Time
	RawJSON                string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
