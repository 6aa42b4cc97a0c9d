package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderLemonSqueezy = "lemonsqueezy"
	BillingProviderPolar        = "polar"
)

// BillingEvent processing statuses. failed_permanent is terminal: the
// reconcile sweep no longer picks the event up.
const (
	EventStatusPending         = "pending"
	EventStatusProcessed       = "processed"
	EventStatusFailed          = "failed"
	EventStatusFailedPermanent = "failed_permanent"
)

// BillingEvent stores one inbound provider webhook delivery with
// deduplication metadata for idempotent processing. Rows are never
// deleted by request handlers; the archive job exports and prunes them
// after the retention window.
type BillingEvent struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Provider          string     `gorm:"type:varchar(20);not null;index:ux_billing_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID   string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType         string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON       string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid    bool       `gorm:"default:false;index" json:"signature_valid"`
	Status            string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ProcessedAt       *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError   string     `gorm:"type:text" json:"processing_error"`
	ReconcileAttempts int        `gorm:"not null;default:0" json:"reconcile_attempts"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPending reports whether the event still awaits processing.
func (e *BillingEvent) IsPending() bool {
	return e.Status == EventStatusPending
}
