package models

import "time"

// Subscription statuses as normalized from provider events.
const (
	SubStatusActive    = "active"
	SubStatusOnTrial   = "on_trial"
	SubStatusPastDue   = "past_due"
	SubStatusCancelled = "cancelled"
	SubStatusExpired   = "expired"
)

// Subscription mirrors a provider subscription and maps it to an internal
// tier used by entitlements. Cancellation is a state, not a row removal.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"not null;index" json:"user_id"`
	Provider               string     `gorm:"type:varchar(20);not null;index:ux_subscriptions_provider_subid,unique,priority:1;index:idx_subscriptions_provider_status,priority:1" json:"provider"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;index:ux_subscriptions_provider_subid,unique,priority:2" json:"provider_subscription_id"`
	PlanName               string     `gorm:"type:varchar(191);not null;default:''" json:"plan_name"`
	ProviderPlanRef        string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_plan_ref"`
	InternalTier           string     `gorm:"type:varchar(50);not null;default:'free';index" json:"internal_tier"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active';index:idx_subscriptions_provider_status,priority:2" json:"status"`
	RenewsAt               *time.Time `gorm:"type:timestamp;default:null" json:"renews_at,omitempty"`
	EndsAt                 *time.Time `gorm:"type:timestamp;default:null" json:"ends_at,omitempty"`
	CancellationReason     string     `gorm:"type:varchar(255);default:''" json:"cancellation_reason"`
	LastEventAt            time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"last_event_at"`
	RawPayloadJSON         string     `gorm:"type:longtext" json:"raw_payload_json"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitling reports whether the status grants access to paid features.
func (s *Subscription) IsEntitling() bool {
	switch s.Status {
	case SubStatusActive, SubStatusOnTrial:
		return true
	default:
		return false
	}
}
