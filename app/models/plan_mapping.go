package models

import "time"

// PlanMapping maps provider-specific plan references (variant/price IDs or
// plan names) to internal entitlement tiers. Configured once per deployment
// so tier classification does not depend on plan-name spelling.
type PlanMapping struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:ux_plan_mappings_ref,unique,priority:1;index" json:"provider"`
	ProviderPlanRef string    `gorm:"type:varchar(191);not null;index:ux_plan_mappings_ref,unique,priority:2" json:"provider_plan_ref"`
	InternalTier    string    `gorm:"type:varchar(50);not null;default:'free';index" json:"internal_tier"`
	IsActive        bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
