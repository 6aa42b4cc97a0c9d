package entitlements

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// Entitlement resolution is a pure read over subscription state, so results
// may lag subscription writes by up to the cache TTL.
const cacheTTL = 5 * time.Minute

// Entitlement is the computed feature-access view for a user. It is derived
// per request from subscription rows and never persisted.
type Entitlement struct {
	IsPro        bool   `json:"is_pro"`
	IsPremium    bool   `json:"is_premium"`
	IsSubscribed bool   `json:"is_subscribed"`
	PlanName     string `json:"plan_name"`
}

// Free is the default answer for users without an entitling subscription.
func Free() Entitlement {
	return Entitlement{}
}

func NormalizeTier(tier string) Tier {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case string(TierPro):
		return TierPro
	case string(TierPremium):
		return TierPremium
	default:
		return TierFree
	}
}

func TierRank(tier Tier) int {
	switch tier {
	case TierPremium:
		return 2
	case TierPro:
		return 1
	default:
		return 0
	}
}

// ClassifyPlanName is the fallback classification for plan names without a
// configured mapping: case-insensitive substring match, premium wins over
// pro ("Premium Plan" vs "Pro Plan" naming convention).
func ClassifyPlanName(planName string) Tier {
	name := strings.ToLower(strings.TrimSpace(planName))
	if name == "" {
		return TierFree
	}
	if strings.Contains(name, "premium") {
		return TierPremium
	}
	if strings.Contains(name, "pro") {
		return TierPro
	}
	return TierFree
}

// FromTier builds the entitlement flags for a tier and plan name.
func FromTier(tier Tier, planName string) Entitlement {
	e := Entitlement{PlanName: planName}
	switch tier {
	case TierPremium:
		e.IsPremium = true
	case TierPro:
		e.IsPro = true
	}
	e.IsSubscribed = e.IsPro || e.IsPremium
	return e
}

// Resolver answers "what can this user do right now" from persisted
// subscription state.
type Resolver struct {
	db    *gorm.DB
	cache *gocache.Cache
}

// NewResolver creates a resolver on an injected database handle.
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{
		db:    db,
		cache: gocache.New(cacheTTL, 10*time.Minute),
	}
}

// Resolve computes the current entitlement for a user. Missing or
// non-entitling subscriptions yield the free-tier answer, never an error.
func (r *Resolver) Resolve(userID uint) (Entitlement, error) {
	if userID == 0 {
		return Free(), errors.New("user_id is required")
	}

	key := cacheKey(userID)
	if cached, ok := r.cache.Get(key); ok {
		return cached.(Entitlement), nil
	}

	var subs []models.Subscription
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error; err != nil {
		return Free(), err
	}

	sub := pickCurrent(subs)
	if sub == nil || !sub.IsEntitling() {
		ent := Free()
		r.cache.Set(key, ent, cacheTTL)
		return ent, nil
	}

	ent := FromTier(r.tierFor(sub), sub.PlanName)
	r.cache.Set(key, ent, cacheTTL)
	return ent, nil
}

// Invalidate drops the cached entitlement for a user. Called by the event
// processor after subscription mutations.
func (r *Resolver) Invalidate(userID uint) {
	r.cache.Delete(cacheKey(userID))
}

// tierFor resolves a subscription's tier, preferring the mapping-derived
// tier stored at sync time over the plan-name substring fallback.
func (r *Resolver) tierFor(sub *models.Subscription) Tier {
	if t := NormalizeTier(sub.InternalTier); t != TierFree {
		return t
	}
	if sub.ProviderPlanRef != "" {
		if t, err := LookupMappedTier(r.db, sub.Provider, sub.ProviderPlanRef); err == nil {
			return t
		}
	}
	return ClassifyPlanName(sub.PlanName)
}

// pickCurrent selects the subscription the resolver should answer from.
// Multiple simultaneous rows are tolerated with deterministic precedence:
// active > on_trial > others, then most recent. The slice is expected in
// created_at DESC order.
func pickCurrent(subs []models.Subscription) *models.Subscription {
	var best *models.Subscription
	for i := range subs {
		sub := &subs[i]
		if best == nil || statusRank(sub.Status) > statusRank(best.Status) {
			best = sub
		}
	}
	return best
}

func statusRank(status string) int {
	switch status {
	case models.SubStatusActive:
		return 2
	case models.SubStatusOnTrial:
		return 1
	default:
		return 0
	}
}

// LookupMappedTier resolves a provider plan ref through the PlanMapping
// table. Returns gorm.ErrRecordNotFound when no active mapping exists.
func LookupMappedTier(db *gorm.DB, provider, providerPlanRef string) (Tier, error) {
	var m models.PlanMapping
	err := db.
		Where("provider = ? AND provider_plan_ref = ? AND is_active = ?",
			strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(providerPlanRef), true).
		First(&m).Error
	if err != nil {
		return TierFree, err
	}
	return NormalizeTier(m.InternalTier), nil
}

func cacheKey(userID uint) string {
	return fmt.Sprintf("entitlement:%d", userID)
}

var defaultResolver *Resolver

// SetupResolver initializes the process-wide resolver. Called once from the
// application bootstrap so all request paths share one cache.
func SetupResolver(db *gorm.DB) {
	defaultResolver = NewResolver(db)
}

// GetResolver returns the process-wide resolver initialized by SetupResolver.
func GetResolver() *Resolver {
	return defaultResolver
}
