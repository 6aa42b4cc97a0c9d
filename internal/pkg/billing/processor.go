package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/internal/pkg/entitlements"
)

// Processor interprets stored billing events and applies their effect to
// subscription state. Failures are isolated per event: the event row is
// marked failed and the error never propagates to the HTTP layer.
type Processor struct {
	svc *Service
	db  *gorm.DB
}

// NewProcessor creates a processor sharing the service's repository.
func NewProcessor(svc *Service, db *gorm.DB) *Processor {
	return &Processor{svc: svc, db: db}
}

// NewProcessorFromDB is a convenience constructor for handlers and jobs.
func NewProcessorFromDB(db *gorm.DB) *Processor {
	return NewProcessor(NewServiceFromDB(db), db)
}

// Process applies a pending event and finalizes its status. The returned
// error mirrors what was recorded on the event row; callers log it but must
// not surface it to the provider once the event is durably stored.
func (p *Processor) Process(ctx context.Context, event *models.BillingEvent) error {
	ne, err := p.normalize(event)
	if err != nil {
		_ = p.svc.MarkEventProcessed(ctx, event.ID, err)
		return err
	}

	if ne.Kind == EventUnknown {
		// Unknown event types are not an error: mark processed so failure
		// accounting stays meaningful, mutate nothing.
		log.Infof("[Billing] Ignoring unhandled %s event type %q (event %d)", event.Provider, event.EventType, event.ID)
		_ = p.svc.MarkEventProcessed(ctx, event.ID, nil)
		return nil
	}

	if err := p.Apply(ctx, ne); err != nil {
		_ = p.svc.MarkEventProcessed(ctx, event.ID, err)
		return err
	}
	_ = p.svc.MarkEventProcessed(ctx, event.ID, nil)
	return nil
}

func (p *Processor) normalize(event *models.BillingEvent) (*NormalizedEvent, error) {
	switch event.Provider {
	case models.BillingProviderLemonSqueezy:
		return ParseLemonSqueezyEvent(event.EventType, []byte(event.PayloadJSON))
	case models.BillingProviderPolar:
		return ParsePolarEvent([]byte(event.PayloadJSON))
	default:
		return nil, fmt.Errorf("unsupported billing provider: %s", event.Provider)
	}
}

// Apply mutates subscription state for a normalized event under the
// last-write-wins-by-provider-time rule and reconciles the owner's plan.
func (p *Processor) Apply(ctx context.Context, ne *NormalizedEvent) error {
	if strings.TrimSpace(ne.ProviderSubscriptionID) == "" {
		return errors.New("event carries no subscription identifier")
	}

	repo := p.svc.Repo()
	sub, err := repo.GetSubscription(ne.Provider, ne.ProviderSubscriptionID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		created, sub2, cerr := p.createFromEvent(ne)
		if cerr != nil {
			return cerr
		}
		if created {
			return p.reconcileOwner(ctx, sub2.UserID)
		}
		// Lost the insert race; re-read and fall through to the update path.
		sub, err = repo.GetSubscription(ne.Provider, ne.ProviderSubscriptionID)
		if err != nil {
			return err
		}
	}

	if ne.OccurredAt.Before(sub.LastEventAt) {
		// Stale delivery: a newer event already shaped this row. Dropping
		// it silently is the ordering contract, not a failure.
		log.Infof("[Billing] Dropping stale %s event for subscription %s (event=%s row=%s)",
			ne.Kind, ne.ProviderSubscriptionID, ne.OccurredAt, sub.LastEventAt)
		return nil
	}

	updated := p.merge(sub, ne)
	applied, err := repo.UpdateSubscriptionIfNewer(updated, ne.OccurredAt)
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent processor advanced the watermark first.
		return nil
	}
	return p.reconcileOwner(ctx, updated.UserID)
}

// createFromEvent inserts the subscription row for a first-seen external id.
// For non-creation kinds this is the out-of-order placeholder: the provider
// does not guarantee delivery order, so a cancelled/expired event may arrive
// before its created event and must still leave a correctly-stated row.
func (p *Processor) createFromEvent(ne *NormalizedEvent) (bool, *models.Subscription, error) {
	sub := &models.Subscription{
		UserID:                 ne.UserID,
		Provider:               ne.Provider,
		ProviderSubscriptionID: ne.ProviderSubscriptionID,
		PlanName:               ne.PlanName,
		ProviderPlanRef:        ne.ProviderPlanRef,
		InternalTier:           string(p.tierFor(ne)),
		Status:                 statusFor(ne),
		RenewsAt:               ne.RenewsAt,
		EndsAt:                 ne.EndsAt,
		CancellationReason:     ne.CancellationReason,
		LastEventAt:            ne.OccurredAt,
		RawPayloadJSON:         ne.RawJSON,
	}
	created, err := p.svc.Repo().CreateSubscriptionIfNotExists(sub)
	if err != nil {
		return false, nil, err
	}
	return created, sub, nil
}

func (p *Processor) merge(sub *models.Subscription, ne *NormalizedEvent) *models.Subscription {
	out := *sub
	if ne.UserID != 0 {
		out.UserID = ne.UserID
	}
	if ne.PlanName != "" {
		out.PlanName = ne.PlanName
	}
	if ne.ProviderPlanRef != "" {
		out.ProviderPlanRef = ne.ProviderPlanRef
	}
	out.InternalTier = string(p.tierFor(ne))
	if out.InternalTier == string(entitlements.TierFree) && sub.InternalTier != "" {
		// Keep a previously resolved tier when the event carries no plan data
		// (e.g. payment_failed payloads omit the variant).
		out.InternalTier = sub.InternalTier
	}
	out.Status = statusFor(ne)
	if ne.RenewsAt != nil {
		out.RenewsAt = ne.RenewsAt
	}
	if ne.EndsAt != nil {
		out.EndsAt = ne.EndsAt
	}
	if ne.CancellationReason != "" {
		out.CancellationReason = ne.CancellationReason
	}
	out.RawPayloadJSON = ne.RawJSON
	return &out
}

func (p *Processor) reconcileOwner(ctx context.Context, userID uint) error {
	if userID == 0 {
		// Placeholder rows may not know their owner yet; reconciliation
		// happens when a later event supplies the user id.
		return nil
	}
	_, err := p.svc.ReconcileUserPlan(ctx, userID)
	return err
}

// tierFor resolves the internal tier for an event, preferring the configured
// plan mapping over the plan-name substring fallback.
func (p *Processor) tierFor(ne *NormalizedEvent) entitlements.Tier {
	if ne.ProviderPlanRef != "" && p.db != nil {
		if t, err := entitlements.LookupMappedTier(p.db, ne.Provider, ne.ProviderPlanRef); err == nil {
			return t
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[Billing] Plan mapping lookup failed for %s/%s: %v", ne.Provider, ne.ProviderPlanRef, err)
		}
	}
	return entitlements.ClassifyPlanName(ne.PlanName)
}

// statusFor derives the subscription status a kind implies. Creation and
// update events trust the payload status; terminal kinds force theirs.
func statusFor(ne *NormalizedEvent) string {
	switch ne.Kind {
	case EventSubscriptionCancelled:
		return models.SubStatusCancelled
	case EventSubscriptionExpired:
		return models.SubStatusExpired
	case EventSubscriptionPaymentFailed:
		return models.SubStatusPastDue
	case EventOrderCreated:
		return models.SubStatusActive
	default:
		if s := NormalizeSubscriptionStatus(ne.Status); s != "" {
			return s
		}
		return models.SubStatusActive
	}
}

// NormalizeSubscriptionStatus maps provider status spellings onto the local
// status set. Unknown spellings return "" so callers can default.
func NormalizeSubscriptionStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return models.SubStatusActive
	case "on_trial", "trialing":
		return models.SubStatusOnTrial
	case "past_due", "unpaid":
		return models.SubStatusPastDue
	case "cancelled", "canceled":
		return models.SubStatusCancelled
	case "expired":
		return models.SubStatusExpired
	default:
		return ""
	}
}
