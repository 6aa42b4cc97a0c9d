package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/internal/pkg/billing"
	"github.com/mkarst/CertForge/internal/pkg/database"
)

// maxReconcileAttempts caps how many sweeps may retry one failed event
// before it is parked as failed_permanent.
const maxReconcileAttempts = 5

// subscriptionFetcher is the provider API slice the reconcile job needs.
type subscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*billing.NormalizedEvent, error)
}

// newProviderFetcher builds the live-state client for a provider. Package
// variable so tests can substitute a fake.
var newProviderFetcher = func(provider string) subscriptionFetcher {
	switch provider {
	case models.BillingProviderLemonSqueezy:
		return billing.NewLemonSqueezyClientFromEnv()
	case models.BillingProviderPolar:
		return billing.NewPolarClientFromEnv()
	default:
		return nil
	}
}

// processBillingReconcileJob repairs one failed billing event. It first
// replays the stored payload; when that still fails it fetches the live
// subscription state from the provider API and applies that instead.
func (q *Queue) processBillingReconcileJob(ctx context.Context, job *Job) error {
	payload, err := BillingReconcileJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid reconcile payload: %w", err)
	}

	db := database.GetDB()
	svc := billing.NewServiceFromDB(db)

	event, err := svc.Repo().GetEventByID(payload.BillingEventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Archived or pruned since enqueueing. Nothing to repair.
			return nil
		}
		return err
	}
	if event.Status == models.EventStatusProcessed {
		return nil
	}

	processor := billing.NewProcessor(svc, db)
	replayErr := processor.Process(ctx, event)
	if replayErr == nil {
		log.Infof("[Reconcile] Event %d repaired by replay", event.ID)
		return nil
	}

	subscriptionID := subscriptionIDFromEvent(event)
	if subscriptionID == "" {
		// A stored payload never changes, so a payload that neither
		// replays nor yields a subscription id can never be repaired.
		return parkEvent(svc, event, fmt.Errorf("replay failed and payload carries no subscription id: %w", replayErr))
	}

	fetcher := newProviderFetcher(event.Provider)
	if fetcher == nil {
		return reconcileFailure(svc, event, fmt.Errorf("no provider client for %s: %w", event.Provider, replayErr))
	}

	live, err := fetcher.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionGone) {
			return parkEvent(svc, event, err)
		}
		return reconcileFailure(svc, event, fmt.Errorf("live state fetch failed: %v (replay error: %w)", err, replayErr))
	}

	if err := processor.Apply(ctx, live); err != nil {
		return reconcileFailure(svc, event, fmt.Errorf("applying live state failed: %w", err))
	}
	if err := svc.MarkEventProcessed(ctx, event.ID, nil); err != nil {
		return err
	}
	log.Infof("[Reconcile] Event %d repaired from live provider state", event.ID)
	return nil
}

// reconcileFailure counts a failed repair attempt against the event. The
// event stays eligible for the next sweep until maxReconcileAttempts is
// reached, then it is parked as failed_permanent.
func reconcileFailure(svc *billing.Service, event *models.BillingEvent, cause error) error {
	attempts, err := svc.Repo().BumpEventReconcileAttempts(event.ID)
	if err != nil {
		return fmt.Errorf("recording reconcile attempt for event %d: %v (cause: %w)", event.ID, err, cause)
	}
	if attempts >= maxReconcileAttempts {
		return parkEvent(svc, event, fmt.Errorf("gave up after %d attempts: %w", attempts, cause))
	}
	return cause
}

// parkEvent marks an event failed_permanent so the sweep stops retrying it.
// Returns nil: the job is done, there is nothing left to retry.
func parkEvent(svc *billing.Service, event *models.BillingEvent, cause error) error {
	if err := svc.Repo().MarkEventFailedPermanent(event.ID, cause.Error()); err != nil {
		return fmt.Errorf("parking event %d: %v (cause: %w)", event.ID, err, cause)
	}
	log.Warnf("[Reconcile] Event %d parked as %s: %v", event.ID, models.EventStatusFailedPermanent, cause)
	return nil
}

// subscriptionIDFromEvent best-effort extracts the external subscription id
// from a stored event payload.
func subscriptionIDFromEvent(event *models.BillingEvent) string {
	var ne *billing.NormalizedEvent
	var err error
	switch event.Provider {
	case models.BillingProviderLemonSqueezy:
		ne, err = billing.ParseLemonSqueezyEvent(event.EventType, []byte(event.PayloadJSON))
	case models.BillingProviderPolar:
		ne, err = billing.ParsePolarEvent([]byte(event.PayloadJSON))
	}
	if err != nil || ne == nil {
		return ""
	}
	return strings.TrimPrefix(ne.ProviderSubscriptionID, "order:")
}

// EnqueueFailedBillingEvents scans for failed events and enqueues one
// reconcile job per event. Called periodically by the manager.
func (q *Queue) EnqueueFailedBillingEvents(limit int) error {
	if limit <= 0 {
		limit = 50
	}

	repo := billing.NewRepository(database.GetDB())
	events, err := repo.ListFailedEvents(limit)
	if err != nil {
		return err
	}

	for _, event := range events {
		payload := BillingReconcileJobPayload{BillingEventID: event.ID}
		if _, err := q.EnqueueJob(JobTypeBillingReconcile, payload.ToMap()); err != nil {
			return err
		}
	}
	if len(events) > 0 {
		log.Infof("[Reconcile] Enqueued %d failed events for repair", len(events))
	}
	return nil
}
