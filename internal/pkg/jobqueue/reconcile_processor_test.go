package jobqueue

import (
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/internal/pkg/billing"
)

// reconcileRepo is the minimal in-memory billing repository the attempt
// bookkeeping tests need. Event methods are real, the rest are inert.
type reconcileRepo struct {
	events map[uint]*models.BillingEvent
}

func newReconcileRepo(events ...*models.BillingEvent) *reconcileRepo {
	r := &reconcileRepo{events: make(map[uint]*models.BillingEvent)}
	for _, event := range events {
		r.events[event.ID] = event
	}
	return r
}

func (r *reconcileRepo) CreateEventIfNotExists(event *models.BillingEvent) (bool, *models.BillingEvent, error) {
	return false, nil, errors.New("not implemented")
}

func (r *reconcileRepo) GetEventByID(id uint) (*models.BillingEvent, error) {
	event, ok := r.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *event
	return &cp, nil
}

func (r *reconcileRepo) MarkEventProcessed(id uint, processingError string) error {
	event, ok := r.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	event.Status = models.EventStatusProcessed
	event.ProcessingError = processingError
	return nil
}

func (r *reconcileRepo) BumpEventReconcileAttempts(id uint) (int, error) {
	event, ok := r.events[id]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	event.ReconcileAttempts++
	return event.ReconcileAttempts, nil
}

func (r *reconcileRepo) MarkEventFailedPermanent(id uint, reason string) error {
	event, ok := r.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	event.Status = models.EventStatusFailedPermanent
	event.ProcessingError = reason
	return nil
}

func (r *reconcileRepo) ListFailedEvents(limit int) ([]models.BillingEvent, error) {
	var out []models.BillingEvent
	for _, event := range r.events {
		if event.Status == models.EventStatusFailed {
			out = append(out, *event)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *reconcileRepo) ListEventsOlderThan(cutoff time.Time, limit int) ([]models.BillingEvent, error) {
	return nil, nil
}

func (r *reconcileRepo) DeleteEvents(ids []uint) error { return nil }

func (r *reconcileRepo) GetSubscription(provider, providerSubscriptionID string) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *reconcileRepo) CreateSubscriptionIfNotExists(sub *models.Subscription) (bool, error) {
	return false, errors.New("not implemented")
}

func (r *reconcileRepo) UpdateSubscriptionIfNewer(sub *models.Subscription, eventTime time.Time) (bool, error) {
	return false, errors.New("not implemented")
}

func (r *reconcileRepo) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	return nil, nil
}

func (r *reconcileRepo) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *reconcileRepo) SaveUserSettings(us *models.UserSettings) error { return nil }

func TestReconcileFailure_ParksEventAfterAttemptCap(t *testing.T) {
	event := &models.BillingEvent{
		ID:       1,
		Provider: models.BillingProviderLemonSqueezy,
		Status:   models.EventStatusFailed,
	}
	repo := newReconcileRepo(event)
	svc := billing.NewService(repo, nil)
	cause := errors.New("provider unreachable")

	for i := 1; i < maxReconcileAttempts; i++ {
		if err := reconcileFailure(svc, event, cause); err == nil {
			t.Fatalf("attempt %d: expected the cause back so the sweep retries", i)
		}
		if event.Status != models.EventStatusFailed {
			t.Fatalf("attempt %d: status = %q, event must stay retryable below the cap", i, event.Status)
		}
	}

	if err := reconcileFailure(svc, event, cause); err != nil {
		t.Fatalf("capped attempt must complete the job, got %v", err)
	}
	if event.Status != models.EventStatusFailedPermanent {
		t.Fatalf("status = %q, want %q", event.Status, models.EventStatusFailedPermanent)
	}
	if event.ReconcileAttempts != maxReconcileAttempts {
		t.Fatalf("reconcile attempts = %d, want %d", event.ReconcileAttempts, maxReconcileAttempts)
	}
	if !strings.Contains(event.ProcessingError, "provider unreachable") {
		t.Fatalf("processing error %q does not record the cause", event.ProcessingError)
	}

	failed, err := repo.ListFailedEvents(10)
	if err != nil {
		t.Fatalf("ListFailedEvents: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("parked event still shows up in the failed sweep: %+v", failed)
	}
}

func TestParkEvent_SubscriptionGoneIsTerminalImmediately(t *testing.T) {
	event := &models.BillingEvent{
		ID:       2,
		Provider: models.BillingProviderPolar,
		Status:   models.EventStatusFailed,
	}
	repo := newReconcileRepo(event)
	svc := billing.NewService(repo, nil)

	err := parkEvent(svc, event, billing.ErrSubscriptionGone)
	if err != nil {
		t.Fatalf("parking must complete the job, got %v", err)
	}
	if event.Status != models.EventStatusFailedPermanent {
		t.Fatalf("status = %q, want %q", event.Status, models.EventStatusFailedPermanent)
	}
	if event.ReconcileAttempts != 0 {
		t.Fatalf("a gone subscription must not burn retry attempts, got %d", event.ReconcileAttempts)
	}
}
