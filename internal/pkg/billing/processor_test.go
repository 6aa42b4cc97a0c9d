package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
)

// fakeRepo is an in-memory Repository honoring the same uniqueness and
// watermark semantics as the GORM implementation.
type fakeRepo struct {
	events      map[string]*models.BillingEvent
	eventsByID  map[uint]*models.BillingEvent
	nextEventID uint

	subs      map[string]*models.Subscription
	subsByID  map[uint]*models.Subscription
	nextSubID uint

	settings map[uint]*models.UserSettings
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events:     make(map[string]*models.BillingEvent),
		eventsByID: make(map[uint]*models.BillingEvent),
		subs:       make(map[string]*models.Subscription),
		subsByID:   make(map[uint]*models.Subscription),
		settings:   make(map[uint]*models.UserSettings),
	}
}

func eventKey(provider, eventID string) string { return provider + "|" + eventID }

func (r *fakeRepo) CreateEventIfNotExists(event *models.BillingEvent) (bool, *models.BillingEvent, error) {
	key := eventKey(event.Provider, event.ProviderEventID)
	if existing, ok := r.events[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	r.nextEventID++
	event.ID = r.nextEventID
	event.CreatedAt = time.Now()
	stored := *event
	r.events[key] = &stored
	r.eventsByID[stored.ID] = &stored
	cp := stored
	return true, &cp, nil
}

func (r *fakeRepo) GetEventByID(id uint) (*models.BillingEvent, error) {
	event, ok := r.eventsByID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *event
	return &cp, nil
}

func (r *fakeRepo) MarkEventProcessed(id uint, processingError string) error {
	event, ok := r.eventsByID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	event.ProcessedAt = &now
	event.ProcessingError = processingError
	if processingError != "" {
		event.Status = models.EventStatusFailed
	} else {
		event.Status = models.EventStatusProcessed
	}
	return nil
}

func (r *fakeRepo) BumpEventReconcileAttempts(id uint) (int, error) {
	event, ok := r.eventsByID[id]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	event.ReconcileAttempts++
	return event.ReconcileAttempts, nil
}

func (r *fakeRepo) MarkEventFailedPermanent(id uint, reason string) error {
	event, ok := r.eventsByID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	event.Status = models.EventStatusFailedPermanent
	event.ProcessingError = reason
	return nil
}

func (r *fakeRepo) ListFailedEvents(limit int) ([]models.BillingEvent, error) {
	var out []models.BillingEvent
	for _, event := range r.eventsByID {
		if event.Status == models.EventStatusFailed {
			out = append(out, *event)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) ListEventsOlderThan(cutoff time.Time, limit int) ([]models.BillingEvent, error) {
	var out []models.BillingEvent
	for _, event := range r.eventsByID {
		if event.Status != models.EventStatusPending && event.CreatedAt.Before(cutoff) {
			out = append(out, *event)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) DeleteEvents(ids []uint) error {
	for _, id := range ids {
		if event, ok := r.eventsByID[id]; ok {
			delete(r.events, eventKey(event.Provider, event.ProviderEventID))
			delete(r.eventsByID, id)
		}
	}
	return nil
}

func subKey(provider, subID string) string { return provider + "|" + subID }

func (r *fakeRepo) GetSubscription(provider, providerSubscriptionID string) (*models.Subscription, error) {
	sub, ok := r.subs[subKey(provider, providerSubscriptionID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *fakeRepo) CreateSubscriptionIfNotExists(sub *models.Subscription) (bool, error) {
	key := subKey(sub.Provider, sub.ProviderSubscriptionID)
	if _, ok := r.subs[key]; ok {
		return false, nil
	}
	r.nextSubID++
	sub.ID = r.nextSubID
	stored := *sub
	r.subs[key] = &stored
	r.subsByID[stored.ID] = &stored
	return true, nil
}

func (r *fakeRepo) UpdateSubscriptionIfNewer(sub *models.Subscription, eventTime time.Time) (bool, error) {
	stored, ok := r.subsByID[sub.ID]
	if !ok {
		return false, nil
	}
	if stored.LastEventAt.After(eventTime) {
		return false, nil
	}
	updated := *sub
	updated.LastEventAt = eventTime
	*stored = updated
	return true, nil
}

func (r *fakeRepo) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range r.subsByID {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	if us, ok := r.settings[userID]; ok {
		cp := *us
		return &cp, nil
	}
	us := &models.UserSettings{UserID: userID, Plan: "free"}
	r.settings[userID] = us
	cp := *us
	return &cp, nil
}

func (r *fakeRepo) SaveUserSettings(us *models.UserSettings) error {
	cp := *us
	r.settings[us.UserID] = &cp
	return nil
}

func newTestProcessor() (*Processor, *fakeRepo) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	return NewProcessor(svc, nil), repo
}

func lsSubscriptionPayload(subID string, userID uint, planName, status, updatedAt string) string {
	return fmt.Sprintf(`{
		"meta": { "custom_data": { "user_id": "%d" } },
		"data": { "id": %q, "attributes": { "status": %q, "product_name": %q, "variant_id": 10, "updated_at": %q } }
	}`, userID, subID, status, planName, updatedAt)
}

func recordAndProcess(t *testing.T, p *Processor, eventID, eventType, payload string) *models.BillingEvent {
	t.Helper()
	created, event, err := p.svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Provider:        models.BillingProviderLemonSqueezy,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     payload,
		SignatureValid:  true,
	})
	if err != nil {
		t.Fatalf("RecordWebhookEvent: %v", err)
	}
	if !created {
		return event
	}
	_ = p.Process(context.Background(), event)
	return event
}

func TestRecordWebhookEvent_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	in := WebhookEventInput{
		Provider:        models.BillingProviderLemonSqueezy,
		ProviderEventID: "evt_1",
		EventType:       "subscription_created",
		PayloadJSON:     `{}`,
		SignatureValid:  true,
	}

	created, first, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || !created {
		t.Fatalf("first delivery: created=%v err=%v", created, err)
	}
	if first.Status != models.EventStatusPending {
		t.Fatalf("new event status = %q", first.Status)
	}

	created, second, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if created {
		t.Fatalf("replay must not create a second row")
	}
	if second.ID != first.ID {
		t.Fatalf("replay returned a different row: %d vs %d", second.ID, first.ID)
	}
}

func TestRecordWebhookEvent_HashFallbackID(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	in := WebhookEventInput{
		Provider:    models.BillingProviderPolar,
		EventType:   "subscription.updated",
		PayloadJSON: `{"type":"subscription.updated"}`,
	}

	created, first, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || !created {
		t.Fatalf("first delivery: created=%v err=%v", created, err)
	}
	if len(first.ProviderEventID) < 6 || first.ProviderEventID[:5] != "hash:" {
		t.Fatalf("expected hash fallback event id, got %q", first.ProviderEventID)
	}

	created, _, err = svc.RecordWebhookEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if created {
		t.Fatalf("identical body replay must deduplicate")
	}
}

func TestProcessor_CreateSubscriptionAndReconcilePlan(t *testing.T) {
	p, repo := newTestProcessor()

	event := recordAndProcess(t, p, "evt_create", "subscription_created",
		lsSubscriptionPayload("sub_1", 42, "Pro Plan", "active", "2026-08-31T10:00:00Z"))

	if repo.eventsByID[event.ID].Status != models.EventStatusProcessed {
		t.Fatalf("event status = %q", repo.eventsByID[event.ID].Status)
	}

	sub, err := repo.GetSubscription(models.BillingProviderLemonSqueezy, "sub_1")
	if err != nil {
		t.Fatalf("subscription row missing: %v", err)
	}
	if sub.Status != models.SubStatusActive || sub.InternalTier != "pro" || sub.UserID != 42 {
		t.Fatalf("unexpected row: status=%q tier=%q user=%d", sub.Status, sub.InternalTier, sub.UserID)
	}

	us, _ := repo.GetOrCreateUserSettings(42)
	if us.Plan != "pro" {
		t.Fatalf("user plan = %q, want pro", us.Plan)
	}
}

func TestProcessor_OutOfOrderCancellationSticks(t *testing.T) {
	p, repo := newTestProcessor()

	// Cancellation arrives first: a placeholder row must be created in the
	// cancelled state.
	recordAndProcess(t, p, "evt_cancel", "subscription_cancelled",
		lsSubscriptionPayload("sub_ooo", 42, "Pro Plan", "cancelled", "2026-08-31T12:00:00Z"))

	sub, err := repo.GetSubscription(models.BillingProviderLemonSqueezy, "sub_ooo")
	if err != nil {
		t.Fatalf("placeholder row missing: %v", err)
	}
	if sub.Status != models.SubStatusCancelled {
		t.Fatalf("placeholder status = %q, want cancelled", sub.Status)
	}

	// The older created event must not resurrect the subscription.
	event := recordAndProcess(t, p, "evt_create_late", "subscription_created",
		lsSubscriptionPayload("sub_ooo", 42, "Pro Plan", "active", "2026-08-31T11:00:00Z"))

	if repo.eventsByID[event.ID].Status != models.EventStatusProcessed {
		t.Fatalf("stale event must still count as processed, got %q", repo.eventsByID[event.ID].Status)
	}
	sub, _ = repo.GetSubscription(models.BillingProviderLemonSqueezy, "sub_ooo")
	if sub.Status != models.SubStatusCancelled {
		t.Fatalf("stale created event reverted status to %q", sub.Status)
	}
	us, _ := repo.GetOrCreateUserSettings(42)
	if us.Plan != "free" {
		t.Fatalf("cancelled subscription must not entitle, plan = %q", us.Plan)
	}
}

func TestProcessor_FinalStateIsDeliveryOrderIndependent(t *testing.T) {
	run := func(order []string) *models.Subscription {
		p, repo := newTestProcessor()
		payloads := map[string]string{
			"old": lsSubscriptionPayload("sub_lww", 42, "Pro Plan", "active", "2026-08-31T10:00:00Z"),
			"new": lsSubscriptionPayload("sub_lww", 42, "Premium Plan", "active", "2026-08-31T11:00:00Z"),
		}
		for _, key := range order {
			recordAndProcess(t, p, "evt_"+key, "subscription_updated", payloads[key])
		}
		sub, err := repo.GetSubscription(models.BillingProviderLemonSqueezy, "sub_lww")
		if err != nil {
			t.Fatalf("row missing: %v", err)
		}
		return sub
	}

	inOrder := run([]string{"old", "new"})
	reversed := run([]string{"new", "old"})

	if inOrder.PlanName != "Premium Plan" || reversed.PlanName != "Premium Plan" {
		t.Fatalf("final plan differs by delivery order: %q vs %q", inOrder.PlanName, reversed.PlanName)
	}
	if inOrder.InternalTier != reversed.InternalTier || inOrder.Status != reversed.Status {
		t.Fatalf("final state differs by delivery order")
	}
	if !inOrder.LastEventAt.Equal(reversed.LastEventAt) {
		t.Fatalf("watermark differs by delivery order: %v vs %v", inOrder.LastEventAt, reversed.LastEventAt)
	}
}

func TestProcessor_UnknownEventTypeIsProcessedNoOp(t *testing.T) {
	p, repo := newTestProcessor()

	event := recordAndProcess(t, p, "evt_unknown", "license_key_created",
		`{"meta":{"event_name":"license_key_created"},"data":{"id":"lk_1","attributes":{}}}`)

	if repo.eventsByID[event.ID].Status != models.EventStatusProcessed {
		t.Fatalf("unknown event type must be processed, got %q", repo.eventsByID[event.ID].Status)
	}
	if len(repo.subsByID) != 0 {
		t.Fatalf("unknown event type must not touch subscriptions")
	}
}

func TestProcessor_MalformedPayloadMarkedFailed(t *testing.T) {
	p, repo := newTestProcessor()

	created, event, err := p.svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Provider:        models.BillingProviderLemonSqueezy,
		ProviderEventID: "evt_bad",
		EventType:       "subscription_updated",
		PayloadJSON:     `{"meta":{"event_name":"subscription_updated"},"data":{"attributes":{}}}`,
		SignatureValid:  true,
	})
	if err != nil || !created {
		t.Fatalf("record: created=%v err=%v", created, err)
	}

	if perr := p.Process(context.Background(), event); perr == nil {
		t.Fatalf("expected processing error for payload without subscription id")
	}
	stored := repo.eventsByID[event.ID]
	if stored.Status != models.EventStatusFailed {
		t.Fatalf("event status = %q, want failed", stored.Status)
	}
	if stored.ProcessingError == "" {
		t.Fatalf("processing error must be recorded")
	}
}

func TestProcessor_PaymentFailedKeepsResolvedTier(t *testing.T) {
	p, repo := newTestProcessor()

	recordAndProcess(t, p, "evt_1", "subscription_created",
		lsSubscriptionPayload("sub_pf", 42, "Pro Plan", "active", "2026-08-31T10:00:00Z"))

	// Payment failure payloads omit the plan; the previously resolved tier
	// must survive while access is suspended.
	payload := `{
		"meta": { "custom_data": { "user_id": "42" } },
		"data": { "id": "sub_pf", "attributes": { "status": "past_due", "updated_at": "2026-08-31T11:00:00Z" } }
	}`
	recordAndProcess(t, p, "evt_2", "subscription_payment_failed", payload)

	sub, _ := repo.GetSubscription(models.BillingProviderLemonSqueezy, "sub_pf")
	if sub.Status != models.SubStatusPastDue {
		t.Fatalf("status = %q, want past_due", sub.Status)
	}
	if sub.InternalTier != "pro" {
		t.Fatalf("tier = %q, want pro to survive the plan-less payload", sub.InternalTier)
	}
	us, _ := repo.GetOrCreateUserSettings(42)
	if us.Plan != "free" {
		t.Fatalf("past_due must not entitle, plan = %q", us.Plan)
	}
}
