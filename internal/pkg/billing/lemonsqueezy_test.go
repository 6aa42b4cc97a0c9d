package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mkarst/CertForge/app/models"
)

func TestParseLemonSqueezyEvent_SubscriptionCreated(t *testing.T) {
	raw := []byte(`{
		"meta": {
			"event_name": "subscription_created",
			"custom_data": { "user_id": "42" }
		},
		"data": {
			"type": "subscriptions",
			"id": "sub_123",
			"attributes": {
				"status": "active",
				"product_name": "Pro Plan",
				"variant_id": 777,
				"variant_name": "Pro Monthly",
				"renews_at": "2026-09-30T12:00:00Z",
				"ends_at": null,
				"created_at": "2026-08-30T12:00:00Z",
				"updated_at": "2026-08-31T12:00:00Z"
			}
		}
	}`)

	ev, err := ParseLemonSqueezyEvent("", raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Kind != EventSubscriptionCreated {
		t.Fatalf("kind = %q, want %q", ev.Kind, EventSubscriptionCreated)
	}
	if ev.Provider != models.BillingProviderLemonSqueezy {
		t.Fatalf("provider = %q", ev.Provider)
	}
	if ev.ProviderSubscriptionID != "sub_123" {
		t.Fatalf("subscription id = %q", ev.ProviderSubscriptionID)
	}
	if ev.UserID != 42 {
		t.Fatalf("user id = %d, want 42", ev.UserID)
	}
	if ev.PlanName != "Pro Plan" || ev.ProviderPlanRef != "777" {
		t.Fatalf("plan = %q ref = %q", ev.PlanName, ev.ProviderPlanRef)
	}
	if ev.Status != "active" {
		t.Fatalf("status = %q", ev.Status)
	}
	if ev.RenewsAt == nil || !ev.RenewsAt.Equal(time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("renews_at = %v", ev.RenewsAt)
	}
	if ev.EndsAt != nil {
		t.Fatalf("ends_at should be nil, got %v", ev.EndsAt)
	}
	if !ev.OccurredAt.Equal(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("occurred_at should come from updated_at, got %v", ev.OccurredAt)
	}
}

func TestParseLemonSqueezyEvent_HeaderNameWins(t *testing.T) {
	raw := []byte(`{
		"meta": { "event_name": "subscription_created" },
		"data": { "id": "sub_9", "attributes": { "status": "cancelled", "updated_at": "2026-08-31T12:00:00Z" } }
	}`)

	ev, err := ParseLemonSqueezyEvent("subscription_cancelled", raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Kind != EventSubscriptionCancelled {
		t.Fatalf("header event name should win, got kind %q", ev.Kind)
	}
}

func TestParseLemonSqueezyEvent_UnknownType(t *testing.T) {
	raw := []byte(`{"meta":{"event_name":"license_key_created"},"data":{"id":"lk_1","attributes":{}}}`)
	ev, err := ParseLemonSqueezyEvent("", raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Kind != EventUnknown {
		t.Fatalf("kind = %q, want %q", ev.Kind, EventUnknown)
	}
}

func TestParseLemonSqueezyEvent_OrderCreated(t *testing.T) {
	raw := []byte(`{
		"meta": { "event_name": "order_created", "custom_data": { "user_id": 7 } },
		"data": {
			"type": "orders",
			"id": "ord_55",
			"attributes": {
				"status": "paid",
				"created_at": "2026-08-31T08:00:00Z",
				"first_order_item": { "product_name": "Premium Lifetime", "variant_id": 900 }
			}
		}
	}`)

	ev, err := ParseLemonSqueezyEvent("", raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Kind != EventOrderCreated {
		t.Fatalf("kind = %q", ev.Kind)
	}
	if ev.ProviderSubscriptionID != "order:ord_55" {
		t.Fatalf("order subscription id = %q", ev.ProviderSubscriptionID)
	}
	if ev.PlanName != "Premium Lifetime" || ev.ProviderPlanRef != "900" {
		t.Fatalf("plan = %q ref = %q", ev.PlanName, ev.ProviderPlanRef)
	}
	if ev.UserID != 7 {
		t.Fatalf("user id = %d", ev.UserID)
	}
}

func TestParseLemonSqueezyEvent_Malformed(t *testing.T) {
	if _, err := ParseLemonSqueezyEvent("", []byte(`not-json`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for invalid JSON, got %v", err)
	}
	if _, err := ParseLemonSqueezyEvent("", []byte(`{"data":{"id":"x"}}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for missing event name, got %v", err)
	}
	if _, err := ParseLemonSqueezyEvent("subscription_updated", []byte(`{"meta":{"event_name":"subscription_updated"},"data":{"attributes":{}}}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for missing subscription id, got %v", err)
	}
}

func TestLemonSqueezyGetSubscription_NotFoundIsGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"status":"404"}]}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := &LemonSqueezyClient{
		APIKey:     "test-key",
		APIBaseURL: srv.URL,
		HTTPClient: srv.Client(),
	}

	_, err := client.GetSubscription(context.Background(), "sub_missing")
	if !errors.Is(err, ErrSubscriptionGone) {
		t.Fatalf("expected ErrSubscriptionGone for 404, got %v", err)
	}
}

func TestExtractEventName(t *testing.T) {
	if got := ExtractEventName([]byte(`{"meta":{"event_name":" subscription_updated "}}`)); got != "subscription_updated" {
		t.Fatalf("ExtractEventName = %q", got)
	}
	if got := ExtractEventName([]byte(`garbage`)); got != "" {
		t.Fatalf("expected empty name for invalid JSON, got %q", got)
	}
}
