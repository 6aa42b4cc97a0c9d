package billing

import (
	"errors"
	"testing"
	"time"
)

func TestParsePolarEvent_SubscriptionCanceled(t *testing.T) {
	raw := []byte(`{
		"type": "subscription.canceled",
		"data": {
			"id": "polar_sub_1",
			"status": "canceled",
			"modified_at": "2026-08-31T10:00:00Z",
			"created_at": "2026-07-01T10:00:00Z",
			"current_period_end": "2026-09-01T10:00:00Z",
			"ended_at": "2026-09-01T10:00:00Z",
			"customer_cancellation_reason": "too_expensive",
			"product": { "id": "prod_premium", "name": "Premium Plan" },
			"metadata": { "user_id": "13" }
		}
	}`)

	ev, err := ParsePolarEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Kind != EventSubscriptionCancelled {
		t.Fatalf("kind = %q, want %q", ev.Kind, EventSubscriptionCancelled)
	}
	if ev.ProviderSubscriptionID != "polar_sub_1" {
		t.Fatalf("subscription id = %q", ev.ProviderSubscriptionID)
	}
	if ev.UserID != 13 {
		t.Fatalf("user id = %d", ev.UserID)
	}
	if ev.PlanName != "Premium Plan" || ev.ProviderPlanRef != "prod_premium" {
		t.Fatalf("plan = %q ref = %q", ev.PlanName, ev.ProviderPlanRef)
	}
	if ev.CancellationReason != "too_expensive" {
		t.Fatalf("cancellation reason = %q", ev.CancellationReason)
	}
	if !ev.OccurredAt.Equal(time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("occurred_at should come from modified_at, got %v", ev.OccurredAt)
	}
	if ev.RenewsAt == nil || ev.EndsAt == nil {
		t.Fatalf("expected period end and ended_at to be set")
	}
}

func TestParsePolarEvent_KindMapping(t *testing.T) {
	tests := []struct {
		eventType string
		want      EventKind
	}{
		{"subscription.created", EventSubscriptionCreated},
		{"subscription.updated", EventSubscriptionUpdated},
		{"subscription.active", EventSubscriptionUpdated},
		{"subscription.uncanceled", EventSubscriptionUpdated},
		{"subscription.revoked", EventSubscriptionExpired},
		{"checkout.created", EventUnknown},
	}

	for _, tt := range tests {
		raw := []byte(`{"type":"` + tt.eventType + `","data":{"id":"s1","status":"active","modified_at":"2026-08-31T10:00:00Z"}}`)
		ev, err := ParsePolarEvent(raw)
		if err != nil {
			t.Fatalf("ParsePolarEvent(%q) error: %v", tt.eventType, err)
		}
		if ev.Kind != tt.want {
			t.Fatalf("ParsePolarEvent(%q) kind = %q, want %q", tt.eventType, ev.Kind, tt.want)
		}
	}
}

func TestParsePolarEvent_OrderWithSubscription(t *testing.T) {
	raw := []byte(`{
		"type": "order.created",
		"data": {
			"id": "ord_1",
			"subscription": {
				"id": "polar_sub_9",
				"status": "active",
				"modified_at": "2026-08-31T10:00:00Z",
				"product": { "id": "prod_pro", "name": "Pro Plan" },
				"metadata": { "user_id": 5 }
			}
		}
	}`)

	ev, err := ParsePolarEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Kind != EventSubscriptionUpdated {
		t.Fatalf("subscription-backed order should track the subscription, kind = %q", ev.Kind)
	}
	if ev.ProviderSubscriptionID != "polar_sub_9" {
		t.Fatalf("subscription id = %q", ev.ProviderSubscriptionID)
	}
	if ev.UserID != 5 {
		t.Fatalf("user id = %d", ev.UserID)
	}
}

func TestParsePolarEvent_OneTimeOrder(t *testing.T) {
	raw := []byte(`{
		"type": "order.created",
		"data": {
			"id": "ord_2",
			"status": "paid",
			"created_at": "2026-08-31T10:00:00Z",
			"product": { "id": "prod_life", "name": "Premium Lifetime" },
			"metadata": { "user_id": 6 }
		}
	}`)

	ev, err := ParsePolarEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Kind != EventOrderCreated {
		t.Fatalf("kind = %q", ev.Kind)
	}
	if ev.ProviderSubscriptionID != "order:ord_2" {
		t.Fatalf("order subscription id = %q", ev.ProviderSubscriptionID)
	}
}

func TestParsePolarEvent_Malformed(t *testing.T) {
	if _, err := ParsePolarEvent([]byte(`not-json`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for invalid JSON, got %v", err)
	}
	if _, err := ParsePolarEvent([]byte(`{"data":{"id":"x"}}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for missing type, got %v", err)
	}
	if _, err := ParsePolarEvent([]byte(`{"type":"subscription.updated","data":{}}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for missing subscription id, got %v", err)
	}
}
