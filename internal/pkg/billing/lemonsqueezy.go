package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/internal/pkg/env"
)

const defaultLemonSqueezyAPIBaseURL = "https://api.lemonsqueezy.com/v1"

// lemonSqueezyEventKinds maps LemonSqueezy event names to the closed
// processor dispatch set. Unlisted names normalize to EventUnknown.
var lemonSqueezyEventKinds = map[string]EventKind{
	"subscription_created":        EventSubscriptionCreated,
	"subscription_updated":        EventSubscriptionUpdated,
	"subscription_cancelled":      EventSubscriptionCancelled,
	"subscription_expired":        EventSubscriptionExpired,
	"subscription_payment_failed": EventSubscriptionPaymentFailed,
	"order_created":               EventOrderCreated,
}

type lemonSqueezyPayload struct {
	Meta struct {
		EventName  string `json:"event_name"`
		CustomData struct {
			UserID json.Number `json:"user_id"`
		} `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes struct {
			Status      string `json:"status"`
			ProductName string `json:"product_name"`
			VariantID   int64  `json:"variant_id"`
			VariantName string `json:"variant_name"`
			UserEmail   string `json:"user_email"`
			RenewsAt    string `json:"renews_at"`
			EndsAt      string `json:"ends_at"`
			CreatedAt   string `json:"created_at"`
			UpdatedAt   string `json:"updated_at"`
			FirstOrderItem struct {
				ProductName string `json:"product_name"`
				VariantID   int64  `json:"variant_id"`
			} `json:"first_order_item"`
		} `json:"attributes"`
	} `json:"data"`
}

// ExtractEventName pulls the event name out of a LemonSqueezy body for
// deliveries missing the X-Event-Name header.
func ExtractEventName(payload []byte) string {
	var raw struct {
		Meta struct {
			EventName string `json:"event_name"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return ""
	}
	return strings.TrimSpace(raw.Meta.EventName)
}

// ParseLemonSqueezyEvent validates a LemonSqueezy webhook body and converts
// it into the provider-agnostic event shape.
func ParseLemonSqueezyEvent(eventType string, payload []byte) (*NormalizedEvent, error) {
	var raw lemonSqueezyPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	name := strings.TrimSpace(eventType)
	if name == "" {
		name = strings.TrimSpace(raw.Meta.EventName)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedPayload)
	}

	kind, ok := lemonSqueezyEventKinds[strings.ToLower(name)]
	if !ok {
		kind = EventUnknown
	}

	ne := &NormalizedEvent{
		Kind:       kind,
		Provider:   models.BillingProviderLemonSqueezy,
		Status:     raw.Data.Attributes.Status,
		OccurredAt: lemonSqueezyTimestamp(raw),
		RawJSON:    string(payload),
	}

	if id, err := raw.Meta.CustomData.UserID.Int64(); err == nil && id > 0 {
		ne.UserID = uint(id)
	}

	switch kind {
	case EventOrderCreated:
		if raw.Data.ID == "" {
			return nil, fmt.Errorf("%w: order payload missing id", ErrMalformedPayload)
		}
		// One-time purchases entitle through a synthetic subscription id so
		// the resolver path stays uniform.
		ne.ProviderSubscriptionID = "order:" + raw.Data.ID
		ne.PlanName = raw.Data.Attributes.FirstOrderItem.ProductName
		if raw.Data.Attributes.FirstOrderItem.VariantID > 0 {
			ne.ProviderPlanRef = fmt.Sprintf("%d", raw.Data.Attributes.FirstOrderItem.VariantID)
		}
	case EventUnknown:
		// No field access beyond the envelope for unrecognized shapes.
	default:
		if raw.Data.ID == "" {
			return nil, fmt.Errorf("%w: subscription payload missing id", ErrMalformedPayload)
		}
		ne.ProviderSubscriptionID = raw.Data.ID
		ne.PlanName = raw.Data.Attributes.ProductName
		if ne.PlanName == "" {
			ne.PlanName = raw.Data.Attributes.VariantName
		}
		if raw.Data.Attributes.VariantID > 0 {
			ne.ProviderPlanRef = fmt.Sprintf("%d", raw.Data.Attributes.VariantID)
		}
		ne.RenewsAt = parseProviderTime(raw.Data.Attributes.RenewsAt)
		ne.EndsAt = parseProviderTime(raw.Data.Attributes.EndsAt)
	}

	return ne, nil
}

func lemonSqueezyTimestamp(raw lemonSqueezyPayload) time.Time {
	if t := parseProviderTime(raw.Data.Attributes.UpdatedAt); t != nil {
		return *t
	}
	if t := parseProviderTime(raw.Data.Attributes.CreatedAt); t != nil {
		return *t
	}
	return time.Now()
}

func parseProviderTime(value string) *time.Time {
	v := strings.TrimSpace(value)
	if v == "" || v == "null" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t
	}
	return nil
}

// LemonSqueezyClient fetches live subscription state from the LemonSqueezy
// API. Used by the reconciliation job to repair events that failed locally.
type LemonSqueezyClient struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewLemonSqueezyClientFromEnv() *LemonSqueezyClient {
	return &LemonSqueezyClient{
		APIKey:     strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_API_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_API_BASE_URL", defaultLemonSqueezyAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetSubscription fetches a subscription by external id and returns it as a
// normalized update event stamped with the API-reported modification time.
func (c *LemonSqueezyClient) GetSubscription(ctx context.Context, subscriptionID string) (*NormalizedEvent, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("LEMONSQUEEZY_API_KEY is not configured")
	}
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return nil, errors.New("subscription id is required")
	}

	url := strings.TrimRight(c.APIBaseURL, "/") + "/subscriptions/" + id
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/vnd.api+json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, fmt.Errorf("%w: status=%d", ErrSubscriptionGone, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("lemonsqueezy subscription fetch failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	ne, err := ParseLemonSqueezyEvent("subscription_updated", body)
	if err != nil {
		return nil, err
	}
	if ne.ProviderSubscriptionID == "" {
		ne.ProviderSubscriptionID = id
	}
	return ne, nil
}
