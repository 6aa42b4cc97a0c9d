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

const defaultPolarAPIBaseURL = "https://api.polar.sh/v1"

// polarEventKinds folds Polar's webhook types into the canonical dispatch
// set. "active" and "uncanceled" carry the same state payload as an update;
// "revoked" ends access immediately.
var polarEventKinds = map[string]EventKind{
	"subscription.created":    EventSubscriptionCreated,
	"subscription.updated":    EventSubscriptionUpdated,
	"subscription.active":     EventSubscriptionUpdated,
	"subscription.uncanceled": EventSubscriptionUpdated,
	"subscription.canceled":   EventSubscriptionCancelled,
	"subscription.revoked":    EventSubscriptionExpired,
	"order.created":           EventOrderCreated,
}

type polarSubscriptionData struct {
	ID                           string `json:"id"`
	Status                       string `json:"status"`
	ModifiedAt                   string `json:"modified_at"`
	CreatedAt                    string `json:"created_at"`
	CurrentPeriodEnd             string `json:"current_period_end"`
	EndedAt                      string `json:"ended_at"`
	CancelAtPeriodEnd            bool   `json:"cancel_at_period_end"`
	CustomerCancellationReason   string `json:"customer_cancellation_reason"`
	Product                      struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"product"`
	Metadata struct {
		UserID json.Number `json:"user_id"`
	} `json:"metadata"`
}

type polarPayload struct {
	Type string `json:"type"`
	Data struct {
		polarSubscriptionData

		// Order-only fields.
		Subscription *polarSubscriptionData `json:"subscription"`
	} `json:"data"`
}

// ExtractPolarEventType pulls the event type out of a Polar webhook body
// without fully validating it. Returns "" when the body is not JSON or
// carries no type.
func ExtractPolarEventType(payload []byte) string {
	var raw struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return ""
	}
	return strings.TrimSpace(raw.Type)
}

// ParsePolarEvent validates a Polar webhook body and converts it into the
// provider-agnostic event shape.
func ParsePolarEvent(payload []byte) (*NormalizedEvent, error) {
	var raw polarPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	eventType := strings.TrimSpace(raw.Type)
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}

	kind, ok := polarEventKinds[strings.ToLower(eventType)]
	if !ok {
		kind = EventUnknown
	}

	data := raw.Data.polarSubscriptionData
	if kind == EventOrderCreated && raw.Data.Subscription != nil {
		// Subscription-backed orders track the subscription row directly.
		kind = EventSubscriptionUpdated
		data = *raw.Data.Subscription
	}

	ne := &NormalizedEvent{
		Kind:       kind,
		Provider:   models.BillingProviderPolar,
		Status:     data.Status,
		PlanName:   data.Product.Name,
		OccurredAt: polarTimestamp(data),
		RawJSON:    string(payload),
	}
	if data.Product.ID != "" {
		ne.ProviderPlanRef = data.Product.ID
	}
	if id, err := data.Metadata.UserID.Int64(); err == nil && id > 0 {
		ne.UserID = uint(id)
	}

	switch kind {
	case EventOrderCreated:
		if data.ID == "" {
			return nil, fmt.Errorf("%w: order payload missing id", ErrMalformedPayload)
		}
		ne.ProviderSubscriptionID = "order:" + data.ID
	case EventUnknown:
	default:
		if data.ID == "" {
			return nil, fmt.Errorf("%w: subscription payload missing id", ErrMalformedPayload)
		}
		ne.ProviderSubscriptionID = data.ID
		ne.RenewsAt = parseProviderTime(data.CurrentPeriodEnd)
		ne.EndsAt = parseProviderTime(data.EndedAt)
		ne.CancellationReason = strings.TrimSpace(data.CustomerCancellationReason)
	}

	return ne, nil
}

func polarTimestamp(data polarSubscriptionData) time.Time {
	if t := parseProviderTime(data.ModifiedAt); t != nil {
		return *t
	}
	if t := parseProviderTime(data.CreatedAt); t != nil {
		return *t
	}
	return time.Now()
}

// PolarClient fetches live subscription state from the Polar API for the
// reconciliation job.
type PolarClient struct {
	AccessToken string
	APIBaseURL  string

	HTTPClient *http.Client
}

func NewPolarClientFromEnv() *PolarClient {
	return &PolarClient{
		AccessToken: strings.TrimSpace(env.GetEnv("POLAR_ACCESS_TOKEN", "")),
		APIBaseURL:  strings.TrimSpace(env.GetEnv("POLAR_API_BASE_URL", defaultPolarAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetSubscription fetches a subscription by external id and returns it as a
// normalized update event stamped with the API-reported modification time.
func (c *PolarClient) GetSubscription(ctx context.Context, subscriptionID string) (*NormalizedEvent, error) {
	if strings.TrimSpace(c.AccessToken) == "" {
		return nil, errors.New("POLAR_ACCESS_TOKEN is not configured")
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
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")

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
		return nil, fmt.Errorf("polar subscription fetch failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var data polarSubscriptionData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if data.ID == "" {
		data.ID = id
	}

	wrapped := polarPayload{Type: "subscription.updated"}
	wrapped.Data.polarSubscriptionData = data
	rewrapped, err := json.Marshal(wrapped)
	if err != nil {
		return nil, err
	}
	return ParsePolarEvent(rewrapped)
}
