package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/internal/pkg/billing"
	"github.com/mkarst/CertForge/internal/pkg/env"
)

// memoryBillingRepo is an in-memory billing.Repository so webhook handler
// tests can observe exactly what a request persisted.
type memoryBillingRepo struct {
	events      map[string]*models.BillingEvent
	eventsByID  map[uint]*models.BillingEvent
	nextEventID uint

	subs      map[string]*models.Subscription
	subsByID  map[uint]*models.Subscription
	nextSubID uint

	settings map[uint]*models.UserSettings
}

func newMemoryBillingRepo() *memoryBillingRepo {
	return &memoryBillingRepo{
		events:     make(map[string]*models.BillingEvent),
		eventsByID: make(map[uint]*models.BillingEvent),
		subs:       make(map[string]*models.Subscription),
		subsByID:   make(map[uint]*models.Subscription),
		settings:   make(map[uint]*models.UserSettings),
	}
}

func (r *memoryBillingRepo) eventKey(provider, eventID string) string {
	return provider + "|" + eventID
}

func (r *memoryBillingRepo) CreateEventIfNotExists(event *models.BillingEvent) (bool, *models.BillingEvent, error) {
	key := r.eventKey(event.Provider, event.ProviderEventID)
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

func (r *memoryBillingRepo) GetEventByID(id uint) (*models.BillingEvent, error) {
	event, ok := r.eventsByID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *event
	return &cp, nil
}

func (r *memoryBillingRepo) MarkEventProcessed(id uint, processingError string) error {
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

func (r *memoryBillingRepo) BumpEventReconcileAttempts(id uint) (int, error) {
	event, ok := r.eventsByID[id]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	event.ReconcileAttempts++
	return event.ReconcileAttempts, nil
}

func (r *memoryBillingRepo) MarkEventFailedPermanent(id uint, reason string) error {
	event, ok := r.eventsByID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	event.Status = models.EventStatusFailedPermanent
	event.ProcessingError = reason
	return nil
}

func (r *memoryBillingRepo) ListFailedEvents(limit int) ([]models.BillingEvent, error) {
	var out []models.BillingEvent
	for _, event := range r.eventsByID {
		if event.Status == models.EventStatusFailed {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) ListEventsOlderThan(cutoff time.Time, limit int) ([]models.BillingEvent, error) {
	return nil, nil
}

func (r *memoryBillingRepo) DeleteEvents(ids []uint) error { return nil }

func (r *memoryBillingRepo) subKey(provider, subID string) string {
	return provider + "|" + subID
}

func (r *memoryBillingRepo) GetSubscription(provider, providerSubscriptionID string) (*models.Subscription, error) {
	sub, ok := r.subs[r.subKey(provider, providerSubscriptionID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *memoryBillingRepo) CreateSubscriptionIfNotExists(sub *models.Subscription) (bool, error) {
	key := r.subKey(sub.Provider, sub.ProviderSubscriptionID)
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

func (r *memoryBillingRepo) UpdateSubscriptionIfNewer(sub *models.Subscription, eventTime time.Time) (bool, error) {
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

func (r *memoryBillingRepo) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range r.subsByID {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	if us, ok := r.settings[userID]; ok {
		cp := *us
		return &cp, nil
	}
	us := &models.UserSettings{UserID: userID, Plan: "free"}
	r.settings[userID] = us
	cp := *us
	return &cp, nil
}

func (r *memoryBillingRepo) SaveUserSettings(us *models.UserSettings) error {
	cp := *us
	r.settings[us.UserID] = &cp
	return nil
}

// setupWebhookTest wires the webhook handlers to an in-memory billing
// backend and a known secret, restoring everything afterwards.
func setupWebhookTest(t *testing.T, secret string) (*fiber.App, *memoryBillingRepo) {
	t.Helper()

	repo := newMemoryBillingRepo()
	svc := billing.NewService(repo, nil)

	origService := newBillingService
	origProcessor := newBillingProcessor
	newBillingService = func() *billing.Service { return svc }
	newBillingProcessor = func() *billing.Processor { return billing.NewProcessor(svc, nil) }
	t.Cleanup(func() {
		newBillingService = origService
		newBillingProcessor = origProcessor
	})

	origEnv := env.Env
	env.Env = map[string]string{}
	if secret != "" {
		env.Env["LEMONSQUEEZY_WEBHOOK_SECRET"] = secret
		env.Env["POLAR_WEBHOOK_SECRET"] = secret
	}
	t.Cleanup(func() { env.Env = origEnv })

	app := fiber.New()
	app.Post("/webhooks/lemonsqueezy", HandleLemonSqueezyWebhook)
	app.Post("/webhooks/polar", HandlePolarWebhook)
	return app, repo
}

func signWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func lsWebhookBody(subID string, userID uint, status string) []byte {
	return []byte(fmt.Sprintf(`{
		"meta": { "event_name": "subscription_created", "custom_data": { "user_id": "%d" } },
		"data": { "id": %q, "attributes": { "status": %q, "product_name": "Pro Plan", "variant_id": 10, "updated_at": "2026-02-01T10:00:00Z" } }
	}`, userID, subID, status))
}

func decodeWebhookResponse(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestHandleLemonSqueezyWebhook_MissingSecret(t *testing.T) {
	app, repo := setupWebhookTest(t, "")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/lemonsqueezy", strings.NewReader("{}"))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	body := decodeWebhookResponse(t, resp)
	assert.Equal(t, "missing_configuration", body["error"])
	assert.Empty(t, repo.events)
}

func TestHandleLemonSqueezyWebhook_TamperedSignatureStoresNothing(t *testing.T) {
	const secret = "wh-secret"
	app, repo := setupWebhookTest(t, secret)

	payload := lsWebhookBody("sub-1", 7, "active")
	validSig := signWebhookBody(secret, payload)
	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '

	req := httptest.NewRequest(http.MethodPost, "/webhooks/lemonsqueezy", strings.NewReader(string(tampered)))
	req.Header.Set("X-Signature", validSig)
	req.Header.Set("X-Event-Id", "evt-1")
	req.Header.Set("X-Event-Name", "subscription_created")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	body := decodeWebhookResponse(t, resp)
	assert.Equal(t, "invalid_signature", body["error"])
	assert.Empty(t, repo.events, "unverified payload must not be persisted")
	assert.Empty(t, repo.subs)
}

func TestHandleLemonSqueezyWebhook_MissingEventType(t *testing.T) {
	const secret = "wh-secret"
	app, repo := setupWebhookTest(t, secret)

	payload := []byte(`{"data":{"id":"sub-1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/lemonsqueezy", strings.NewReader(string(payload)))
	req.Header.Set("X-Signature", signWebhookBody(secret, payload))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	body := decodeWebhookResponse(t, resp)
	assert.Equal(t, "malformed_payload", body["error"])
	assert.Empty(t, repo.events)
}

func TestHandleLemonSqueezyWebhook_ValidDeliveryProcessed(t *testing.T) {
	const secret = "wh-secret"
	app, repo := setupWebhookTest(t, secret)

	payload := lsWebhookBody("sub-1", 7, "active")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/lemonsqueezy", strings.NewReader(string(payload)))
	req.Header.Set("X-Signature", signWebhookBody(secret, payload))
	req.Header.Set("X-Event-Id", "evt-1")
	req.Header.Set("X-Event-Name", "subscription_created")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeWebhookResponse(t, resp)
	assert.Equal(t, true, body["received"])

	require.Len(t, repo.events, 1)
	event := repo.eventsByID[1]
	assert.Equal(t, models.BillingProviderLemonSqueezy, event.Provider)
	assert.Equal(t, "evt-1", event.ProviderEventID)
	assert.Equal(t, "subscription_created", event.EventType)
	assert.True(t, event.SignatureValid)
	assert.Equal(t, models.EventStatusProcessed, event.Status)
	require.Len(t, repo.subs, 1)
}

func TestHandleLemonSqueezyWebhook_DuplicateDelivery(t *testing.T) {
	const secret = "wh-secret"
	app, repo := setupWebhookTest(t, secret)

	payload := lsWebhookBody("sub-1", 7, "active")
	send := func() *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/lemonsqueezy", strings.NewReader(string(payload)))
		req.Header.Set("X-Signature", signWebhookBody(secret, payload))
		req.Header.Set("X-Event-Id", "evt-1")
		req.Header.Set("X-Event-Name", "subscription_created")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	first := send()
	assert.Equal(t, fiber.StatusOK, first.StatusCode)

	second := send()
	assert.Equal(t, fiber.StatusOK, second.StatusCode)
	body := decodeWebhookResponse(t, second)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, true, body["duplicate"])
	assert.Len(t, repo.events, 1, "redelivery must not create a second row")
}

func TestHandlePolarWebhook_HeaderWiring(t *testing.T) {
	const secret = "polar-secret"
	app, repo := setupWebhookTest(t, secret)

	payload := []byte(`{
		"type": "subscription.created",
		"data": {
			"id": "psub-1",
			"status": "active",
			"product": { "name": "Premium Plan", "id": "prod-1" },
			"metadata": { "user_id": "9" },
			"modified_at": "2026-02-01T10:00:00Z"
		}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/polar", strings.NewReader(string(payload)))
	req.Header.Set("webhook-signature", signWebhookBody(secret, payload))
	req.Header.Set("webhook-id", "pevt-1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, repo.events, 1)
	event := repo.eventsByID[1]
	assert.Equal(t, models.BillingProviderPolar, event.Provider)
	assert.Equal(t, "pevt-1", event.ProviderEventID)
	assert.Equal(t, "subscription.created", event.EventType)
}
