package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/internal/pkg/billing"
	"github.com/mkarst/CertForge/internal/pkg/database"
	"github.com/mkarst/CertForge/internal/pkg/env"
	"github.com/mkarst/CertForge/internal/pkg/metrics"
)

// HandleLemonSqueezyWebhook receives LemonSqueezy billing webhooks.
// Signature verification happens over the raw body before anything is
// stored; unverified payloads never reach the database.
func HandleLemonSqueezyWebhook(c *fiber.Ctx) error {
	return handleBillingWebhook(c, billingWebhookConfig{
		Provider:        models.BillingProviderLemonSqueezy,
		Secret:          env.GetEnv("LEMONSQUEEZY_WEBHOOK_SECRET", ""),
		Signature:       c.Get("X-Signature"),
		ProviderEventID: strings.TrimSpace(c.Get("X-Event-Id")),
		EventType:       lemonSqueezyEventType(c),
	})
}

// HandlePolarWebhook receives Polar billing webhooks.
func HandlePolarWebhook(c *fiber.Ctx) error {
	return handleBillingWebhook(c, billingWebhookConfig{
		Provider:        models.BillingProviderPolar,
		Secret:          env.GetEnv("POLAR_WEBHOOK_SECRET", ""),
		Signature:       c.Get("webhook-signature"),
		ProviderEventID: strings.TrimSpace(c.Get("webhook-id")),
		EventType:       billing.ExtractPolarEventType(c.Body()),
	})
}

// lemonSqueezyEventType prefers the X-Event-Name header LemonSqueezy sends
// with every delivery; older deliveries only carry meta.event_name in the
// body.
func lemonSqueezyEventType(c *fiber.Ctx) string {
	if name := strings.TrimSpace(c.Get("X-Event-Name")); name != "" {
		return name
	}
	return billing.ExtractEventName(c.Body())
}

type billingWebhookConfig struct {
	Provider        string
	Secret          string
	Signature       string
	ProviderEventID string
	EventType       string
}

// Package variables so tests can substitute in-memory billing backends.
var (
	newBillingService = func() *billing.Service {
		return billing.NewServiceFromDB(database.GetDB())
	}
	newBillingProcessor = func() *billing.Processor {
		return billing.NewProcessorFromDB(database.GetDB())
	}
)

func handleBillingWebhook(c *fiber.Ctx, cfg billingWebhookConfig) error {
	payload := c.Body()

	if cfg.Secret == "" {
		log.Errorf("[%s] Webhook secret is not configured", cfg.Provider)
		metrics.WebhookEventsTotal.WithLabelValues(cfg.Provider, "missing_configuration").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "missing_configuration",
		})
	}

	if !billing.VerifyWebhookSignature(payload, cfg.Signature, cfg.Secret) {
		log.Warnf("[%s] Webhook signature verification failed", cfg.Provider)
		metrics.WebhookEventsTotal.WithLabelValues(cfg.Provider, "invalid_signature").Inc()
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid_signature",
		})
	}

	if cfg.EventType == "" {
		metrics.WebhookEventsTotal.WithLabelValues(cfg.Provider, "malformed_payload").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed_payload",
		})
	}

	svc := newBillingService()
	created, event, err := svc.RecordWebhookEvent(c.Context(), billing.WebhookEventInput{
		Provider:        cfg.Provider,
		ProviderEventID: cfg.ProviderEventID,
		EventType:       cfg.EventType,
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		// Persistence failure is the one case the provider should retry.
		log.Errorf("[%s] Failed to store webhook event: %v", cfg.Provider, err)
		metrics.WebhookEventsTotal.WithLabelValues(cfg.Provider, "storage_error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "storage_error",
		})
	}
	if !created {
		metrics.WebhookEventsTotal.WithLabelValues(cfg.Provider, "duplicate").Inc()
		return c.JSON(fiber.Map{
			"received":  true,
			"duplicate": true,
		})
	}

	// The event is durably stored, so the response is 200 regardless of
	// processing outcome; failures are kept on the row for the reconcile
	// job to retry.
	processor := newBillingProcessor()
	if err := processor.Process(c.Context(), event); err != nil {
		log.Errorf("[%s] Processing event %s failed: %v", cfg.Provider, event.ProviderEventID, err)
		metrics.WebhookEventsTotal.WithLabelValues(cfg.Provider, "processing_failed").Inc()
		metrics.EventProcessingFailures.WithLabelValues(cfg.Provider).Inc()
	} else {
		metrics.WebhookEventsTotal.WithLabelValues(cfg.Provider, "processed").Inc()
	}

	return c.JSON(fiber.Map{
		"received": true,
		"event_id": event.ID,
	})
}
