package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WebhookEventsTotal counts inbound webhook deliveries by provider and
	// outcome (stored, duplicate, invalid_signature, malformed, error).
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certforge_webhook_events_total",
		Help: "Inbound billing and identity webhook deliveries by outcome.",
	}, []string{"provider", "outcome"})

	// EventProcessingFailures counts events that stored fine but failed to
	// apply. These are the rows the reconcile job picks up.
	EventProcessingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certforge_billing_event_processing_failures_total",
		Help: "Billing events marked failed during processing.",
	}, []string{"provider"})

	// QuizAttemptsTotal counts finished quiz attempts.
	QuizAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "certforge_quiz_attempts_total",
		Help: "Completed quiz attempts.",
	})

	// AIAnalysisRequests counts attempt analysis generations by result.
	AIAnalysisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certforge_ai_analysis_requests_total",
		Help: "AI attempt analysis generations by result.",
	}, []string{"result"})
)

// Handler exposes the Prometheus scrape endpoint as a Fiber handler.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
