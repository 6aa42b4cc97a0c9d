package jobqueue

import (
	"testing"
	"time"
)

func TestJobLifecycleTransitions(t *testing.T) {
	job := &Job{
		ID:         "test-job",
		Type:       JobTypeBillingReconcile,
		Status:     JobStatusPending,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  time.Now(),
	}

	job.MarkAsProcessing()
	if job.Status != JobStatusProcessing || job.ProcessedAt == nil {
		t.Fatalf("unexpected state after MarkAsProcessing: %+v", job)
	}

	job.MarkAsFailed("boom")
	if job.Status != JobStatusFailed || job.RetryCount != 1 || job.ErrorMsg != "boom" {
		t.Fatalf("unexpected state after MarkAsFailed: %+v", job)
	}
	if !job.IsRetryable() {
		t.Fatalf("first failure must be retryable")
	}

	job.RetryCount = DefaultMaxRetries
	if job.IsRetryable() {
		t.Fatalf("job at retry limit must not be retryable")
	}

	job.MarkAsCompleted()
	if job.Status != JobStatusCompleted || job.CompletedAt == nil || job.ErrorMsg != "" {
		t.Fatalf("unexpected state after MarkAsCompleted: %+v", job)
	}
}

func TestBillingReconcileJobPayloadRoundTrip(t *testing.T) {
	payload := BillingReconcileJobPayload{BillingEventID: 77}

	restored, err := BillingReconcileJobPayloadFromMap(payload.ToMap())
	if err != nil {
		t.Fatalf("payload from map: %v", err)
	}
	if restored.BillingEventID != 77 {
		t.Fatalf("billing event id = %d", restored.BillingEventID)
	}
}

func TestStudyReminderJobPayloadRoundTrip(t *testing.T) {
	payload := StudyReminderJobPayload{UserID: 42}

	restored, err := StudyReminderJobPayloadFromMap(payload.ToMap())
	if err != nil {
		t.Fatalf("payload from map: %v", err)
	}
	if restored.UserID != 42 {
		t.Fatalf("user id = %d", restored.UserID)
	}
}
