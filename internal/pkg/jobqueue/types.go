package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeBillingReconcile JobType = "billing_reconcile"
	JobTypeEventArchive     JobType = "event_archive"
	JobTypeStudyReminder    JobType = "study_reminder"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// BillingReconcileJobPayload identifies one failed billing event to repair.
type BillingReconcileJobPayload struct {
	BillingEventID uint `json:"billing_event_id"`
}

// ToMap converts the payload to a map for storage
func (p BillingReconcileJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"billing_event_id": p.BillingEventID,
	}
}

// BillingReconcileJobPayloadFromMap creates a payload from a map
func BillingReconcileJobPayloadFromMap(data map[string]interface{}) (*BillingReconcileJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload BillingReconcileJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// EventArchiveJobPayload configures one archive sweep. BatchSize zero
// means the default.
type EventArchiveJobPayload struct {
	BatchSize int `json:"batch_size"`
}

// ToMap converts the payload to a map for storage
func (p EventArchiveJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"batch_size": p.BatchSize,
	}
}

// EventArchiveJobPayloadFromMap creates a payload from a map
func EventArchiveJobPayloadFromMap(data map[string]interface{}) (*EventArchiveJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload EventArchiveJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// StudyReminderJobPayload identifies one user due a practice reminder.
type StudyReminderJobPayload struct {
	UserID uint `json:"user_id"`
}

// ToMap converts the payload to a map for storage
func (p StudyReminderJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id": p.UserID,
	}
}

// StudyReminderJobPayloadFromMap creates a payload from a map
func StudyReminderJobPayloadFromMap(data map[string]interface{}) (*StudyReminderJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload StudyReminderJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
