package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/mkarst/CertForge/internal/pkg/billing"
	"github.com/mkarst/CertForge/internal/pkg/database"
	"github.com/mkarst/CertForge/internal/pkg/s3archive"
)

const defaultArchiveBatchSize = 500

// batchUploader is the S3 slice the archive job needs.
type batchUploader interface {
	UploadBatch(ctx context.Context, objectKey string, body []byte) error
}

// newArchiveClient builds the S3 client for an archive sweep. Package
// variable so tests can substitute a fake.
var newArchiveClient = func(cfg *s3archive.Config) (batchUploader, error) {
	return s3archive.NewClient(cfg)
}

// processEventArchiveJob exports processed billing events past the
// retention window to S3 and prunes the exported rows. Pending events are
// never touched.
func (q *Queue) processEventArchiveJob(ctx context.Context, job *Job) error {
	payload, err := EventArchiveJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid archive payload: %w", err)
	}
	batchSize := payload.BatchSize
	if batchSize <= 0 {
		batchSize = defaultArchiveBatchSize
	}

	cfg, err := s3archive.LoadConfig()
	if err != nil {
		return err
	}
	if !cfg.IsEnabled() {
		log.Debug("[Archive] S3 archive disabled, skipping sweep")
		return nil
	}

	repo := billing.NewRepository(database.GetDB())
	cutoff := cfg.RetentionCutoff(time.Now())

	events, err := repo.ListEventsOlderThan(cutoff, batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal archive batch: %w", err)
	}

	client, err := newArchiveClient(cfg)
	if err != nil {
		return err
	}

	now := time.Now()
	objectKey := cfg.GetObjectKey(uuid.New().String(), now.Year(), int(now.Month()))
	if err := client.UploadBatch(ctx, objectKey, body); err != nil {
		return err
	}

	// Prune only after the upload is durable.
	ids := make([]uint, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
	}
	if err := repo.DeleteEvents(ids); err != nil {
		return fmt.Errorf("exported %d events but pruning failed: %w", len(ids), err)
	}

	log.Infof("[Archive] Exported and pruned %d billing events (key=%s)", len(ids), objectKey)
	return nil
}
