package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarst/CertForge/internal/pkg/cache"
)

// requireTestRedis skips the test when no Redis endpoint is reachable, so
// the suite stays runnable on machines without the dev stack.
func requireTestRedis(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := cache.GetClient().Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", err)
	}
}

func cleanupJob(t *testing.T, q *Queue, jobID string) {
	t.Helper()

	ctx := context.Background()
	q.client.Del(ctx, JobKeyPrefix+jobID)
	q.client.LRem(ctx, JobQueueKey, 0, jobID)
	q.client.LRem(ctx, JobProcessingKey, 0, jobID)
}

func TestEnqueueAndGetJob(t *testing.T) {
	requireTestRedis(t)

	q := NewQueue(1)

	payload := BillingReconcileJobPayload{BillingEventID: 4711}
	job, err := q.EnqueueJob(JobTypeBillingReconcile, payload.ToMap())
	require.NoError(t, err)
	require.NotNil(t, job)
	defer cleanupJob(t, q, job.ID)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobTypeBillingReconcile, job.Type)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, DefaultMaxRetries, job.MaxRetries)

	stored, err := q.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, stored.ID)
	assert.Equal(t, JobStatusPending, stored.Status)

	restored, err := BillingReconcileJobPayloadFromMap(stored.Payload)
	require.NoError(t, err)
	assert.Equal(t, uint(4711), restored.BillingEventID)
}

func TestQueueSizeTracksEnqueue(t *testing.T) {
	requireTestRedis(t)

	q := NewQueue(1)
	ctx := context.Background()

	before, err := q.GetQueueSize(ctx)
	require.NoError(t, err)

	payload := EventArchiveJobPayload{BatchSize: 10}
	job, err := q.EnqueueJob(JobTypeEventArchive, payload.ToMap())
	require.NoError(t, err)
	defer cleanupJob(t, q, job.ID)

	after, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
}
