package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQueue(t *testing.T, workers, maxRetries int) (*Queue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q := New(client, workers, maxRetries)
	q.backoff = 20 * time.Millisecond
	q.stuckAfter = 100 * time.Millisecond
	q.sweepPeriod = 50 * time.Millisecond
	return q, client
}

func TestQueueProcessesEnqueuedJob(t *testing.T) {
	q, client := testQueue(t, 1, 3)
	ctx := context.Background()

	processed := make(chan uuid.UUID, 1)
	q.Start(func(ctx context.Context, job *Job) error {
		processed <- job.SubscriptionID
		return nil
	})
	defer q.Stop()

	subID := uuid.New()
	require.NoError(t, q.Enqueue(ctx, subID))

	select {
	case got := <-processed:
		assert.Equal(t, subID, got)
	case <-time.After(3 * time.Second):
		t.Fatal("job was never processed")
	}

	require.Eventually(t, func() bool {
		return client.LLen(ctx, processingKey).Val() == 0
	}, 3*time.Second, 20*time.Millisecond, "processing list should drain")
}

// A worker that dies between BRPopLPush and LRem leaves the job on the
// processing list; a fresh queue must pick it back up rather than strand it.
func TestQueueRecoversJobLeftInProcessingAfterRestart(t *testing.T) {
	q, client := testQueue(t, 1, 3)
	ctx := context.Background()

	stale := time.Now().UTC().Add(-time.Hour)
	job := Job{
		ID:             uuid.New().String(),
		SubscriptionID: uuid.New(),
		Status:         JobStatusProcessing,
		MaxRetries:     3,
		CreatedAt:      stale,
		UpdatedAt:      stale,
		ProcessedAt:    &stale,
	}
	require.NoError(t, q.saveJob(ctx, &job))
	require.NoError(t, client.LPush(ctx, processingKey, job.ID).Err())

	processed := make(chan uuid.UUID, 1)
	q.Start(func(ctx context.Context, j *Job) error {
		processed <- j.SubscriptionID
		return nil
	})
	defer q.Stop()

	select {
	case got := <-processed:
		assert.Equal(t, job.SubscriptionID, got)
	case <-time.After(3 * time.Second):
		t.Fatal("stuck job was never recovered")
	}
}

func TestQueueDeadLettersAfterRetriesExhausted(t *testing.T) {
	q, client := testQueue(t, 1, 1)
	ctx := context.Background()

	var attempts atomic.Int32
	q.Start(func(ctx context.Context, job *Job) error {
		attempts.Add(1)
		return errors.New("panel unreachable")
	})
	defer q.Stop()

	require.NoError(t, q.Enqueue(ctx, uuid.New()))

	require.Eventually(t, func() bool {
		return client.LLen(ctx, deadKey).Val() == 1
	}, 3*time.Second, 20*time.Millisecond, "job should be dead-lettered")
	assert.Equal(t, int32(1), attempts.Load())

	jobID, err := client.LRange(ctx, deadKey, 0, -1).Result()
	require.NoError(t, err)
	dead, err := q.loadJob(ctx, jobID[0])
	require.NoError(t, err)
	assert.Equal(t, JobStatusDead, dead.Status)
	assert.Contains(t, dead.LastError, "panel unreachable")
}

func TestQueueStats(t *testing.T) {
	q, client := testQueue(t, 1, 3)
	ctx := context.Background()

	require.NoError(t, client.LPush(ctx, queueKey, "a", "b").Err())
	require.NoError(t, client.LPush(ctx, processingKey, "c").Err())
	require.NoError(t, client.LPush(ctx, deadKey, "d", "e", "f").Err())

	queued, processing, dead, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), queued)
	assert.Equal(t, int64(1), processing)
	assert.Equal(t, int64(3), dead)
}

func TestStuckSince(t *testing.T) {
	now := time.Now().UTC()
	old := now.Add(-time.Hour)
	maxAge := 5 * time.Minute

	tests := []struct {
		name string
		job  Job
		want bool
	}{
		{"processing past max age", Job{Status: JobStatusProcessing, UpdatedAt: old, ProcessedAt: &old}, true},
		{"processing still fresh", Job{Status: JobStatusProcessing, UpdatedAt: now, ProcessedAt: &now}, false},
		{"pending stranded by crash before status save", Job{Status: JobStatusPending, CreatedAt: old}, true},
		{"failed stranded before retry was scheduled", Job{Status: JobStatusFailed, UpdatedAt: old}, true},
		{"completed is a stray, not a loss", Job{Status: JobStatusCompleted, UpdatedAt: old}, false},
		{"dead is a stray, not a loss", Job{Status: JobStatusDead, UpdatedAt: old}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StuckSince(&tt.job, now, maxAge))
		})
	}
}
