// Package queue is a Redis-backed job queue for provisioning work. Jobs are
// delivered at least once, retried with a fixed backoff, and parked on a
// dead-letter list once retries are exhausted, so a payment webhook is never
// lost to a transient panel outage or a process restart.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix  = "provision:job:"
	queueKey      = "provision:queue"
	processingKey = "provision:processing"
	deadKey       = "provision:dead"

	jobTTL             = 24 * time.Hour
	defaultBackoff     = 15 * time.Second
	popTimeout         = 2 * time.Second
	jobBudget          = 90 * time.Second
	defaultStuckAfter  = 5 * time.Minute
	defaultSweepPeriod = time.Minute
)

// Handler processes one job. A non-nil error triggers a retry.
type Handler func(ctx context.Context, job *Job) error

type Queue struct {
	client     *redis.Client
	workers    int
	maxRetries int
	handler    Handler

	backoff     time.Duration
	stuckAfter  time.Duration
	sweepPeriod time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(client *redis.Client, workers, maxRetries int) *Queue {
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:      client,
		workers:     workers,
		maxRetries:  maxRetries,
		backoff:     defaultBackoff,
		stuckAfter:  defaultStuckAfter,
		sweepPeriod: defaultSweepPeriod,
		stopCh:      make(chan struct{}),
	}
}

// Enqueue registers a provisioning job for the subscription.
func (q *Queue) Enqueue(ctx context.Context, subscriptionID uuid.UUID) error {
	now := time.Now().UTC()
	job := Job{
		ID:             uuid.New().String(),
		SubscriptionID: subscriptionID,
		Status:         JobStatusPending,
		MaxRetries:     q.maxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := q.saveJob(ctx, &job); err != nil {
		return err
	}
	if err := q.client.LPush(ctx, queueKey, job.ID).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	slog.Info("provisioning job enqueued", "job_id", job.ID, "subscription_id", subscriptionID)
	return nil
}

// Start launches the worker pool.
func (q *Queue) Start(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	q.running = true
	q.handler = handler

	slog.Info("provisioning queue starting", "workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Recovers jobs stranded on the processing list when a previous process
	// died mid-job, preserving at-least-once delivery across restarts.
	q.wg.Add(1)
	go q.stuckSweeper()
}

// Stop drains the workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
	slog.Info("provisioning queue stopped")
}

// Stats returns queue depths for the admin dashboard.
func (q *Queue) Stats(ctx context.Context) (queued, processing, dead int64, err error) {
	if queued, err = q.client.LLen(ctx, queueKey).Result(); err != nil {
		return
	}
	if processing, err = q.client.LLen(ctx, processingKey).Result(); err != nil {
		return
	}
	dead, err = q.client.LLen(ctx, deadKey).Result()
	return
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		jobID, err := q.client.BRPopLPush(ctx, queueKey, processingKey, popTimeout).Result()
		if err != nil {
			if err != redis.Nil {
				slog.Error("queue pop failed", "worker", id, "error", err)
				time.Sleep(time.Second)
			}
			continue
		}

		q.process(ctx, jobID)
	}
}

func (q *Queue) process(ctx context.Context, jobID string) {
	defer q.client.LRem(ctx, processingKey, 1, jobID)

	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		slog.Error("job load failed", "job_id", jobID, "error", err)
		return
	}

	now := time.Now().UTC()
	job.Status = JobStatusProcessing
	job.ProcessedAt = &now
	job.UpdatedAt = now
	_ = q.saveJob(ctx, job)

	jobCtx, cancel := context.WithTimeout(ctx, jobBudget)
	err = q.handler(jobCtx, job)
	cancel()

	if err == nil {
		job.Status = JobStatusCompleted
		job.LastError = ""
		job.UpdatedAt = time.Now().UTC()
		_ = q.saveJob(ctx, job)
		slog.Info("provisioning job completed", "job_id", job.ID, "subscription_id", job.SubscriptionID)
		return
	}

	job.Status = JobStatusFailed
	job.RetryCount++
	job.LastError = err.Error()
	job.UpdatedAt = time.Now().UTC()
	_ = q.saveJob(ctx, job)

	if job.IsRetryable() {
		slog.Warn("provisioning job failed, retrying",
			"job_id", job.ID, "subscription_id", job.SubscriptionID,
			"attempt", job.RetryCount, "error", err)
		q.wg.Add(1)
		go q.requeueAfter(job.ID, q.backoff)
		return
	}

	job.Status = JobStatusDead
	job.UpdatedAt = time.Now().UTC()
	_ = q.saveJob(ctx, job)
	if err := q.client.LPush(ctx, deadKey, job.ID).Err(); err != nil {
		slog.Error("dead-letter push failed", "job_id", job.ID, "error", err)
	}
	slog.Error("provisioning job dead-lettered",
		"job_id", job.ID, "subscription_id", job.SubscriptionID.String(),
		"action", "provision", "error", job.LastError)
}

func (q *Queue) requeueAfter(jobID string, delay time.Duration) {
	defer q.wg.Done()
	select {
	case <-q.stopCh:
		// Push back immediately on shutdown so the job survives the restart.
	case <-time.After(delay):
	}
	if err := q.client.LPush(context.Background(), queueKey, jobID).Err(); err != nil {
		slog.Error("job requeue failed", "job_id", jobID, "error", err)
	}
}

// stuckSweeper scans the processing list and requeues jobs whose last
// heartbeat is older than stuckAfter. A job lands there permanently only when
// the process holding it died between BRPopLPush and LRem.
func (q *Queue) stuckSweeper() {
	defer q.wg.Done()
	ctx := context.Background()

	ticker := time.NewTicker(q.sweepPeriod)
	defer ticker.Stop()

	q.sweepStuck(ctx)
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.sweepStuck(ctx)
		}
	}
}

func (q *Queue) sweepStuck(ctx context.Context) {
	ids, err := q.client.LRange(ctx, processingKey, 0, -1).Result()
	if err != nil {
		slog.Error("stuck sweep list failed", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			// Job hash expired or corrupt; the list entry is an orphan.
			q.client.LRem(ctx, processingKey, 1, id)
			continue
		}
		if !StuckSince(job, now, q.stuckAfter) {
			// A finished job still listed here lost only its LRem; drop the
			// stray entry once it is old enough to rule out an in-flight LRem.
			terminal := job.Status == JobStatusCompleted || job.Status == JobStatusDead
			if terminal && now.Sub(job.UpdatedAt) > q.stuckAfter {
				q.client.LRem(ctx, processingKey, 1, id)
			}
			continue
		}
		// LRem doubles as the claim: with several instances sweeping, only
		// the one that removes the entry requeues the job.
		removed, err := q.client.LRem(ctx, processingKey, 1, id).Result()
		if err != nil || removed == 0 {
			continue
		}

		job.Status = JobStatusPending
		job.LastError = "recovered from processing after restart"
		job.UpdatedAt = now
		_ = q.saveJob(ctx, job)
		if err := q.client.LPush(ctx, queueKey, id).Err(); err != nil {
			slog.Error("stuck job requeue failed", "job_id", id, "error", err)
			continue
		}
		slog.Warn("recovered stuck provisioning job",
			"job_id", id, "subscription_id", job.SubscriptionID.String())
	}
}

func (q *Queue) saveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.Set(ctx, jobKeyPrefix+job.ID, data, jobTTL).Err(); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (q *Queue) loadJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, jobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}
