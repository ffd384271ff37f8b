package queue

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusDead       JobStatus = "dead"
)

// Job is one provisioning request: ensure the subscription's client exists
// across all panels and its configs are regenerated.
type Job struct {
	ID             string     `json:"id"`
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	Status         JobStatus  `json:"status"`
	RetryCount     int        `json:"retry_count"`
	MaxRetries     int        `json:"max_retries"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

// IsRetryable reports whether a failed job still has attempts left.
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// StuckSince reports whether a job on the processing list needs recovery:
// its last recorded progress is older than maxAge and it never reached a
// terminal state. A crash can strand a job there with status pending
// (died between pop and the processing save), processing, or failed (died
// before the retry was scheduled) — all three must be requeued. Completed
// and dead jobs on the list are strays, not losses.
func StuckSince(j *Job, now time.Time, maxAge time.Duration) bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusDead:
		return false
	}
	ref := j.UpdatedAt
	if j.ProcessedAt != nil && !j.ProcessedAt.IsZero() {
		ref = *j.ProcessedAt
	}
	if ref.IsZero() {
		ref = j.CreatedAt
	}
	return now.Sub(ref) > maxAge
}
