package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want bool
	}{
		{"failed with attempts left", Job{Status: JobStatusFailed, RetryCount: 2, MaxRetries: 5}, true},
		{"failed on last attempt", Job{Status: JobStatusFailed, RetryCount: 5, MaxRetries: 5}, false},
		{"pending is not retried", Job{Status: JobStatusPending, RetryCount: 0, MaxRetries: 5}, false},
		{"completed is not retried", Job{Status: JobStatusCompleted, RetryCount: 1, MaxRetries: 5}, false},
		{"dead stays dead", Job{Status: JobStatusDead, RetryCount: 5, MaxRetries: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.job.IsRetryable())
		})
	}
}
