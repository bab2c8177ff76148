// Package queue is the durable, at-least-once work queue that carries audit
// events from producers to the materializing consumer.
//
// A job moves waiting -> active -> completed, or on failure back to delayed
// (and later waiting) until its attempts run out, then to failed. Completed
// and failed jobs are trimmed according to the Policy.
package queue

import (
	"context"
	"time"

	audit "catalog/pkg/platform/audit"
)

// State of a job.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is one queued event. Attempts counts processing attempts started so
// far, including the current one while the job is active.
type Job struct {
	ID         string      `json:"id"`
	Event      audit.Event `json:"event"`
	State      State       `json:"state"`
	Attempts   int         `json:"attempts"`
	LastError  string      `json:"last_error,omitempty"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
}

// Queue is implemented by RedisQueue and MemoryQueue.
type Queue interface {
	// Enqueue returns once the event is queued. It does not wait for processing.
	Enqueue(ctx context.Context, event audit.Event) error
	// Reserve blocks until a job is ready and marks it active.
	Reserve(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	// Fail either schedules a retry after the policy backoff, reporting true,
	// or moves the job to the failed bucket.
	Fail(ctx context.Context, job *Job, cause error) (retrying bool, err error)
	// Failed lists jobs in the failed bucket, newest first.
	Failed(ctx context.Context) ([]Job, error)
}

// Policy is the retry and retention contract of a queue.
type Policy struct {
	Attempts          int
	Backoff           time.Duration
	CompletedMaxAge   time.Duration
	CompletedMaxCount int
	FailedMaxAge      time.Duration
}

// DefaultPolicy: three attempts, exponential backoff from 2s, completed jobs
// kept for an hour (at most 1000), failed jobs kept for a day.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:          3,
		Backoff:           2 * time.Second,
		CompletedMaxAge:   time.Hour,
		CompletedMaxCount: 1000,
		FailedMaxAge:      24 * time.Hour,
	}
}

// BackoffFor returns the delay before the retry that follows the given
// failed attempt: Backoff, 2*Backoff, 4*Backoff, ...
func (p Policy) BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.Backoff << (attempt - 1)
}

func (p Policy) exhausted(attempts int) bool {
	return attempts >= p.Attempts
}
