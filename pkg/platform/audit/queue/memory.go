package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "catalog/pkg/platform/audit"
	"catalog/pkg/platform/sentinel"
)

// MemoryQueue applies the same policy as RedisQueue in process. Jobs do not
// survive a restart; use it for development and tests.
type MemoryQueue struct {
	mu      sync.Mutex
	policy  Policy
	now     func() time.Time
	jobs    map[string]*Job
	waiting []string
	delayed map[string]time.Time
	wake    chan struct{}
	done    chan struct{}
	closed  bool
}

func NewMemory(policy Policy) *MemoryQueue {
	return &MemoryQueue{
		policy:  policy,
		now:     time.Now,
		jobs:    make(map[string]*Job),
		delayed: make(map[string]time.Time),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// WithClock replaces the time source. Call before use.
func (q *MemoryQueue) WithClock(now func() time.Time) *MemoryQueue {
	q.now = now
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, event audit.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return sentinel.ErrQueueClosed
	}

	job := &Job{
		ID:         uuid.NewString(),
		Event:      event,
		State:      StateWaiting,
		EnqueuedAt: q.now(),
	}
	q.jobs[job.ID] = job
	q.waiting = append(q.waiting, job.ID)
	q.signal()
	return nil
}

func (q *MemoryQueue) Reserve(ctx context.Context) (*Job, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, sentinel.ErrQueueClosed
		}
		next := q.promoteLocked()
		if len(q.waiting) > 0 {
			id := q.waiting[0]
			q.waiting = q.waiting[1:]
			job := q.jobs[id]
			job.State = StateActive
			job.Attempts++
			out := *job
			q.mu.Unlock()
			return &out, nil
		}
		q.mu.Unlock()

		if err := q.wait(ctx, next); err != nil {
			return nil, err
		}
	}
}

func (q *MemoryQueue) wait(ctx context.Context, until time.Time) error {
	var timer <-chan time.Time
	if !until.IsZero() {
		t := time.NewTimer(until.Sub(q.now()))
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return sentinel.ErrQueueClosed
	case <-q.wake:
	case <-timer:
	}
	return nil
}

func (q *MemoryQueue) Complete(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.jobs[job.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	stored.State = StateCompleted
	stored.FinishedAt = q.now()
	q.trimLocked()
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, job *Job, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.jobs[job.ID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if cause != nil {
		stored.LastError = cause.Error()
	}

	if q.policy.exhausted(stored.Attempts) {
		stored.State = StateFailed
		stored.FinishedAt = q.now()
		q.trimLocked()
		return false, nil
	}

	stored.State = StateDelayed
	q.delayed[stored.ID] = q.now().Add(q.policy.BackoffFor(stored.Attempts))
	q.signal()
	return true, nil
}

func (q *MemoryQueue) Failed(_ context.Context) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.trimLocked()
	return q.listLocked(StateFailed), nil
}

// Completed lists retained completed jobs, newest first.
func (q *MemoryQueue) Completed(_ context.Context) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.trimLocked()
	return q.listLocked(StateCompleted), nil
}

// Close wakes blocked Reserve calls and rejects further work.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

// promoteLocked moves due delayed jobs to waiting and returns the earliest
// remaining ready time, or zero if nothing is delayed.
func (q *MemoryQueue) promoteLocked() time.Time {
	now := q.now()
	var next time.Time
	due := make([]string, 0)
	for id, at := range q.delayed {
		if !at.After(now) {
			due = append(due, id)
			continue
		}
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	sort.Slice(due, func(i, j int) bool { return q.delayed[due[i]].Before(q.delayed[due[j]]) })
	for _, id := range due {
		delete(q.delayed, id)
		q.jobs[id].State = StateWaiting
		q.waiting = append(q.waiting, id)
	}
	return next
}

func (q *MemoryQueue) trimLocked() {
	now := q.now()
	var completed []*Job
	for id, job := range q.jobs {
		switch job.State {
		case StateCompleted:
			if now.Sub(job.FinishedAt) > q.policy.CompletedMaxAge {
				delete(q.jobs, id)
				continue
			}
			completed = append(completed, job)
		case StateFailed:
			if now.Sub(job.FinishedAt) > q.policy.FailedMaxAge {
				delete(q.jobs, id)
			}
		}
	}
	if limit := q.policy.CompletedMaxCount; limit > 0 && len(completed) > limit {
		sortNewestFirst(completed)
		for _, job := range completed[limit:] {
			delete(q.jobs, job.ID)
		}
	}
}

func (q *MemoryQueue) listLocked(state State) []Job {
	var matched []*Job
	for _, job := range q.jobs {
		if job.State == state {
			matched = append(matched, job)
		}
	}
	sortNewestFirst(matched)
	out := make([]Job, len(matched))
	for i, job := range matched {
		out[i] = *job
	}
	return out
}

func (q *MemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func sortNewestFirst(jobs []*Job) {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].FinishedAt.After(jobs[j].FinishedAt) })
}
