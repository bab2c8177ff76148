// Package worker runs the audit consumer against a queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"catalog/internal/platform/metrics"
	"catalog/pkg/platform/audit/queue"
	"catalog/pkg/platform/sentinel"
)

// Source is the consumer side of a queue.
type Source interface {
	Reserve(ctx context.Context) (*queue.Job, error)
	Complete(ctx context.Context, job *queue.Job) error
	Fail(ctx context.Context, job *queue.Job, cause error) (bool, error)
}

// Handler processes one job. A returned error triggers the queue's retry
// policy.
type Handler interface {
	Handle(ctx context.Context, job *queue.Job) error
}

// Worker reserves jobs and hands them to a Handler. It keeps background
// processing testable without a real queue.
type Worker struct {
	source      Source
	handler     Handler
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	errBackoff  time.Duration
}

type Option func(*Worker)

func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func NewWorker(source Source, handler Handler, opts ...Option) *Worker {
	w := &Worker{
		source:      source,
		handler:     handler,
		concurrency: 1,
		logger:      slog.Default(),
		errBackoff:  time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes jobs until ctx is cancelled or the queue is closed. A job in
// flight when ctx is cancelled is left to the queue's stalled-job recovery.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "audit worker started", "concurrency", w.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()

	w.logger.Info("audit worker stopped")
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	for {
		job, err := w.source.Reserve(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, sentinel.ErrQueueClosed) {
				return
			}
			w.logger.ErrorContext(ctx, "failed to reserve audit job", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.errBackoff):
			}
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	err := w.handle(ctx, job)
	if err == nil {
		if err := w.source.Complete(ctx, job); err != nil {
			w.logger.ErrorContext(ctx, "failed to complete audit job", "job_id", job.ID, "error", err)
		}
		w.metrics.IncrementAuditJob("completed")
		return
	}

	retrying, failErr := w.source.Fail(ctx, job, err)
	if failErr != nil {
		w.logger.ErrorContext(ctx, "failed to record audit job failure",
			"job_id", job.ID,
			"error", failErr,
		)
		return
	}
	if retrying {
		w.metrics.IncrementAuditJob("retried")
		w.logger.WarnContext(ctx, "audit job failed, will retry",
			"job_id", job.ID,
			"attempt", job.Attempts,
			"error", err,
		)
		return
	}
	w.metrics.IncrementAuditJob("failed")
	w.logger.ErrorContext(ctx, "audit job failed permanently",
		"job_id", job.ID,
		"attempts", job.Attempts,
		"action", job.Event.Action,
		"error", err,
	)
}

// handle converts handler panics into job failures so one bad job cannot
// stop the worker.
func (w *Worker) handle(ctx context.Context, job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit handler panic: %v", r)
		}
	}()
	return w.handler.Handle(ctx, job)
}
