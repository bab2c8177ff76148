package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/internal/platform/metrics"
	audit "catalog/pkg/platform/audit"
	"catalog/pkg/platform/audit/queue"
)

type handlerFunc func(ctx context.Context, job *queue.Job) error

func (f handlerFunc) Handle(ctx context.Context, job *queue.Job) error { return f(ctx, job) }

func runUntil(t *testing.T, w *Worker, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	require.Eventually(t, done, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)
}

func TestWorker_CompletesHandledJobs(t *testing.T) {
	q := queue.NewMemory(queue.DefaultPolicy())
	m := metrics.New(prometheus.NewRegistry())

	var mu sync.Mutex
	var seen []string
	w := NewWorker(q, handlerFunc(func(_ context.Context, job *queue.Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.Event.Detail)
		return nil
	}), WithMetrics(m), WithConcurrency(2))

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, audit.Event{Action: audit.ActionRecordCreated, Detail: "a"}))
	require.NoError(t, q.Enqueue(ctx, audit.Event{Action: audit.ActionRecordCreated, Detail: "b"}))

	runUntil(t, w, func() bool {
		completed, _ := q.Completed(ctx)
		return len(completed) == 2
	})

	mu.Lock()
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
	mu.Unlock()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuditJobs.WithLabelValues("completed")))
}

func TestWorker_FailureGoesThroughRetryPolicy(t *testing.T) {
	policy := queue.DefaultPolicy()
	policy.Attempts = 2
	policy.Backoff = time.Millisecond
	q := queue.NewMemory(policy)
	m := metrics.New(prometheus.NewRegistry())

	w := NewWorker(q, handlerFunc(func(context.Context, *queue.Job) error {
		return errors.New("store unavailable")
	}), WithMetrics(m))

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, audit.Event{Action: audit.ActionRecordCreated}))

	runUntil(t, w, func() bool {
		failed, _ := q.Failed(ctx)
		return len(failed) == 1
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditJobs.WithLabelValues("retried")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditJobs.WithLabelValues("failed")))
}

func TestWorker_PanicIsAFailure(t *testing.T) {
	policy := queue.DefaultPolicy()
	policy.Attempts = 1
	q := queue.NewMemory(policy)

	w := NewWorker(q, handlerFunc(func(context.Context, *queue.Job) error {
		panic("boom")
	}))

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, audit.Event{Action: audit.ActionRecordCreated}))

	runUntil(t, w, func() bool {
		failed, _ := q.Failed(ctx)
		return len(failed) == 1 && failed[0].LastError == "audit handler panic: boom"
	})
}

func TestWorker_StopsWhenQueueCloses(t *testing.T) {
	q := queue.NewMemory(queue.DefaultPolicy())
	w := NewWorker(q, handlerFunc(func(context.Context, *queue.Job) error { return nil }))

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
