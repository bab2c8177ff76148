// Package consumer turns queued audit jobs into durable activity-log rows.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"catalog/internal/platform/metrics"
	audit "catalog/pkg/platform/audit"
	"catalog/pkg/platform/audit/queue"
)

// Materializer writes one record per job. The job ID doubles as the record
// ID, so a redelivered job lands on the same row.
type Materializer struct {
	store   audit.Store
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Materializer)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Materializer) { m.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(mat *Materializer) { mat.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(m *Materializer) { m.now = now }
}

func NewMaterializer(store audit.Store, opts ...Option) *Materializer {
	m := &Materializer{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle implements worker.Handler.
func (m *Materializer) Handle(ctx context.Context, job *queue.Job) error {
	_, err := m.Materialize(ctx, job.ID, job.Event)
	return err
}

// Materialize stamps OccurredAt, derives the client descriptor and persists
// the record. A store error is returned unchanged in meaning so the queue can
// retry.
func (m *Materializer) Materialize(ctx context.Context, id string, event audit.Event) (audit.Record, error) {
	start := m.now()
	record := audit.Record{
		ID:         id,
		Event:      event,
		Client:     audit.DescribeClient(event.UserAgent),
		OccurredAt: start.UTC(),
	}

	if err := m.store.Append(ctx, record); err != nil {
		return audit.Record{}, fmt.Errorf("materialize %s: %w", event.Action, err)
	}
	m.metrics.ObserveAuditMaterialize(start)

	m.logger.DebugContext(ctx, "activity logged",
		"record_id", record.ID,
		"action", record.Action,
		"actor_id", record.ActorID,
	)
	return record, nil
}
