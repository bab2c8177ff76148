package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "catalog/pkg/platform/audit"
	"catalog/pkg/platform/audit/queue"
	"catalog/pkg/platform/audit/store/memory"
)

type failingStore struct{ err error }

func (f failingStore) Append(context.Context, audit.Record) error { return f.err }
func (f failingStore) ListRecent(context.Context, int) ([]audit.Record, error) {
	return nil, f.err
}

var materializedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMaterializer_WritesRecord(t *testing.T) {
	store := memory.NewInMemoryStore()
	m := NewMaterializer(store, WithClock(func() time.Time { return materializedAt }))

	event := audit.Event{
		ActorID:   "user-1",
		Action:    audit.ActionRecordCreated,
		Detail:    "Created product Laptop",
		ClientIP:  "10.0.0.1",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
	}
	err := m.Handle(context.Background(), &queue.Job{ID: "job-1", Event: event, Attempts: 1})
	require.NoError(t, err)

	records, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "job-1", records[0].ID)
	assert.Equal(t, event, records[0].Event)
	assert.Equal(t, materializedAt, records[0].OccurredAt)
	assert.Contains(t, records[0].Client, "Firefox")
}

func TestMaterializer_RedeliveryKeepsOneRow(t *testing.T) {
	store := memory.NewInMemoryStore()
	m := NewMaterializer(store)
	job := &queue.Job{ID: "job-1", Event: audit.Event{Action: audit.ActionRecordCreated}}

	require.NoError(t, m.Handle(context.Background(), job))
	require.NoError(t, m.Handle(context.Background(), job))

	records, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMaterializer_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	m := NewMaterializer(failingStore{err: boom})

	_, err := m.Materialize(context.Background(), "job-1", audit.Event{Action: audit.ActionRecordCreated})
	require.ErrorIs(t, err, boom)
}
