package memory

import (
	"context"
	"sort"
	"sync"

	audit "catalog/pkg/platform/audit"
)

// InMemoryStore keeps activity-log records in process.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]audit.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]audit.Record)}
}

// Append ignores a record whose ID is already stored.
func (s *InMemoryStore) Append(_ context.Context, record audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return nil
	}
	s.records[record.ID] = record
	return nil
}

// ListRecent returns up to limit records, most recent first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]audit.Record, 0, len(s.records))
	for _, r := range s.records {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OccurredAt.After(all[j].OccurredAt) })

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
