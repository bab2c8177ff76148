package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"catalog/internal/products/models"
	"catalog/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded product store for development and tests.
type InMemory struct {
	mu       sync.RWMutex
	products map[string]*entry
	seq      uint64
	now      func() time.Time
}

type entry struct {
	product *models.Product
	seq     uint64
}

func NewInMemory() *InMemory {
	return &InMemory{products: make(map[string]*entry), now: time.Now}
}

// WithClock overrides the timestamp source, for tests.
func (s *InMemory) WithClock(now func() time.Time) *InMemory {
	s.now = now
	return s
}

func (s *InMemory) Insert(_ context.Context, p *models.Product) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := p.Clone()
	stored.ID = uuid.NewString()
	now := s.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.seq++
	s.products[stored.ID] = &entry{product: stored, seq: s.seq}
	return stored.Clone(), nil
}

func (s *InMemory) FindByID(_ context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.products[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.product.Clone(), nil
}

// ListAll returns every product, newest CreatedAt first. Products created
// within the same instant keep reverse insertion order.
func (s *InMemory) ListAll(_ context.Context) ([]*models.Product, error) {
	// entries are snapshotted under the lock; Replace swaps e.product.
	s.mu.RLock()
	entries := make([]entry, 0, len(s.products))
	for _, e := range s.products {
		entries = append(entries, entry{product: e.product.Clone(), seq: e.seq})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.product.CreatedAt.Equal(b.product.CreatedAt) {
			return a.product.CreatedAt.After(b.product.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]*models.Product, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.product)
	}
	return out, nil
}

// Replace persists the full product and refreshes UpdatedAt. CreatedAt is
// kept from the stored copy.
func (s *InMemory) Replace(_ context.Context, p *models.Product) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.products[p.ID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	stored := p.Clone()
	stored.CreatedAt = e.product.CreatedAt
	stored.UpdatedAt = s.now().UTC()
	e.product = stored
	return stored.Clone(), nil
}

func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.products, id)
	return nil
}
