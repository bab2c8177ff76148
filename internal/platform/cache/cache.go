// Package cache provides best-effort key-value caches for read-through
// lookups. No operation returns an error: failures are logged, counted and
// surface to callers as a miss (Get) or a no-op (Set, Delete).
package cache

import (
	"context"
	"time"
)

// DefaultTTL applies when Set is called with a zero TTL and no other default
// was configured.
const DefaultTTL = 300 * time.Second

// Cache is implemented by every backend.
type Cache interface {
	// Get decodes the value stored at key into dest and reports a hit.
	// Absent, expired and undecodable entries are all misses.
	Get(ctx context.Context, key string, dest any) bool
	// Set stores value under key for ttl; ttl <= 0 uses the backend default.
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// Noop never stores anything. Used when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string, any) bool              { return false }
func (Noop) Set(context.Context, string, any, time.Duration)    {}
func (Noop) Delete(context.Context, string)                     {}
