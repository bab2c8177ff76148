package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/viccon/sturdyc"

	"catalog/internal/platform/metrics"
)

// MemoryConfig sizes the in-process cache.
type MemoryConfig struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
}

// DefaultMemoryConfig mirrors the production Redis defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:           10000,
		NumShards:          64,
		TTL:                DefaultTTL,
		EvictionPercentage: 10,
	}
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is a sturdyc-backed in-process cache. Values are stored as JSON
// so callers never share pointers with the cache. sturdyc applies TTL per
// client, so the per-key expiry is tracked alongside the bytes and capped by
// the client TTL.
type MemoryCache struct {
	client  *sturdyc.Client[memoryEntry]
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewMemory(cfg MemoryConfig, logger *slog.Logger, m *metrics.Metrics) *MemoryCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryCache{
		client:  sturdyc.New[memoryEntry](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage),
		ttl:     cfg.TTL,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string, dest any) bool {
	entry, ok := c.client.Get(key)
	if !ok || !c.now().Before(entry.expiresAt) {
		c.metrics.IncrementCacheMiss()
		return false
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		c.metrics.IncrementCacheError("decode")
		c.logger.WarnContext(ctx, "cache entry undecodable, treating as miss", "key", key, "error", err)
		c.metrics.IncrementCacheMiss()
		return false
	}
	c.metrics.IncrementCacheHit()
	return true
}

func (c *MemoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 || ttl > c.ttl {
		ttl = c.ttl
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.metrics.IncrementCacheError("encode")
		c.logger.WarnContext(ctx, "cache value not serializable", "key", key, "error", err)
		return
	}
	c.client.Set(key, memoryEntry{data: raw, expiresAt: c.now().Add(ttl)})
}

func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.client.Delete(key)
}
