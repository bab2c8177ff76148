package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"catalog/internal/platform/metrics"
	"catalog/pkg/platform/circuit"
)

// RedisCache stores JSON values in Redis. A circuit breaker skips Redis
// entirely while it is failing, so a dead cache costs nothing per request.
type RedisCache struct {
	client     redis.Cmdable
	breaker    *circuit.Breaker
	logger     *slog.Logger
	metrics    *metrics.Metrics
	defaultTTL time.Duration
}

type RedisOption func(*RedisCache)

func WithLogger(logger *slog.Logger) RedisOption {
	return func(c *RedisCache) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) RedisOption {
	return func(c *RedisCache) { c.metrics = m }
}

func WithBreaker(b *circuit.Breaker) RedisOption {
	return func(c *RedisCache) { c.breaker = b }
}

func WithDefaultTTL(ttl time.Duration) RedisOption {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

func NewRedis(client redis.Cmdable, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client:     client,
		logger:     slog.Default(),
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuit.New("redis-cache",
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(5*time.Second),
		)
	}
	return c
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) bool {
	if !c.breaker.Allow() {
		c.metrics.IncrementCacheMiss()
		return false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordSuccess(ctx)
		c.metrics.IncrementCacheMiss()
		return false
	}
	if err != nil {
		c.recordFailure(ctx, "get", key, err)
		c.metrics.IncrementCacheMiss()
		return false
	}
	c.recordSuccess(ctx)

	if err := json.Unmarshal(raw, dest); err != nil {
		c.metrics.IncrementCacheError("decode")
		c.logger.WarnContext(ctx, "cache entry undecodable, treating as miss",
			"key", key,
			"error", err,
		)
		c.metrics.IncrementCacheMiss()
		return false
	}
	c.metrics.IncrementCacheHit()
	return true
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.metrics.IncrementCacheError("encode")
		c.logger.WarnContext(ctx, "cache value not serializable", "key", key, "error", err)
		return
	}
	if !c.breaker.Allow() {
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.recordFailure(ctx, "set", key, err)
		return
	}
	c.recordSuccess(ctx)
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	if !c.breaker.Allow() {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.recordFailure(ctx, "delete", key, err)
		return
	}
	c.recordSuccess(ctx)
}

func (c *RedisCache) recordFailure(ctx context.Context, op, key string, err error) {
	c.metrics.IncrementCacheError(op)
	c.logger.WarnContext(ctx, "cache operation failed",
		"op", op,
		"key", key,
		"error", err,
	)
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "cache circuit opened", "breaker", c.breaker.Name())
	}
}

func (c *RedisCache) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "cache circuit closed", "breaker", c.breaker.Name())
	}
}
