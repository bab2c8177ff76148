package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate checks cross-field rules after loading. Load calls it.
func (c *Config) Validate() error {
	if err := c.Cache.validate(c.Redis); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Audit.validate(c.Redis); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if c.Auth.JWTSigningKey == "" {
		return errors.New("auth: jwt_signing_key is required")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka: topic is required when brokers are set")
	}
	return nil
}

func (c CacheConfig) validate(redis RedisConfig) error {
	if !slices.Contains([]string{CacheBackendRedis, CacheBackendMemory, CacheBackendNone}, c.Backend) {
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == CacheBackendRedis && redis.URL == "" {
		return errors.New("redis backend requires REDIS_URL")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be > 0 (got %s)", c.TTL)
	}
	if c.Backend == CacheBackendMemory && (c.Capacity <= 0 || c.Shards <= 0) {
		return errors.New("memory backend requires capacity and shards > 0")
	}
	return nil
}

func (a AuditConfig) validate(redis RedisConfig) error {
	if !slices.Contains([]string{QueueBackendRedis, QueueBackendMemory}, a.Backend) {
		return fmt.Errorf("unknown backend %q", a.Backend)
	}
	if a.Backend == QueueBackendRedis && redis.URL == "" {
		return errors.New("redis backend requires REDIS_URL")
	}
	if a.Attempts < 1 {
		return fmt.Errorf("attempts must be >= 1 (got %d)", a.Attempts)
	}
	if a.Backoff <= 0 {
		return fmt.Errorf("backoff must be > 0 (got %s)", a.Backoff)
	}
	if a.CompletedMaxCount < 0 {
		return fmt.Errorf("completed_max_count must be >= 0 (got %d)", a.CompletedMaxCount)
	}
	if a.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1 (got %d)", a.Concurrency)
	}
	return nil
}
