package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 3, cfg.Audit.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Audit.Backoff)
	assert.Equal(t, time.Hour, cfg.Audit.CompletedMaxAge)
	assert.Equal(t, 1000, cfg.Audit.CompletedMaxCount)
	assert.Equal(t, 24*time.Hour, cfg.Audit.FailedMaxAge)
	assert.Equal(t, "activity-log", cfg.Audit.Queue)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("CACHE_TTL", "60s")
	t.Setenv("AUDIT_QUEUE_BACKEND", "memory")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	yaml := `
server:
  addr: ":9090"
cache:
  backend: none
audit:
  backend: memory
  attempts: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, CacheBackendNone, cfg.Cache.Backend)
	assert.Equal(t, 5, cfg.Audit.Attempts)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Cache: CacheConfig{Backend: CacheBackendMemory, TTL: time.Minute, Capacity: 10, Shards: 1},
			Audit: AuditConfig{Backend: QueueBackendMemory, Attempts: 3, Backoff: time.Second, Concurrency: 1},
			Auth:  AuthConfig{JWTSigningKey: "k"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		cfg := valid()
		require.NoError(t, cfg.Validate())
	})

	t.Run("redis cache without url", func(t *testing.T) {
		cfg := valid()
		cfg.Cache.Backend = CacheBackendRedis
		require.ErrorContains(t, cfg.Validate(), "REDIS_URL")
	})

	t.Run("unknown queue backend", func(t *testing.T) {
		cfg := valid()
		cfg.Audit.Backend = "sqs"
		require.ErrorContains(t, cfg.Validate(), "unknown backend")
	})

	t.Run("zero attempts", func(t *testing.T) {
		cfg := valid()
		cfg.Audit.Attempts = 0
		require.ErrorContains(t, cfg.Validate(), "attempts")
	})

	t.Run("non-positive ttl", func(t *testing.T) {
		cfg := valid()
		cfg.Cache.TTL = 0
		require.ErrorContains(t, cfg.Validate(), "ttl")
	})
}
