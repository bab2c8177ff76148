package config

import "time"

// Config is the root application configuration.
type Config struct {
	Server   Server         `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Cache    CacheConfig    `yaml:"cache"`
	Audit    AuditConfig    `yaml:"audit"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"             env:"CATALOG_ADDR"            env-default:":8080"`
	RequestTimeout  time.Duration `yaml:"request_timeout"  env:"SERVER_REQUEST_TIMEOUT"  env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	AdminToken      string        `yaml:"admin_token"      env:"ADMIN_API_TOKEN"`
}

// DatabaseConfig holds PostgreSQL connection settings. An empty DSN selects
// the in-memory product and audit stores.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_URL"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `yaml:"url"            env:"REDIS_URL"`
	PoolSize     int           `yaml:"pool_size"      env:"REDIS_POOL_SIZE"      env-default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" env-default:"2"`
	DialTimeout  time.Duration `yaml:"dial_timeout"   env:"REDIS_DIAL_TIMEOUT"   env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout"   env:"REDIS_READ_TIMEOUT"   env-default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout"  env:"REDIS_WRITE_TIMEOUT"  env-default:"3s"`
}

// Cache backends.
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
	CacheBackendNone   = "none"
)

// CacheConfig configures the product read cache.
type CacheConfig struct {
	Backend  string        `yaml:"backend"  env:"CACHE_BACKEND"  env-default:"redis"`
	TTL      time.Duration `yaml:"ttl"      env:"CACHE_TTL"      env-default:"300s"`
	Capacity int           `yaml:"capacity" env:"CACHE_CAPACITY" env-default:"10000"`
	Shards   int           `yaml:"shards"   env:"CACHE_SHARDS"   env-default:"64"`
}

// Audit queue backends.
const (
	QueueBackendRedis  = "redis"
	QueueBackendMemory = "memory"
)

// AuditConfig configures the activity log queue and its consumer.
type AuditConfig struct {
	Backend           string        `yaml:"backend"             env:"AUDIT_QUEUE_BACKEND"      env-default:"redis"`
	Queue             string        `yaml:"queue"               env:"AUDIT_QUEUE_NAME"         env-default:"activity-log"`
	Attempts          int           `yaml:"attempts"            env:"AUDIT_ATTEMPTS"           env-default:"3"`
	Backoff           time.Duration `yaml:"backoff"             env:"AUDIT_BACKOFF"            env-default:"2s"`
	CompletedMaxAge   time.Duration `yaml:"completed_max_age"   env:"AUDIT_COMPLETED_MAX_AGE"  env-default:"1h"`
	CompletedMaxCount int           `yaml:"completed_max_count" env:"AUDIT_COMPLETED_MAX_COUNT" env-default:"1000"`
	FailedMaxAge      time.Duration `yaml:"failed_max_age"      env:"AUDIT_FAILED_MAX_AGE"     env-default:"24h"`
	Concurrency       int           `yaml:"concurrency"         env:"AUDIT_CONCURRENCY"        env-default:"1"`
	EnqueueTimeout    time.Duration `yaml:"enqueue_timeout"     env:"AUDIT_ENQUEUE_TIMEOUT"    env-default:"5s"`
}

// KafkaConfig enables cross-instance notification fan-out when Brokers is set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic"   env:"KAFKA_NOTIFICATIONS_TOPIC" env-default:"catalog.notifications"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSigningKey string `yaml:"jwt_signing_key" env:"JWT_SIGNING_KEY" env-default:"dev-secret-key-change-in-production"`
	JWTIssuer     string `yaml:"jwt_issuer"      env:"JWT_ISSUER"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
