package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"catalog/internal/admin"
	"catalog/internal/platform/cache"
	"catalog/internal/platform/config"
	"catalog/internal/platform/logger"
	"catalog/internal/platform/metrics"
	"catalog/internal/platform/postgres"
	redisclient "catalog/internal/platform/redis"
	"catalog/internal/products/service"
	"catalog/internal/products/store"
	audit "catalog/pkg/platform/audit"
	"catalog/pkg/platform/audit/consumer"
	"catalog/pkg/platform/audit/queue"
	auditmemory "catalog/pkg/platform/audit/store/memory"
	auditpostgres "catalog/pkg/platform/audit/store/postgres"
	"catalog/pkg/platform/audit/worker"
)

// jobQueue is what the process needs from an audit queue backend.
type jobQueue interface {
	service.AuditQueue
	worker.Source
	admin.FailedJobLister
}

// infra holds the shared connections every subcommand starts from.
type infra struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	redis   *redisclient.Client
	pool    *pgxpool.Pool
	records audit.Store
}

func newInfra(ctx context.Context) (*infra, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log)

	i := &infra{
		cfg:     cfg,
		logger:  log,
		metrics: metrics.New(prometheus.DefaultRegisterer),
	}

	i.redis, err = redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	if cfg.Database.DSN != "" {
		i.pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			i.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, i.pool, log); err != nil {
			i.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}
	i.records = i.auditStore()

	return i, nil
}

func (i *infra) Close() {
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.pool != nil {
		i.pool.Close()
	}
}

func (i *infra) productStore() service.Store {
	if i.pool == nil {
		return store.NewInMemory()
	}
	return store.NewPostgres(i.pool)
}

func (i *infra) auditStore() audit.Store {
	if i.pool == nil {
		return auditmemory.NewInMemoryStore()
	}
	return auditpostgres.New(i.pool)
}

func (i *infra) productCache() service.Cache {
	cfg := i.cfg.Cache
	switch cfg.Backend {
	case config.CacheBackendRedis:
		return cache.NewRedis(i.redis,
			cache.WithLogger(i.logger),
			cache.WithMetrics(i.metrics),
			cache.WithDefaultTTL(cfg.TTL),
		)
	case config.CacheBackendMemory:
		memCfg := cache.DefaultMemoryConfig()
		memCfg.Capacity = cfg.Capacity
		memCfg.NumShards = cfg.Shards
		memCfg.TTL = cfg.TTL
		return cache.NewMemory(memCfg, i.logger, i.metrics)
	default:
		return nil
	}
}

func (i *infra) auditQueue() jobQueue {
	cfg := i.cfg.Audit
	policy := queue.Policy{
		Attempts:          cfg.Attempts,
		Backoff:           cfg.Backoff,
		CompletedMaxAge:   cfg.CompletedMaxAge,
		CompletedMaxCount: cfg.CompletedMaxCount,
		FailedMaxAge:      cfg.FailedMaxAge,
	}

	if cfg.Backend == config.QueueBackendMemory {
		i.logger.Warn("audit queue is in-memory, pending jobs are lost on restart")
		return queue.NewMemory(policy)
	}
	return queue.NewRedis(i.redis, cfg.Queue, policy, queue.WithLogger(i.logger))
}

// runWorker recovers jobs stalled by a previous worker process, then
// materializes audit jobs until ctx is cancelled.
func (i *infra) runWorker(ctx context.Context, q jobQueue) error {
	if rq, ok := q.(*queue.RedisQueue); ok {
		if _, err := rq.RequeueStalled(ctx); err != nil {
			return err
		}
	}

	materializer := consumer.NewMaterializer(i.records,
		consumer.WithLogger(i.logger),
		consumer.WithMetrics(i.metrics),
	)
	w := worker.NewWorker(q, materializer,
		worker.WithConcurrency(i.cfg.Audit.Concurrency),
		worker.WithLogger(i.logger),
		worker.WithMetrics(i.metrics),
	)
	i.logger.Info("starting audit consumer",
		"backend", i.cfg.Audit.Backend,
		"queue", i.cfg.Audit.Queue,
		"concurrency", i.cfg.Audit.Concurrency,
	)
	return w.Run(ctx)
}
