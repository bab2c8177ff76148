package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"catalog/internal/admin"
	jwttoken "catalog/internal/jwt_token"
	"catalog/internal/notify"
	"catalog/internal/notify/kafka"
	"catalog/internal/platform/config"
	"catalog/internal/platform/httpserver"
	productsHandler "catalog/internal/products/handler"
	"catalog/internal/products/service"
	"catalog/pkg/platform/audit/queue"
	"catalog/pkg/platform/httputil"
	"catalog/pkg/platform/middleware/metadata"
	request "catalog/pkg/platform/middleware/request"
	"catalog/pkg/platform/middleware/requesttime"
)

func newServeCommand() *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket notifications",
		Long: `Run the product API, the /ws/products notification stream and, unless
--with-worker=false, the audit consumer in the same process.

Example:
  DATABASE_URL=postgres://... REDIS_URL=redis://localhost:6379 catalog serve
  CACHE_BACKEND=memory AUDIT_QUEUE_BACKEND=memory catalog serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), withWorker)
		},
	}

	cmd.Flags().BoolVar(&withWorker, "with-worker", true, "run the audit consumer in-process")

	return cmd
}

func runServe(ctx context.Context, withWorker bool) error {
	i, err := newInfra(ctx)
	if err != nil {
		return err
	}
	defer i.Close()
	cfg := i.cfg
	log := i.logger

	if !withWorker && cfg.Audit.Backend == config.QueueBackendMemory {
		return errors.New("the in-memory audit queue needs the in-process worker")
	}

	hub := notify.NewHub(notify.WithLogger(log), notify.WithMetrics(i.metrics))
	var notifier service.Notifier = hub
	var publisher *kafka.Publisher
	var relay *kafka.Relay
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log, i.metrics)
		if err != nil {
			return err
		}
		relay, err = kafka.NewRelay(cfg.Kafka.Brokers, cfg.Kafka.Topic, hub, log)
		if err != nil {
			return err
		}
		notifier = publisher
		log.Info("notifications bridged through kafka", "topic", cfg.Kafka.Topic)
	}

	jobs := i.auditQueue()
	svc := service.New(i.productStore(), i.productCache(), notifier, jobs,
		service.WithLogger(log),
		service.WithMetrics(i.metrics),
		service.WithCacheTTL(cfg.Cache.TTL),
		service.WithEnqueueTimeout(cfg.Audit.EnqueueTimeout),
	)

	srv := httpserver.New(cfg.Server.Addr, newRouter(i, svc, hub, jobs))

	// The worker is stopped only after in-flight fan-out has drained.
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting catalog", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if withWorker {
		g.Go(func() error { return i.runWorker(workerCtx, jobs) })
	}
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := svc.Close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		stopWorker()
		if publisher != nil {
			if err := publisher.Close(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		hub.Close()
		if mq, ok := jobs.(*queue.MemoryQueue); ok {
			mq.Close()
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func newRouter(i *infra, svc *service.Service, hub *notify.Hub, jobs admin.FailedJobLister) http.Handler {
	cfg := i.cfg
	log := i.logger

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(log))

	r.Get("/healthz", i.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/ws/products", notify.NewWebsocketHandler(hub, log))

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(cfg.Server.RequestTimeout))

		jwtValidator := jwttoken.NewJWTServiceAdapter(
			jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer),
		)
		productsHandler.New(svc, log, jwtValidator).Register(r)

		if cfg.Server.AdminToken != "" {
			admin.New(jobs, i.records, log).Register(r, cfg.Server.AdminToken)
		} else {
			log.Warn("ADMIN_API_TOKEN not set, admin routes disabled")
		}
	})

	return r
}

func (i *infra) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if i.pool != nil {
		if err := i.pool.Ping(ctx); err != nil {
			status["database"] = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}
	if i.redis != nil {
		if err := i.redis.Health(ctx); err != nil {
			// the cache degrades silently, but the audit queue does not
			status["redis"] = "unavailable"
			if i.cfg.Audit.Backend == config.QueueBackendRedis {
				code = http.StatusServiceUnavailable
			}
		}
	}
	if code != http.StatusOK {
		status["status"] = "degraded"
	}
	httputil.WriteJSON(w, code, status)
}
