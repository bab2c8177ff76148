// Package service orchestrates product writes and reads across the store,
// the cache, the notifier and the audit queue.
//
// Mutations run validate, persist, invalidate in that order, strictly one
// after the other. Creation then dispatches a notification and an audit event
// in the background; their outcome never reaches the caller. Reads consult the
// cache first and populate it from the store on a miss.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"catalog/internal/notify"
	"catalog/internal/platform/cache"
	"catalog/internal/platform/metrics"
	"catalog/internal/products/models"
	dErrors "catalog/pkg/domain-errors"
	audit "catalog/pkg/platform/audit"
	"catalog/pkg/platform/sentinel"
	"catalog/pkg/requestcontext"
)

const (
	listCacheKey = "record:list"

	defaultEnqueueTimeout = 5 * time.Second

	deletedMessage = "Product deleted successfully"
)

func itemCacheKey(id string) string { return "record:" + id }

// Store is the system of record.
type Store interface {
	Insert(ctx context.Context, p *models.Product) (*models.Product, error)
	FindByID(ctx context.Context, id string) (*models.Product, error)
	ListAll(ctx context.Context) ([]*models.Product, error)
	Replace(ctx context.Context, p *models.Product) (*models.Product, error)
	Delete(ctx context.Context, id string) error
}

// Cache never fails from the caller's point of view.
type Cache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// Notifier broadcasts to whoever is listening right now.
type Notifier interface {
	Broadcast(event string, payload any)
}

// AuditQueue accepts events for background materialization.
type AuditQueue interface {
	Enqueue(ctx context.Context, event audit.Event) error
}

type Service struct {
	store          Store
	cache          Cache
	notifier       Notifier
	auditQueue     AuditQueue
	cacheTTL       time.Duration
	enqueueTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer

	inflight sync.WaitGroup
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithCacheTTL sets the TTL used when populating the cache on a read miss.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithEnqueueTimeout bounds a single background audit enqueue.
func WithEnqueueTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.enqueueTimeout = d
		}
	}
}

// New wires the service. A nil cache disables caching.
func New(store Store, c Cache, notifier Notifier, auditQueue AuditQueue, opts ...Option) *Service {
	s := &Service{
		store:          store,
		cache:          c,
		notifier:       notifier,
		auditQueue:     auditQueue,
		cacheTTL:       cache.DefaultTTL,
		enqueueTimeout: defaultEnqueueTimeout,
		logger:         slog.Default(),
		tracer:         otel.Tracer("catalog/products"),
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and persists a new product, invalidates the cached list,
// then dispatches the created notification and audit event without waiting
// for them. actorID may be empty.
func (s *Service) Create(ctx context.Context, req *models.CreateProductRequest, actorID string) (_ *models.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "products.create")
	defer s.finish(span, "create", time.Now(), &err)

	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	product, err := models.NewProduct(req.Name, req.Description, *req.Price, *req.Stock)
	if err != nil {
		return nil, asValidation(err)
	}

	created, err := s.store.Insert(ctx, product)
	if err != nil {
		return nil, s.translateStoreError(err, "failed to create product")
	}
	span.SetAttributes(attribute.String("product.id", created.ID))

	s.cache.Delete(ctx, listCacheKey)

	s.metrics.IncrementProductsCreated()
	s.dispatchCreated(ctx, created.Clone(), actorID)
	return created, nil
}

// GetByID serves from cache when possible, otherwise from the store.
func (s *Service) GetByID(ctx context.Context, id string) (_ *models.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "products.get", trace.WithAttributes(attribute.String("product.id", id)))
	defer s.finish(span, "get", time.Now(), &err)

	key := itemCacheKey(id)
	var cached models.Product
	if s.cache.Get(ctx, key, &cached) {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return &cached, nil
	}

	product, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.translateStoreError(err, "failed to get product")
	}
	s.cache.Set(ctx, key, product, s.cacheTTL)
	return product, nil
}

// ListAll returns every product, newest first. An empty catalog is an empty
// slice, not an error.
func (s *Service) ListAll(ctx context.Context) (_ []*models.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "products.list")
	defer s.finish(span, "list", time.Now(), &err)

	var cached []*models.Product
	if s.cache.Get(ctx, listCacheKey, &cached) {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		if cached == nil {
			cached = []*models.Product{}
		}
		return cached, nil
	}

	products, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, s.translateStoreError(err, "failed to list products")
	}
	if products == nil {
		products = []*models.Product{}
	}
	s.cache.Set(ctx, listCacheKey, products, s.cacheTTL)
	return products, nil
}

// Update applies a partial update. The current product is read from the
// store, never from the cache. Both the list and the item keys are
// invalidated after the write.
func (s *Service) Update(ctx context.Context, id string, req *models.UpdateProductRequest) (_ *models.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "products.update", trace.WithAttributes(attribute.String("product.id", id)))
	defer s.finish(span, "update", time.Now(), &err)

	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.translateStoreError(err, "failed to update product")
	}
	if err := current.Apply(req); err != nil {
		return nil, asValidation(err)
	}

	updated, err := s.store.Replace(ctx, current)
	if err != nil {
		return nil, s.translateStoreError(err, "failed to update product")
	}

	s.cache.Delete(ctx, listCacheKey)
	s.cache.Delete(ctx, itemCacheKey(id))
	return updated, nil
}

// Delete removes a product and invalidates both cache keys. Deleting an
// absent product is a not-found error and touches nothing.
func (s *Service) Delete(ctx context.Context, id string) (_ *models.DeleteResult, err error) {
	ctx, span := s.tracer.Start(ctx, "products.delete", trace.WithAttributes(attribute.String("product.id", id)))
	defer s.finish(span, "delete", time.Now(), &err)

	if _, err := s.store.FindByID(ctx, id); err != nil {
		return nil, s.translateStoreError(err, "failed to delete product")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return nil, s.translateStoreError(err, "failed to delete product")
	}

	s.cache.Delete(ctx, listCacheKey)
	s.cache.Delete(ctx, itemCacheKey(id))
	return &models.DeleteResult{Message: deletedMessage}, nil
}

// Close waits for background dispatches started by Create, or until ctx is
// done.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchCreated runs the notification and the audit enqueue on their own
// goroutines. The request context is detached from cancellation so a client
// disconnect does not abort them, but keeps its values for tracing and logs.
func (s *Service) dispatchCreated(ctx context.Context, product *models.Product, actorID string) {
	event := audit.Event{
		ActorID:   actorID,
		Action:    audit.ActionRecordCreated,
		Detail:    fmt.Sprintf("Product created: %s (%s)", product.Name, product.ID),
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		RequestID: requestcontext.RequestID(ctx),
	}
	bg := context.WithoutCancel(ctx)

	s.goFanout(bg, "notifier", func(context.Context) error {
		s.notifier.Broadcast(notify.EventRecordCreated, product)
		return nil
	})

	if s.auditQueue == nil {
		return
	}
	s.goFanout(bg, "audit", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.enqueueTimeout)
		defer cancel()
		if err := s.auditQueue.Enqueue(ctx, event); err != nil {
			return err
		}
		s.metrics.IncrementAuditEnqueued()
		return nil
	})
}

func (s *Service) goFanout(ctx context.Context, target string, fn func(context.Context) error) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.metrics.IncrementFanoutFailure(target)
				s.logger.ErrorContext(ctx, "product fan-out panicked",
					"target", target,
					"panic", r,
				)
			}
		}()

		if err := fn(ctx); err != nil {
			s.metrics.IncrementFanoutFailure(target)
			s.logger.WarnContext(ctx, "product fan-out failed",
				"target", target,
				"error", err,
			)
		}
	}()
}

func (s *Service) translateStoreError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "product not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "product already exists")
	case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		return asValidation(err)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

// asValidation reports a model invariant violation as a client error.
func asValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}

func (s *Service) finish(span trace.Span, op string, start time.Time, errp *error) {
	err := *errp
	s.metrics.ObserveOperation(op, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}
