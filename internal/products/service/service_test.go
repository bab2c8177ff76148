package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Cache,Notifier,AuditQueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"catalog/internal/platform/metrics"
	"catalog/internal/products/models"
	"catalog/internal/products/service/mocks"
	dErrors "catalog/pkg/domain-errors"
	audit "catalog/pkg/platform/audit"
	"catalog/pkg/platform/sentinel"
	"catalog/pkg/requestcontext"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func laptop() *models.Product {
	return &models.Product{
		ID:        "p-1",
		Name:      "Laptop",
		Price:     decimal.RequireFromString("999.99"),
		Stock:     10,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
}

// ServiceSuite drives the service against mocks to pin down call order and
// call counts on each collaborator.
type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *mocks.MockStore
	cache    *mocks.MockCache
	notifier *mocks.MockNotifier
	queue    *mocks.MockAuditQueue
	metrics  *metrics.Metrics
	service  *Service
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.cache = mocks.NewMockCache(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.queue = mocks.NewMockAuditQueue(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, s.cache, s.notifier, s.queue,
		WithLogger(discardLogger()),
		WithMetrics(s.metrics),
	)
	s.ctx = context.Background()
}

// drain waits for background fan-out so gomock sees every call before the
// controller finishes.
func (s *ServiceSuite) drain() {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	s.Require().NoError(s.service.Close(ctx))
}

func (s *ServiceSuite) createRequest() *models.CreateProductRequest {
	return &models.CreateProductRequest{
		Name:  "  Laptop ",
		Price: ptr(decimal.RequireFromString("999.99")),
		Stock: ptr(10),
	}
}

func (s *ServiceSuite) TestCreate() {
	s.Run("persists, invalidates the list, then fans out", func() {
		created := laptop()
		gomock.InOrder(
			s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, p *models.Product) (*models.Product, error) {
					s.Equal("Laptop", p.Name, "name is trimmed before persisting")
					return created, nil
				}),
			s.cache.EXPECT().Delete(gomock.Any(), "record:list"),
		)
		s.notifier.EXPECT().Broadcast("record:created", gomock.Any()).
			Do(func(_ string, payload any) {
				p, ok := payload.(*models.Product)
				if s.True(ok) {
					s.Equal("p-1", p.ID)
				}
			})
		s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, e audit.Event) error {
				s.Equal(audit.ActionRecordCreated, e.Action)
				s.Equal("user-1", e.ActorID)
				s.Equal("10.0.0.1", e.ClientIP)
				s.Equal("Product created: Laptop (p-1)", e.Detail)
				_, hasDeadline := ctx.Deadline()
				s.True(hasDeadline, "enqueue is bounded")
				return nil
			})

		ctx := requestcontext.WithClientMetadata(s.ctx, "10.0.0.1", "curl/8.0")
		got, err := s.service.Create(ctx, s.createRequest(), "user-1")
		s.Require().NoError(err)
		s.Equal(created, got)

		s.drain()
		s.Equal(1.0, testutil.ToFloat64(s.metrics.AuditEnqueued))
	})

	s.Run("enqueues without an actor", func() {
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(laptop(), nil)
		s.cache.EXPECT().Delete(gomock.Any(), "record:list")
		s.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any())
		s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e audit.Event) error {
				s.Empty(e.ActorID)
				return nil
			})

		_, err := s.service.Create(s.ctx, s.createRequest(), "")
		s.Require().NoError(err)
		s.drain()
	})

	s.Run("validation failure has no side effects", func() {
		cases := []*models.CreateProductRequest{
			{Name: " ", Price: ptr(decimal.NewFromInt(1)), Stock: ptr(1)},
			{Name: "x", Stock: ptr(1)},
			{Name: "x", Price: ptr(decimal.NewFromInt(-1)), Stock: ptr(1)},
			{Name: "x", Price: ptr(decimal.NewFromInt(1)), Stock: ptr(-1)},
			{Name: "x", Price: ptr(decimal.RequireFromString("123456789.999")), Stock: ptr(1)},
			{Name: "x", Price: ptr(decimal.NewFromInt(1)), Stock: ptr(3_000_000_000)},
		}
		for _, req := range cases {
			_, err := s.service.Create(s.ctx, req, "user-1")
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		}
		s.drain()
	})

	s.Run("store failure is surfaced as internal", func() {
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

		_, err := s.service.Create(s.ctx, s.createRequest(), "user-1")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Equal("failed to create product", dErrors.MessageOf(err))
		s.drain()
	})

	s.Run("conflict is surfaced as conflict", func() {
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrConflict)

		_, err := s.service.Create(s.ctx, s.createRequest(), "user-1")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.drain()
	})
}

func (s *ServiceSuite) TestCreateIgnoresFanoutFailures() {
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(laptop(), nil)
	s.cache.EXPECT().Delete(gomock.Any(), "record:list")
	s.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any()).Do(func(string, any) {
		panic("socket closed")
	})
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(errors.New("redis unavailable"))

	got, err := s.service.Create(s.ctx, s.createRequest(), "user-1")
	s.Require().NoError(err)
	s.Equal("p-1", got.ID)

	s.drain()
	s.Equal(1.0, testutil.ToFloat64(s.metrics.FanoutFailures.WithLabelValues("notifier")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.FanoutFailures.WithLabelValues("audit")))
}

func (s *ServiceSuite) TestCreateDoesNotWaitForFanout() {
	release := make(chan struct{})
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(laptop(), nil)
	s.cache.EXPECT().Delete(gomock.Any(), "record:list")
	s.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any())
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, audit.Event) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(s.ctx)
	_, err := s.service.Create(ctx, s.createRequest(), "user-1")
	s.Require().NoError(err)
	cancel()

	close(release)
	s.drain()
}

func (s *ServiceSuite) TestGetByID() {
	s.Run("cache hit skips the store", func() {
		s.cache.EXPECT().Get(gomock.Any(), "record:p-1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, dest any) bool {
				*dest.(*models.Product) = *laptop()
				return true
			})

		got, err := s.service.GetByID(s.ctx, "p-1")
		s.Require().NoError(err)
		s.Equal("Laptop", got.Name)
	})

	s.Run("miss reads the store and populates the cache", func() {
		product := laptop()
		gomock.InOrder(
			s.cache.EXPECT().Get(gomock.Any(), "record:p-1", gomock.Any()).Return(false),
			s.store.EXPECT().FindByID(gomock.Any(), "p-1").Return(product, nil),
			s.cache.EXPECT().Set(gomock.Any(), "record:p-1", product, 300*time.Second),
		)

		got, err := s.service.GetByID(s.ctx, "p-1")
		s.Require().NoError(err)
		s.Equal(product, got)
	})

	s.Run("absent is not found and not cached", func() {
		s.cache.EXPECT().Get(gomock.Any(), "record:missing", gomock.Any()).Return(false)
		s.store.EXPECT().FindByID(gomock.Any(), "missing").Return(nil, sentinel.ErrNotFound)

		_, err := s.service.GetByID(s.ctx, "missing")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestListAll() {
	s.Run("empty store yields an empty slice and is cached", func() {
		s.cache.EXPECT().Get(gomock.Any(), "record:list", gomock.Any()).Return(false)
		s.store.EXPECT().ListAll(gomock.Any()).Return(nil, nil)
		s.cache.EXPECT().Set(gomock.Any(), "record:list", []*models.Product{}, 300*time.Second)

		got, err := s.service.ListAll(s.ctx)
		s.Require().NoError(err)
		s.NotNil(got)
		s.Empty(got)
	})

	s.Run("cache hit", func() {
		s.cache.EXPECT().Get(gomock.Any(), "record:list", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, dest any) bool {
				*dest.(*[]*models.Product) = []*models.Product{laptop()}
				return true
			})

		got, err := s.service.ListAll(s.ctx)
		s.Require().NoError(err)
		s.Len(got, 1)
	})

	s.Run("store failure", func() {
		s.cache.EXPECT().Get(gomock.Any(), "record:list", gomock.Any()).Return(false)
		s.store.EXPECT().ListAll(gomock.Any()).Return(nil, errors.New("timeout"))

		_, err := s.service.ListAll(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestUpdate() {
	s.Run("reads the store, replaces, invalidates both keys", func() {
		updated := laptop()
		updated.Price = decimal.RequireFromString("149.99")
		gomock.InOrder(
			s.store.EXPECT().FindByID(gomock.Any(), "p-1").Return(laptop(), nil),
			s.store.EXPECT().Replace(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, p *models.Product) (*models.Product, error) {
					s.True(p.Price.Equal(decimal.RequireFromString("149.99")))
					s.Equal("Laptop", p.Name, "untouched fields are kept")
					return updated, nil
				}),
			s.cache.EXPECT().Delete(gomock.Any(), "record:list"),
			s.cache.EXPECT().Delete(gomock.Any(), "record:p-1"),
		)

		got, err := s.service.Update(s.ctx, "p-1", &models.UpdateProductRequest{Price: ptr(decimal.RequireFromString("149.99"))})
		s.Require().NoError(err)
		s.Equal(updated, got)
	})

	s.Run("absent id touches neither store nor cache", func() {
		s.store.EXPECT().FindByID(gomock.Any(), "missing").Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Update(s.ctx, "missing", &models.UpdateProductRequest{Stock: ptr(1)})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid partial fields fail before the store", func() {
		_, err := s.service.Update(s.ctx, "p-1", &models.UpdateProductRequest{Stock: ptr(-5)})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.service.Update(s.ctx, "p-1", &models.UpdateProductRequest{Name: ptr("   ")})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("update never fans out", func() {
		s.store.EXPECT().FindByID(gomock.Any(), "p-1").Return(laptop(), nil)
		s.store.EXPECT().Replace(gomock.Any(), gomock.Any()).Return(laptop(), nil)
		s.cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Times(2)

		_, err := s.service.Update(s.ctx, "p-1", &models.UpdateProductRequest{Stock: ptr(3)})
		s.Require().NoError(err)
		s.drain()
	})
}

func (s *ServiceSuite) TestDelete() {
	s.Run("deletes and invalidates both keys", func() {
		gomock.InOrder(
			s.store.EXPECT().FindByID(gomock.Any(), "p-1").Return(laptop(), nil),
			s.store.EXPECT().Delete(gomock.Any(), "p-1").Return(nil),
			s.cache.EXPECT().Delete(gomock.Any(), "record:list"),
			s.cache.EXPECT().Delete(gomock.Any(), "record:p-1"),
		)

		got, err := s.service.Delete(s.ctx, "p-1")
		s.Require().NoError(err)
		s.Equal("Product deleted successfully", got.Message)
	})

	s.Run("absent id touches nothing", func() {
		s.store.EXPECT().FindByID(gomock.Any(), "missing").Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Delete(s.ctx, "missing")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("store failure leaves cache alone", func() {
		s.store.EXPECT().FindByID(gomock.Any(), "p-1").Return(laptop(), nil)
		s.store.EXPECT().Delete(gomock.Any(), "p-1").Return(errors.New("disk full"))

		_, err := s.service.Delete(s.ctx, "p-1")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestCloseHonoursDeadline() {
	block := make(chan struct{})
	defer close(block)

	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(laptop(), nil)
	s.cache.EXPECT().Delete(gomock.Any(), gomock.Any())
	s.notifier.EXPECT().Broadcast(gomock.Any(), gomock.Any())
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, audit.Event) error {
		<-block
		return nil
	})

	_, err := s.service.Create(s.ctx, s.createRequest(), "")
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()
	s.ErrorIs(s.service.Close(ctx), context.DeadlineExceeded)
}
