package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics holds all Prometheus metrics for the catalog service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ProductsCreated     prometheus.Counter
	OperationDuration   *prometheus.HistogramVec
	CacheRequests       *prometheus.CounterVec
	CacheErrors         *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	NotificationsDrops  prometheus.Counter
	Listeners           prometheus.Gauge
	FanoutFailures      *prometheus.CounterVec
	AuditEnqueued       prometheus.Counter
	AuditJobs           *prometheus.CounterVec
	AuditProcessLatency prometheus.Histogram
}

// New registers all metrics against reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProductsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "catalog_products_created_total",
			Help: "Total number of products created",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_product_operation_duration_seconds",
			Help:    "Duration of product service operations",
			Buckets: durationBuckets,
		}, []string{"operation", "outcome"}),
		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_cache_requests_total",
			Help: "Cache lookups by result (hit, miss)",
		}, []string{"result"}),
		CacheErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_cache_errors_total",
			Help: "Cache operations that failed and were treated as a miss or no-op",
		}, []string{"op"}),
		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_notifications_sent_total",
			Help: "Notifications handed to listeners, by event",
		}, []string{"event"}),
		NotificationsDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "catalog_notifications_dropped_total",
			Help: "Notifications dropped because a listener buffer was full",
		}),
		Listeners: f.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_notification_listeners",
			Help: "Currently attached notification listeners",
		}),
		FanoutFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_fanout_failures_total",
			Help: "Side effects that failed after a successful write, by target",
		}, []string{"target"}),
		AuditEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "catalog_audit_enqueued_total",
			Help: "Audit events durably queued",
		}),
		AuditJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_audit_jobs_total",
			Help: "Audit job outcomes (completed, retried, failed)",
		}, []string{"outcome"}),
		AuditProcessLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_audit_materialize_duration_seconds",
			Help:    "Duration of a single audit materialization attempt",
			Buckets: durationBuckets,
		}),
	}
}

// ObserveOperation records a product operation duration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.OperationDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementProductsCreated() {
	if m == nil {
		return
	}
	m.ProductsCreated.Inc()
}

func (m *Metrics) IncrementCacheHit() {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues("hit").Inc()
}

func (m *Metrics) IncrementCacheMiss() {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues("miss").Inc()
}

func (m *Metrics) IncrementCacheError(op string) {
	if m == nil {
		return
	}
	m.CacheErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrementNotificationSent(event string) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(event).Inc()
}

func (m *Metrics) IncrementNotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDrops.Inc()
}

func (m *Metrics) SetListeners(n int) {
	if m == nil {
		return
	}
	m.Listeners.Set(float64(n))
}

func (m *Metrics) IncrementFanoutFailure(target string) {
	if m == nil {
		return
	}
	m.FanoutFailures.WithLabelValues(target).Inc()
}

func (m *Metrics) IncrementAuditEnqueued() {
	if m == nil {
		return
	}
	m.AuditEnqueued.Inc()
}

// IncrementAuditJob records a job outcome: completed, retried or failed.
func (m *Metrics) IncrementAuditJob(outcome string) {
	if m == nil {
		return
	}
	m.AuditJobs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAuditMaterialize(start time.Time) {
	if m == nil {
		return
	}
	m.AuditProcessLatency.Observe(time.Since(start).Seconds())
}
