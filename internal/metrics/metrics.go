package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "commerce"

// Metrics is safe to use through a nil pointer; every recording method is a
// no-op then.
type Metrics struct {
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	cartMutations    *prometheus.CounterVec
	loyaltyOps       *prometheus.CounterVec
	pointsMoved      *prometheus.CounterVec
	versionConflicts *prometheus.CounterVec
	orderEvents      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "mutations_total",
			Help:      "Cart mutations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		loyaltyOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loyalty",
			Name:      "operations_total",
			Help:      "Loyalty ledger operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		pointsMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loyalty",
			Name:      "points_total",
			Help:      "Points credited or debited.",
		}, []string{"type"}),
		versionConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "version_conflicts_total",
			Help:      "Optimistic concurrency conflicts that forced a reload.",
		}, []string{"aggregate"}),
		orderEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "order_events_total",
			Help:      "Order-completed events consumed, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpLatency,
		m.cartMutations,
		m.loyaltyOps,
		m.pointsMoved,
		m.versionConflicts,
		m.orderEvents,
	)
	return m
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) CartMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(operation, Outcome(err)).Inc()
}

func (m *Metrics) LoyaltyOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.loyaltyOps.WithLabelValues(operation, Outcome(err)).Inc()
}

func (m *Metrics) PointsMoved(t domain.TransactionType, points int64) {
	if m == nil {
		return
	}
	m.pointsMoved.WithLabelValues(string(t)).Add(float64(points))
}

func (m *Metrics) VersionConflict(aggregate string) {
	if m == nil {
		return
	}
	m.versionConflicts.WithLabelValues(aggregate).Inc()
}

func (m *Metrics) OrderEvent(outcome string) {
	if m == nil {
		return
	}
	m.orderEvents.WithLabelValues(outcome).Inc()
}

// Outcome labels err by its domain kind, "ok" for nil.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
