package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	sessionTransitions *prometheus.CounterVec
	inventoryIssues    *prometheus.GaugeVec
	plansReconciled    prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_session_transitions_total",
		Help: "Consolidation session state transitions.",
	}, []string{"from", "to"})
	issues := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meridian_inventory_issues",
		Help: "Inventory issues found by the last classification run, by severity.",
	}, []string{"severity"})
	reconciled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_fulfillment_receipts_total",
		Help: "Completed receipts applied to fulfillment plans.",
	})
	registry.MustRegister(requests, duration, transitions, issues, reconciled)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		sessionTransitions: transitions,
		inventoryIssues:    issues,
		plansReconciled:    reconciled,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for each HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveTransition counts a session state transition.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.sessionTransitions.WithLabelValues(from, to).Inc()
}

// SetInventoryIssues records classification issue counts.
func (m *Metrics) SetInventoryIssues(stockout, belowSafety, belowReorder int) {
	if m == nil {
		return
	}
	m.inventoryIssues.WithLabelValues("stockout").Set(float64(stockout))
	m.inventoryIssues.WithLabelValues("below_safety").Set(float64(belowSafety))
	m.inventoryIssues.WithLabelValues("below_reorder").Set(float64(belowReorder))
}

// ObserveReceiptApplied counts a reconciled completion event.
func (m *Metrics) ObserveReceiptApplied() {
	if m == nil {
		return
	}
	m.plansReconciled.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
