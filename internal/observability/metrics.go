// Package observability exposes the Prometheus metrics of the console.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parishdesk/parishdesk/internal/gate"
	jobmetrics "github.com/parishdesk/parishdesk/internal/jobs"
)

// Metrics collects the Prometheus metrics of the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fetches         *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	engines         prometheus.Gauge
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises a private registry with every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parishdesk_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parishdesk_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parishdesk_notification_fetches_total",
		Help: "Notification store calls by operation and result.",
	}, []string{"op", "result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parishdesk_gate_transitions_total",
		Help: "Authorization gate transitions by target state.",
	}, []string{"to"})
	engines := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parishdesk_notification_engines_active",
		Help: "Notification engines currently polling.",
	})
	registry.MustRegister(requests, duration, fetches, transitions, engines)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		fetches:         fetches,
		transitions:     transitions,
		engines:         engines,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records every HTTP request.
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

// FetchCompleted counts one notification store call.
func (m *Metrics) FetchCompleted(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(op, result).Inc()
}

// EnginesActive sets the number of polling engines.
func (m *Metrics) EnginesActive(n int) {
	if m == nil {
		return
	}
	m.engines.Set(float64(n))
}

// ObserveGate counts the transitions of g. It matches gate.Observer.
func (m *Metrics) ObserveGate(_ string, g *gate.Gate) {
	if m == nil {
		return
	}
	g.Subscribe(func(tr gate.Transition) {
		m.transitions.WithLabelValues(tr.To.String()).Inc()
	})
}

// Jobs returns the background job collectors.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer exposes the registry for custom collectors.
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
