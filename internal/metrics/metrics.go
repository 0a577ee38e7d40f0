// Package metrics exposes Prometheus metrics for the garage service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the registered collectors.
type Manager struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  *prometheus.Registry

	recomputes          prometheus.Counter
	recomputeErrors     prometheus.Counter
	positionsWritten    prometheus.Counter
	groupUpdateFailures prometheus.Counter
	recomputeDuration   prometheus.Histogram
	scoringDuration     prometheus.Histogram
	timingsRecorded     *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

type Option func(*Manager)

func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets the latency buckets, in seconds.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithRegistry registers the collectors on registry instead of a fresh one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

var global = NewManager() //nolint:gochecknoglobals // process-wide metrics

// Default returns the process-wide manager the package functions report to.
func Default() *Manager {
	return global
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "slotgarage",
		subsystem: "core",
		buckets:   prometheus.DefBuckets,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.init()
	return m
}

func (m *Manager) init() {
	auto := promauto.With(m.registry)

	m.recomputes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_recomputes_total",
		Help:      "Total number of circuit leaderboard recomputes",
	})
	m.recomputeErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_recompute_errors_total",
		Help:      "Recomputes that failed to load the circuit timings",
	})
	m.positionsWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_positions_written_total",
		Help:      "Entrant positions written back to the store",
	})
	m.groupUpdateFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_group_update_failures_total",
		Help:      "Entrant position writes that failed",
	})
	m.recomputeDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_recompute_duration_seconds",
		Help:      "Duration of a circuit leaderboard recompute",
		Buckets:   m.buckets,
	})
	m.scoringDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "competition_scoring_duration_seconds",
		Help:      "Duration of a competition standings computation",
		Buckets:   m.buckets,
	})
	m.timingsRecorded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "timings_recorded_total",
		Help:      "Timings recorded by kind",
	}, []string{"kind"})
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by route, method and status",
	}, []string{"route", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration by route and method",
		Buckets:   m.buckets,
	}, []string{"route", "method"})
}

// Registry returns the registry the manager's collectors live on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the manager's registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Manager) RecordRecompute(written, failed int, took time.Duration) {
	m.recomputes.Inc()
	m.positionsWritten.Add(float64(written))
	m.groupUpdateFailures.Add(float64(failed))
	m.recomputeDuration.Observe(took.Seconds())
}

func (m *Manager) RecordRecomputeError() {
	m.recomputeErrors.Inc()
}

func (m *Manager) ObserveScoring(took time.Duration) {
	m.scoringDuration.Observe(took.Seconds())
}

func (m *Manager) RecordTiming(kind string) {
	m.timingsRecorded.WithLabelValues(kind).Inc()
}

func (m *Manager) RecordHTTPRequest(route, method, statusCode string, took time.Duration) {
	m.httpRequests.WithLabelValues(route, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(took.Seconds())
}

// Package-level shorthands for the default manager.

func RecordRecompute(written, failed int, took time.Duration) {
	global.RecordRecompute(written, failed, took)
}

func RecordRecomputeError() { global.RecordRecomputeError() }

func ObserveScoring(took time.Duration) { global.ObserveScoring(took) }

func RecordTiming(kind string) { global.RecordTiming(kind) }

func RecordHTTPRequest(route, method, statusCode string, took time.Duration) {
	global.RecordHTTPRequest(route, method, statusCode, took)
}
