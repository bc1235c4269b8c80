// Package observability provides the Prometheus metrics of the evaluation
// pipeline. A nil *Metrics is valid and records nothing.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Market data
	CacheLookups   *prometheus.CounterVec
	OriginRequests *prometheus.CounterVec
	OriginLatency  prometheus.Histogram
	LimiterWait    prometheus.Histogram

	// Stream
	StreamEvents     *prometheus.CounterVec
	StreamReconnects prometheus.Counter

	// Evaluation
	SafetyChecks     *prometheus.CounterVec
	SafetyLatency    *prometheus.HistogramVec
	Evaluations      *prometheus.CounterVec
	EvaluationsAlive prometheus.Gauge
	Scores           prometheus.Histogram

	// Alerts
	Alerts *prometheus.CounterVec

	// HTTP API
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance registered on its own registry,
// together with the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solbot"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "cache_lookups_total",
			Help:      "Pair cache lookups by result (hit, miss)",
		}, []string{"result"}),
		OriginRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "origin_requests_total",
			Help:      "Origin pair queries by result (ok, no_match, error)",
		}, []string{"result"}),
		OriginLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "origin_latency_seconds",
			Help:      "Origin pair query latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		LimiterWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "limiter_wait_seconds",
			Help:      "Time spent waiting for a rate limiter permit",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10},
		}),

		StreamEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Pair feed events by result (stored, off_chain, invalid, malformed, error)",
		}, []string{"result"}),
		StreamReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Pair feed reconnect attempts",
		}),

		SafetyChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "checks_total",
			Help:      "Safety check outcomes by check and result (pass, fail, error)",
		}, []string{"check", "result"}),
		SafetyLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "check_latency_seconds",
			Help:      "Safety check latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"check"}),
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "evaluations_total",
			Help:      "Token evaluations by outcome",
		}, []string{"outcome"}),
		EvaluationsAlive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "evaluations_in_flight",
			Help:      "Evaluations currently running",
		}),
		Scores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "trend_score",
			Help:      "Distribution of computed trend scores",
			Buckets:   []float64{-1, -0.5, -0.1, 0, 0.1, 0.25, 0.5, 0.8, 1, 2, 5},
		}),

		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "alerts_total",
			Help:      "Alert decisions by result (sent, failed, below_threshold)",
		}, []string{"result"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route and status code",
		}, []string{"route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordCacheLookup counts a pair cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// RecordOrigin counts an origin query and observes its latency.
func (m *Metrics) RecordOrigin(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.OriginRequests.WithLabelValues(result).Inc()
	m.OriginLatency.Observe(d.Seconds())
}

// RecordLimiterWait observes time spent in Acquire.
func (m *Metrics) RecordLimiterWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LimiterWait.Observe(d.Seconds())
}

// RecordStreamEvent counts a feed event by result.
func (m *Metrics) RecordStreamEvent(result string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(result).Inc()
}

// RecordStreamReconnect counts a feed reconnect.
func (m *Metrics) RecordStreamReconnect() {
	if m == nil {
		return
	}
	m.StreamReconnects.Inc()
}

// RecordSafetyCheck counts a check outcome and observes its latency.
func (m *Metrics) RecordSafetyCheck(check, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.SafetyChecks.WithLabelValues(check, result).Inc()
	m.SafetyLatency.WithLabelValues(check).Observe(d.Seconds())
}

// RecordEvaluation counts a finished evaluation.
func (m *Metrics) RecordEvaluation(outcome string) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(outcome).Inc()
}

// EvaluationStarted increments the in-flight gauge and returns the matching
// decrement.
func (m *Metrics) EvaluationStarted() func() {
	if m == nil {
		return func() {}
	}
	m.EvaluationsAlive.Inc()
	return m.EvaluationsAlive.Dec
}

// RecordScore observes a computed trend score.
func (m *Metrics) RecordScore(score float64) {
	if m == nil {
		return
	}
	m.Scores.Observe(score)
}

// RecordAlert counts an alert decision.
func (m *Metrics) RecordAlert(result string) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(result).Inc()
}

// RecordHTTPRequest counts a served API request and observes its latency.
func (m *Metrics) RecordHTTPRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(d.Seconds())
}
