// Package metrics exports daemon metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "music_agent"

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	connections    prometheus.Gauge

	pollCycles *prometheus.CounterVec
	analyses   *prometheus.CounterVec
	tags       *prometheus.CounterVec
	degraded   prometheus.Gauge
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "requests_total",
			Help:      "Requests handled, by intent category and result kind",
		},
		[]string{"category", "result"},
	)

	m.requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "request_duration_seconds",
			Help:      "Request handling latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"category"},
	)

	m.connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "active_connections",
			Help:      "Client connections currently being served",
		},
	)

	m.pollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Poll cycles, by outcome",
		},
		[]string{"outcome"},
	)

	m.analyses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Track analyses, by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	m.tags = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "tags_written_total",
			Help:      "Automatic tags written, by category",
		},
		[]string{"category"},
	)

	m.degraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "degraded",
			Help:      "1 while the catalog rejects the cached credentials",
		},
	)

	m.registry.MustRegister(
		m.requests,
		m.requestLatency,
		m.connections,
		m.pollCycles,
		m.analyses,
		m.tags,
		m.degraded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordRequest records a handled request. result is "ok" or an error kind.
func (m *Metrics) RecordRequest(category, result string, latency time.Duration) {
	m.requests.WithLabelValues(category, result).Inc()
	m.requestLatency.WithLabelValues(category).Observe(latency.Seconds())
}

// ConnOpened and ConnClosed track in-flight connections.
func (m *Metrics) ConnOpened() { m.connections.Inc() }
func (m *Metrics) ConnClosed() { m.connections.Dec() }

// RecordPoll records the outcome of one poll cycle.
func (m *Metrics) RecordPoll(outcome string) {
	m.pollCycles.WithLabelValues(outcome).Inc()
}

// RecordAnalysis records one run of the analysis pipeline.
func (m *Metrics) RecordAnalysis(trigger, result string) {
	m.analyses.WithLabelValues(trigger, result).Inc()
}

// RecordTags counts n automatic tags written in category.
func (m *Metrics) RecordTags(category string, n int) {
	if n > 0 {
		m.tags.WithLabelValues(category).Add(float64(n))
	}
}

// SetDegraded flips the degraded gauge.
func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.degraded.Set(1)
		return
	}
	m.degraded.Set(0)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
