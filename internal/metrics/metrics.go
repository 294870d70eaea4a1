// Package metrics exports convergence pass outcomes in the Prometheus
// format. Output goes to a node-exporter textfile rather than an HTTP
// listener, since passes are short-lived runs driven by a scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/tileconverge/internal/engine"
	"github.com/roach88/tileconverge/internal/fetch"
)

const namespace = "tileconverge"

// Metrics holds the collectors of one process on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	passes        *prometheus.CounterVec
	changed       *prometheus.CounterVec
	fetchFailures prometheus.Counter
	lastDuration  prometheus.Gauge
	lastChanged   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Convergence passes run, by outcome.",
		}, []string{"status"}),
		changed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resources_changed_total",
			Help:      "Resource evaluations that changed the host, by kind.",
		}, []string{"kind"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Data source fetches that failed and were skipped.",
		}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_duration_seconds",
			Help:      "Wall time of the most recent pass.",
		}),
		lastChanged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_changed_resources",
			Help:      "Resources changed by the most recent pass.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the most recent successful pass finished.",
		}),
	}
	m.registry.MustRegister(
		m.passes,
		m.changed,
		m.fetchFailures,
		m.lastDuration,
		m.lastChanged,
		m.lastSuccess,
	)
	return m
}

// Registry exposes the private registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records one finished pass. err is the error the pass returned.
func (m *Metrics) Observe(report *engine.Report, started, finished time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.passes.WithLabelValues(status).Inc()
	m.lastDuration.Set(finished.Sub(started).Seconds())

	if report != nil {
		for _, rec := range report.Changed() {
			m.changed.WithLabelValues(string(rec.Resource.Kind)).Inc()
		}
		m.lastChanged.Set(float64(report.ChangedCount()))
		for _, w := range report.Warnings {
			if fetch.IsFetchFailure(w) {
				m.fetchFailures.Inc()
			}
		}
	}
	if err == nil {
		m.lastSuccess.Set(float64(finished.Unix()))
	}
}

// WriteTextfile atomically writes every metric to path in the text
// exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
