// Package metrics exposes the backplane's Prometheus gauges/counters
// (a SPEC_FULL ambient-stack addition: the teacher's services all
// carry a /metrics endpoint backed by client_golang, per
// test/integration/health_monitoring/metrics_integration_test.go's
// prometheus.NewRegistry + promhttp.HandlerFor pattern).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector this process exposes. A fresh
// registry (not the global DefaultRegisterer) keeps /metrics free of
// the Go runtime collectors the client library registers by default,
// matching the teacher's own isolated-registry pattern.
type Registry struct {
	reg *prometheus.Registry

	MemoryQueryDuration  *prometheus.HistogramVec
	MemoryAdapterHealthy *prometheus.GaugeVec
	SprintTicks          prometheus.Counter
	SprintIssuesActive   prometheus.Gauge
	SprintExecutions     *prometheus.CounterVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		MemoryQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "backplane",
			Subsystem: "memory",
			Name:      "query_duration_seconds",
			Help:      "Query() latency by adapter and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"adapter", "outcome"}),
		MemoryAdapterHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "backplane",
			Subsystem: "memory",
			Name:      "adapter_healthy",
			Help:      "1 if the adapter's last health check passed, else 0.",
		}, []string{"adapter"}),
		SprintTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "backplane",
			Subsystem: "sprint",
			Name:      "daemon_ticks_total",
			Help:      "Number of scheduler loop iterations run.",
		}),
		SprintIssuesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "backplane",
			Subsystem: "sprint",
			Name:      "issues_active",
			Help:      "Issue count in the current sprint snapshot.",
		}),
		SprintExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backplane",
			Subsystem: "sprint",
			Name:      "executions_total",
			Help:      "process_next outcomes by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		m.MemoryQueryDuration, m.MemoryAdapterHealthy,
		m.SprintTicks, m.SprintIssuesActive, m.SprintExecutions,
	)
	return m
}

// Handler serves the registry in the standard text exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
