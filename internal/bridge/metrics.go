package bridge

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry

	connections   prometheus.Gauge
	processes     *prometheus.GaugeVec
	directives    *prometheus.CounterVec
	auxRejections prometheus.Counter
	spawnFailures prometheus.Counter
}

// newMetrics builds a registry per server so several bridges (tests) can
// coexist in one process.
func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opsdeck",
			Subsystem: "bridge",
			Name:      "connections_active",
			Help:      "Open bridge WebSocket connections.",
		}),
		processes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "opsdeck",
			Subsystem: "bridge",
			Name:      "processes_running",
			Help:      "Child processes alive, by kind.",
		}, []string{"kind"}),
		directives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsdeck",
			Subsystem: "bridge",
			Name:      "directives_total",
			Help:      "Inbound client messages dispatched, by type.",
		}, []string{"type"}),
		auxRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opsdeck",
			Subsystem: "bridge",
			Name:      "aux_rejections_total",
			Help:      "start_aux requests refused because the aux slot was busy.",
		}),
		spawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opsdeck",
			Subsystem: "bridge",
			Name:      "spawn_failures_total",
			Help:      "Shell or aux processes that failed to start.",
		}),
	}
	m.registry.MustRegister(
		m.connections,
		m.processes,
		m.directives,
		m.auxRejections,
		m.spawnFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) processStarted(kind ProcessKind) {
	m.processes.WithLabelValues(string(kind)).Inc()
}

func (m *metrics) processExited(kind ProcessKind) {
	m.processes.WithLabelValues(string(kind)).Dec()
}
