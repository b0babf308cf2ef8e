// Package monitoring exposes Prometheus metrics for the bridge.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	// Command protocol metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Bridge socket metrics
	Connections prometheus.Gauge

	// Autosave metrics
	SavesTotal *prometheus.CounterVec

	// Isolation metrics
	IsolationRuns         prometheus.Counter
	IsolationStepFailures *prometheus.CounterVec

	// Kernel synchronization metrics
	SyncRuns    prometheus.Counter
	SyncSkipped prometheus.Counter

	startTime time.Time
}

// New creates the bridge metrics collector registered on the default registry.
func New() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		CommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_commands_total",
				Help: "Total number of bridge commands handled",
			},
			[]string{"command", "status"},
		),
		CommandDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_command_duration_seconds",
				Help:    "Bridge command handling duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"command"},
		),
		Connections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_connections",
				Help: "Currently open bridge sockets",
			},
		),
		SavesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_saves_total",
				Help: "Autosave attempts by result",
			},
			[]string{"result"},
		),
		IsolationRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_isolation_runs_total",
				Help: "Workspace isolation sequences executed",
			},
		),
		IsolationStepFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_isolation_step_failures_total",
				Help: "Best-effort isolation step failures by step",
			},
			[]string{"step"},
		),
		SyncRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_kernel_sync_runs_total",
				Help: "Kernel runtime synchronizations executed",
			},
		),
		SyncSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_kernel_sync_skipped_total",
				Help: "Kernel runtime synchronizations skipped by token check",
			},
		),
	}
}

// ObserveCommand records one handled command.
func (m *Metrics) ObserveCommand(command, status string, d time.Duration) {
	m.CommandsTotal.WithLabelValues(command, status).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// Uptime returns time since metrics creation.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
