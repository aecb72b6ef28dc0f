package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kamilpajak/testpilot/pkg/models"
)

const metricsNamespace = "testpilot"

// Outcome labels for OperationsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Metrics holds the gateway's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// OperationsTotal counts dispatched operations.
	// Labels: operation, backend (real, simulator), outcome (success, failure, error)
	OperationsTotal *prometheus.CounterVec

	// FallbacksTotal counts switches from the real backend to the simulator.
	// Labels: operation (health, generate, ...), reason (transport, declared_failure, unhealthy, empty_search)
	FallbacksTotal *prometheus.CounterVec

	// Mode is 1 while the simulator serves requests.
	Mode prometheus.Gauge

	// HealthProbesTotal counts health probes.
	// Labels: backend, result (healthy, unhealthy)
	HealthProbesTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "operations_total",
			Help:      "Total gateway operations by backend and outcome",
		}, []string{"operation", "backend", "outcome"}),
		FallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "fallbacks_total",
			Help:      "Total switches from the real backend to the simulator",
		}, []string{"operation", "reason"}),
		Mode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "mode",
			Help:      "Current backend mode (0 = real, 1 = simulated)",
		}),
		HealthProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "health",
			Name:      "probes_total",
			Help:      "Total backend health probes by result",
		}, []string{"backend", "result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordOperation counts one dispatched operation.
func (m *Metrics) RecordOperation(operation, backend, outcome string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, backend, outcome).Inc()
}

// RecordFallback counts one real-to-simulator switch.
func (m *Metrics) RecordFallback(operation, reason string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(operation, reason).Inc()
}

// SetMode publishes the current backend mode.
func (m *Metrics) SetMode(mode models.BackendMode) {
	if m == nil {
		return
	}
	if mode == models.ModeSimulated {
		m.Mode.Set(1)
		return
	}
	m.Mode.Set(0)
}

// RecordProbe counts one health probe.
func (m *Metrics) RecordProbe(backend string, healthy bool) {
	if m == nil {
		return
	}
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	m.HealthProbesTotal.WithLabelValues(backend, result).Inc()
}
