// Package metrics holds the Prometheus collectors for the service, registered
// on a private registry and served at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calmcall/finassist/pkg/agent"
	"github.com/calmcall/finassist/pkg/ai"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
	GraphPublishes   *prometheus.CounterVec

	ProviderFallbacks *prometheus.CounterVec
	StateTransitions  *prometheus.CounterVec

	JobsActive prometheus.Gauge
	JobsTotal  *prometheus.CounterVec
}

var _ agent.Observer = (*Metrics)(nil)

// New creates the collectors under namespace (default "finassist").
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "finassist"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route"}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls made by the model, by outcome",
		}, []string{"tool", "outcome"}),
		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call duration in seconds",
			Buckets:   []float64{0.005, 0.05, 0.25, 1, 2, 5},
		}, []string{"tool"}),
		GraphPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_publishes_total",
			Help:      "Budget graphs published to the UI",
		}, []string{"result"}),
		ProviderFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Switches from a primary provider to its fallback",
		}, []string{"kind", "from", "to"}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assistant_state_transitions_total",
			Help:      "Assistant state machine transitions",
		}, []string{"from", "to"}),
		JobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Number of agent jobs currently running",
		}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Agent jobs finished, by status",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.GraphPublishes,
		m.ProviderFallbacks,
		m.StateTransitions,
		m.JobsActive,
		m.JobsTotal,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed HTTP request. route is the chi route
// pattern, not the raw path.
func (m *Metrics) RecordRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) StateChanged(from, to agent.State) {
	m.StateTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (m *Metrics) ToolCalled(tool, outcome string, elapsed time.Duration) {
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

func (m *Metrics) GraphPublished(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.GraphPublishes.WithLabelValues(result).Inc()
}

// FallbackHook returns a switch callback that counts fallbacks for kind.
func (m *Metrics) FallbackHook(kind string) ai.SwitchFunc {
	return func(from, to string, cause error) {
		m.ProviderFallbacks.WithLabelValues(kind, from, to).Inc()
	}
}

// JobStarted and JobFinished track running agent jobs.
func (m *Metrics) JobStarted() { m.JobsActive.Inc() }

func (m *Metrics) JobFinished(status string) {
	m.JobsActive.Dec()
	m.JobsTotal.WithLabelValues(status).Inc()
}
