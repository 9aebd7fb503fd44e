package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting runtime metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - LLM request performance and response times
//   - Tool execution patterns and latencies
//   - AI loop iterations and terminal outcomes
//   - Anomaly alerts and intervention outcomes
//   - Batch script step throughput
//   - Active session counts
type Metrics struct {
	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error|timeout)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// LoopIterations counts AI loop iterations.
	// Labels: outcome (continue|final|failed)
	LoopIterations *prometheus.CounterVec

	// AlertCounter counts anomaly alerts raised by session monitors.
	// Labels: kind, severity
	AlertCounter *prometheus.CounterVec

	// InterventionCounter counts intervention attempts.
	// Labels: strategy, outcome
	InterventionCounter *prometheus.CounterVec

	// BatchStepCounter counts executed batch script steps.
	// Labels: action, status (success|error|skipped)
	BatchStepCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and taxonomy type.
	// Labels: component (loop|tool|batch|rfc|plan|monitor), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking currently live sessions.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics with the given
// registerer. Call once at startup; a second registration with the same
// registerer panics by Prometheus convention.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whisper_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whisper_llm_requests_total",
				Help: "Total number of LLM requests by provider, model and status",
			},
			[]string{"provider", "model", "status"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whisper_tool_executions_total",
				Help: "Total number of tool executions by tool and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whisper_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		LoopIterations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whisper_loop_iterations_total",
				Help: "Total AI loop iterations by outcome",
			},
			[]string{"outcome"},
		),

		AlertCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whisper_alerts_total",
				Help: "Total anomaly alerts by kind and severity",
			},
			[]string{"kind", "severity"},
		),

		InterventionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whisper_interventions_total",
				Help: "Total interventions by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),

		BatchStepCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whisper_batch_steps_total",
				Help: "Total batch script steps by action and status",
			},
			[]string{"action", "status"},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whisper_errors_total",
				Help: "Total errors by component and taxonomy type",
			},
			[]string{"component", "error_type"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "whisper_active_sessions",
				Help: "Number of currently live sessions",
			},
		),
	}
}

// NewTestMetrics creates metrics bound to a private registry, for tests that
// construct the runtime more than once per process.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
