// Package metrics exposes the fabric's Prometheus instrumentation.
//
// Grounded on nexus's internal/observability.Metrics: promauto-registered
// CounterVec/HistogramVec/GaugeVec fields on one struct, generalized from
// channel/LLM-provider labels to runner/session/tool labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway holds the counters and gauges the gateway process updates as
// runner connections and permission requests flow through Hub.
type Gateway struct {
	RunnerConnections *prometheus.GaugeVec
	SessionsActive    *prometheus.GaugeVec
	PermissionCounter *prometheus.CounterVec
	PermissionLatency *prometheus.HistogramVec
	EnvelopeCounter   *prometheus.CounterVec
}

// NewGateway registers and returns gateway metrics against the default
// registerer.
func NewGateway() *Gateway {
	return &Gateway{
		RunnerConnections: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fabric_gateway_runner_connections",
			Help: "Number of runners currently connected.",
		}, []string{"runner_id"}),
		SessionsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fabric_gateway_sessions_active",
			Help: "Number of live CLI sessions tracked per runner.",
		}, []string{"runner_id", "cli_kind"}),
		PermissionCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fabric_gateway_permission_requests_total",
			Help: "Permission requests by outcome.",
		}, []string{"behavior"}),
		PermissionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fabric_gateway_permission_decision_seconds",
			Help:    "Time from permission_request to decision.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"behavior"}),
		EnvelopeCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fabric_gateway_envelopes_total",
			Help: "Envelopes processed by type.",
		}, []string{"type"}),
	}
}

// Runner holds the counters the runner process updates as it spawns and
// drives CLI subprocesses.
type Runner struct {
	SessionsStarted  *prometheus.CounterVec
	SessionErrors    *prometheus.CounterVec
	ToolInvocations  *prometheus.CounterVec
	ReconnectCounter prometheus.Counter
}

// NewRunner registers and returns runner metrics against the default
// registerer.
func NewRunner() *Runner {
	return &Runner{
		SessionsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fabric_runner_sessions_started_total",
			Help: "CLI sessions started by vendor.",
		}, []string{"cli_kind"}),
		SessionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fabric_runner_session_errors_total",
			Help: "CLI session errors by vendor.",
		}, []string{"cli_kind"}),
		ToolInvocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fabric_runner_tool_invocations_total",
			Help: "Tool invocations observed by tool name.",
		}, []string{"tool_name"}),
		ReconnectCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fabric_runner_gateway_reconnects_total",
			Help: "Number of times the gateway WS connection was re-established.",
		}),
	}
}
