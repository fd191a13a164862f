package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tool invocation metrics
	ToolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightctl_mcp_tool_calls_total",
		Help: "Total number of MCP tool invocations",
	}, []string{"tool", "outcome"})
	ToolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flightctl_mcp_tool_call_duration_seconds",
		Help:    "Duration of MCP tool invocations",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	// Resource API metrics
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightctl_mcp_api_requests_total",
		Help: "Total number of page requests issued against the Flight Control API",
	}, []string{"resource", "code"})
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flightctl_mcp_api_request_duration_seconds",
		Help:    "Duration of individual Flight Control API page requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource"})

	// Token lifecycle metrics
	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightctl_mcp_token_refreshes_total",
		Help: "Total number of OIDC refresh-token exchanges",
	}, []string{"outcome"})

	// Console bridge metrics
	ConsoleCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightctl_mcp_console_commands_total",
		Help: "Total number of console commands run through the flightctl CLI",
	}, []string{"outcome"})

	// Audit pipeline metrics
	AuditEventsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flightctl_mcp_audit_events_processed_total",
		Help: "Total number of audit events written to sinks",
	})
	AuditEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flightctl_mcp_audit_events_dropped_total",
		Help: "Total number of audit events dropped because the queue was full",
	})
	AuditSinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightctl_mcp_audit_sink_errors_total",
		Help: "Total number of audit sink write failures",
	}, []string{"sink"})
	AuditCircuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flightctl_mcp_audit_circuit_state",
		Help: "Circuit breaker state per audit sink (0 closed, 1 open, 2 half-open)",
	}, []string{"sink"})
	AuditCircuitRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightctl_mcp_audit_circuit_rejections_total",
		Help: "Total number of audit writes rejected by an open circuit breaker",
	}, []string{"sink"})

	// Transport metrics
	RateLimitedRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flightctl_mcp_rate_limited_requests_total",
		Help: "Total number of HTTP requests rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(ToolCalls)
	prometheus.MustRegister(ToolCallDuration)
	prometheus.MustRegister(APIRequests)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(TokenRefreshes)
	prometheus.MustRegister(ConsoleCommands)
	prometheus.MustRegister(AuditEventsProcessed)
	prometheus.MustRegister(AuditEventsDropped)
	prometheus.MustRegister(AuditSinkErrors)
	prometheus.MustRegister(AuditCircuitState)
	prometheus.MustRegister(AuditCircuitRejections)
	prometheus.MustRegister(RateLimitedRequests)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
