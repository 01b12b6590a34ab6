package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	stages         *prometheus.CounterVec
	executions     *prometheus.CounterVec
	routing        *prometheus.CounterVec
	alerts         *prometheus.CounterVec
}

// NewMetrics registers every collector on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_errors_total",
			Help: "HTTP error responses by error code",
		}, []string{"route", "method", "code"}),
		stages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_pipeline_stage_total",
			Help: "Ticket pipeline stage outcomes",
		}, []string{"stage", "outcome"}),
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_workflow_executions_total",
			Help: "Workflow executions by final status",
		}, []string{"status"}),
		routing: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_routing_decisions_total",
			Help: "Routing decisions by method and whether they were applied",
		}, []string{"method", "applied"}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_alert_deliveries_total",
			Help: "Alert channel sends by outcome",
		}, []string{"channel", "outcome"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts a served request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts an error response.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordStage counts one pipeline stage outcome.
func (m *Metrics) RecordStage(stage string, attempted bool, err error) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage, outcome(attempted, err)).Inc()
}

// RecordExecution counts a workflow execution reaching status.
func (m *Metrics) RecordExecution(status domain.ExecutionStatus) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(string(status)).Inc()
}

// RecordRouting counts a routing decision.
func (m *Metrics) RecordRouting(method domain.RoutingMethod, applied bool) {
	if m == nil {
		return
	}
	m.routing.WithLabelValues(string(method), strconv.FormatBool(applied)).Inc()
}

// RecordAlertDelivery counts a single channel send.
func (m *Metrics) RecordAlertDelivery(channel domain.AlertChannel, err error) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(string(channel), outcome(true, err)).Inc()
}

func outcome(attempted bool, err error) string {
	switch {
	case !attempted:
		return "skipped"
	case err != nil:
		return "failed"
	default:
		return "ok"
	}
}
