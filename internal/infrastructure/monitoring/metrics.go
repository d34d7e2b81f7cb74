package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the package backend
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Orchestrator metrics
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OperationsActive  prometheus.Gauge
	InFlightRejected  *prometheus.CounterVec
	DiscoveryPauses   prometheus.Counter

	// Backend metrics
	BackendCalls *prometheus.CounterVec

	// Provisioning metrics
	ProvisionErrors   *prometheus.CounterVec
	ProvisionAttempts prometheus.Counter

	// Listener metrics
	Listeners            prometheus.Gauge
	NotificationsDropped prometheus.Counter

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON API
type Snapshot struct {
	TotalRequests   int64 `json:"total_requests"`
	TotalErrors     int64 `json:"total_errors"`
	OperationsOK    int64 `json:"operations_ok"`
	OperationsError int64 `json:"operations_error"`
}

// NewMetrics creates metrics on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pkgd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 120},
			},
			[]string{"method", "path"},
		),

		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgd_operations_total",
				Help: "Install, uninstall and archive operations by outcome",
			},
			[]string{"kind", "op", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pkgd_operation_duration_seconds",
				Help:    "Mutation duration including the discovery pause",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"kind", "op"},
		),
		OperationsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pkgd_operations_active",
				Help: "Mutations currently admitted by the in-flight guard",
			},
		),
		InFlightRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgd_inflight_rejected_total",
				Help: "Requests rejected because the same package was already in flight",
			},
			[]string{"kind"},
		),
		DiscoveryPauses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pkgd_discovery_pauses_total",
				Help: "Number of times board discovery was paused",
			},
		),

		BackendCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgd_backend_calls_total",
				Help: "Calls into the CLI daemon by method and gRPC code",
			},
			[]string{"method", "code"},
		),

		ProvisionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgd_provision_errors_total",
				Help: "Provisioning errors by step",
			},
			[]string{"step"},
		),
		ProvisionAttempts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pkgd_provision_manifest_attempts_total",
				Help: "Manifest pass attempts",
			},
		),

		Listeners: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pkgd_listeners",
				Help: "Registered notification listeners",
			},
		),
		NotificationsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pkgd_notifications_dropped_total",
				Help: "Events dropped because a listener was full or gone",
			},
		),
	}
}

// Registry exposes the private registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOperation records a finished mutation
func (m *Metrics) RecordOperation(kind, op, status string, duration time.Duration) {
	m.Operations.WithLabelValues(kind, op, status).Inc()
	m.OperationDuration.WithLabelValues(kind, op).Observe(duration.Seconds())

	m.mu.Lock()
	if status == StatusSuccess {
		m.snapshot.OperationsOK++
	} else {
		m.snapshot.OperationsError++
	}
	m.mu.Unlock()
}

// RecordBackendCall records one call into the CLI daemon
func (m *Metrics) RecordBackendCall(method, code string) {
	m.BackendCalls.WithLabelValues(method, code).Inc()
}

// RecordProvisionError records a provisioning error for step
func (m *Metrics) RecordProvisionError(step string) {
	m.ProvisionErrors.WithLabelValues(step).Inc()
}

// Snapshot returns the current JSON snapshot
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Status labels
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
