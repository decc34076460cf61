// Package metrics exposes the Prometheus collectors the signature engine,
// state machine and sweep emit. Adapted from the teacher's
// infrastructure/metrics: the HTTP/database collector shapes are kept, the
// "business metrics" family is replaced with the activation/signature
// counters this core actually produces.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"powerauth-server/internal/runtime"
)

// Metrics holds every Prometheus collector the server registers.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ErrorsTotal *prometheus.CounterVec

	SignatureVerificationsTotal *prometheus.CounterVec
	SignatureVerifyDuration     *prometheus.HistogramVec
	ActivationLockoutsTotal     prometheus.Counter
	ActivationTransitionsTotal  *prometheus.CounterVec
	SweepRunsTotal              prometheus.Counter
	SweepExpiredTotal           prometheus.Counter
	CallbackDeliveriesTotal     *prometheus.CounterVec

	DatabaseQueriesTotal    *prometheus.CounterVec
	DatabaseQueryDuration   *prometheus.HistogramVec
	DatabaseConnectionsOpen prometheus.Gauge

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer,
// or an unregistered one when registerer is nil (tests).
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "http_requests_in_flight", Help: "Current number of in-flight HTTP requests"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total", Help: "Total number of errors"},
			[]string{"service", "code", "operation"},
		),
		SignatureVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "powerauth_signature_verifications_total", Help: "Signature verification attempts by outcome"},
			[]string{"signature_type", "result"},
		),
		SignatureVerifyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "powerauth_signature_verify_duration_seconds",
				Help:    "Time spent verifying a signature, including the lookahead scan",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"signature_type"},
		),
		ActivationLockoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "powerauth_activation_lockouts_total", Help: "Activations transitioned to BLOCKED by exhausted failed attempts"},
		),
		ActivationTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "powerauth_activation_transitions_total", Help: "Activation state machine transitions"},
			[]string{"from", "to"},
		),
		SweepRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "powerauth_sweep_runs_total", Help: "Expiration sweep executions"},
		),
		SweepExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "powerauth_sweep_expired_total", Help: "Activations removed by the expiration sweep"},
		),
		CallbackDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "powerauth_callback_deliveries_total", Help: "Outbound callback delivery attempts by outcome"},
			[]string{"result"},
		),
		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "database_queries_total", Help: "Total number of database queries"},
			[]string{"service", "operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		DatabaseConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "database_connections_open", Help: "Current number of open database connections"},
		),
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "service_uptime_seconds", Help: "Service uptime in seconds"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "service_info", Help: "Service information"},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal, m.RequestDuration, m.RequestsInFlight, m.ErrorsTotal,
			m.SignatureVerificationsTotal, m.SignatureVerifyDuration,
			m.ActivationLockoutsTotal, m.ActivationTransitionsTotal,
			m.SweepRunsTotal, m.SweepExpiredTotal, m.CallbackDeliveriesTotal,
			m.DatabaseQueriesTotal, m.DatabaseQueryDuration, m.DatabaseConnectionsOpen,
			m.ServiceUptime, m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", string(runtime.Env())).Set(1)
	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an application error by its apperr.Code.
func (m *Metrics) RecordError(service, code, operation string) {
	m.ErrorsTotal.WithLabelValues(service, code, operation).Inc()
}

// RecordSignatureVerification records one verifySignature outcome (§4.2).
func (m *Metrics) RecordSignatureVerification(signatureType string, succeeded bool, duration time.Duration) {
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	m.SignatureVerificationsTotal.WithLabelValues(signatureType, result).Inc()
	m.SignatureVerifyDuration.WithLabelValues(signatureType).Observe(duration.Seconds())
}

// RecordLockout records an activation crossing into BLOCKED via exhausted
// failed attempts (§4.5 "failedAttempts==max").
func (m *Metrics) RecordLockout() {
	m.ActivationLockoutsTotal.Inc()
}

// RecordTransition records a state machine transition (§4.5).
func (m *Metrics) RecordTransition(from, to string) {
	m.ActivationTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordSweep records one expiration sweep run and how many records it removed (§5).
func (m *Metrics) RecordSweep(expired int) {
	m.SweepRunsTotal.Inc()
	if expired > 0 {
		m.SweepExpiredTotal.Add(float64(expired))
	}
}

// RecordCallbackDelivery records the final outcome of one callback delivery to one URL (§7).
func (m *Metrics) RecordCallbackDelivery(succeeded bool) {
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	m.CallbackDeliveriesTotal.WithLabelValues(result).Inc()
}

// RecordDatabaseQuery records a repository call.
func (m *Metrics) RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// SetDatabaseConnections reports the current open connection count.
func (m *Metrics) SetDatabaseConnections(count int) {
	m.DatabaseConnectionsOpen.Set(float64(count))
}

// UpdateUptime reports elapsed time since startTime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func (m *Metrics) IncrementInFlight() { m.RequestsInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.RequestsInFlight.Dec() }

var (
	global   *Metrics
	globalMu sync.Mutex
)

// Init initializes (once) and returns the process-wide Metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(serviceName)
	}
	return global
}

// Global returns the process-wide Metrics instance, initializing a default
// one if Init was never called.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New("powerauth-server")
	}
	return global
}
