package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	RunsTotal     *prometheus.CounterVec
	RunsActive    prometheus.Gauge
	PhasesTotal   *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
	PhaseRetries  *prometheus.CounterVec
	Fallbacks     *prometheus.CounterVec

	// Provider metrics
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	ProviderErrors   *prometheus.CounterVec

	// Breaker metrics
	BreakerTransitions *prometheus.CounterVec
	BreakerOpen        *prometheus.GaugeVec

	// Recovery metrics
	RecoveryAttempts *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests int64
	TotalErrors   int64
	ActiveRuns    int64
	TotalDuration float64 // sum of all request durations
	RequestCount  int64   // count for averaging
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diligence_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "diligence_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Pipeline metrics
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diligence_runs_total",
				Help: "Total number of pipeline runs",
			},
			[]string{"status"},
		),
		RunsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "diligence_runs_active",
				Help: "Number of pipeline runs in flight",
			},
		),
		PhasesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diligence_phases_total",
				Help: "Total number of completed pipeline phases",
			},
			[]string{"phase", "status"},
		),
		PhaseDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "diligence_phase_duration_seconds",
				Help:    "Pipeline phase duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"phase"},
		),
		PhaseRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diligence_phase_retries_total",
				Help: "Total number of retried operations per phase",
			},
			[]string{"phase"},
		),
		Fallbacks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diligence_fallbacks_total",
				Help: "Total number of fallback activations per phase",
			},
			[]string{"phase"},
		),

		// Provider metrics
		ProviderCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diligence_provider_calls_total",
				Help: "Total number of external provider calls",
			},
			[]string{"provider", "status"},
		),
		ProviderDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "diligence_provider_duration_seconds",
				Help:    "External provider call duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		ProviderErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diligence_provider_errors_total",
				Help: "Total number of provider errors by kind",
			},
			[]string{"provider", "kind"},
		),

		// Breaker metrics
		BreakerTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diligence_breaker_transitions_total",
				Help: "Total number of circuit breaker state transitions",
			},
			[]string{"breaker", "from", "to"},
		),
		BreakerOpen: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "diligence_breaker_open",
				Help: "Whether a circuit breaker is currently open (1) or not (0)",
			},
			[]string{"breaker"},
		),

		// Recovery metrics
		RecoveryAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diligence_recovery_attempts_total",
				Help: "Total number of structured output recovery outcomes",
			},
			[]string{"outcome"},
		),

		// WebSocket metrics
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "diligence_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diligence_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "diligence_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordRun records a finished pipeline run
func (m *Metrics) RecordRun(status string) {
	m.RunsTotal.WithLabelValues(status).Inc()
}

// RunStarted marks a pipeline run as in flight
func (m *Metrics) RunStarted() {
	m.RunsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveRuns++
	m.mu.Unlock()
}

// RunFinished marks a pipeline run as done
func (m *Metrics) RunFinished() {
	m.RunsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveRuns--
	m.mu.Unlock()
}

// RecordPhase records a completed pipeline phase
func (m *Metrics) RecordPhase(phase, status string, duration time.Duration) {
	m.PhasesTotal.WithLabelValues(phase, status).Inc()
	m.PhaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordRetry records a retried operation within a phase
func (m *Metrics) RecordRetry(phase string) {
	m.PhaseRetries.WithLabelValues(phase).Inc()
}

// RecordFallback records a fallback activation within a phase
func (m *Metrics) RecordFallback(phase string) {
	m.Fallbacks.WithLabelValues(phase).Inc()
}

// RecordProviderCall records an external provider call
func (m *Metrics) RecordProviderCall(provider, status string, duration time.Duration) {
	m.ProviderCalls.WithLabelValues(provider, status).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordProviderError records a provider error by classified kind
func (m *Metrics) RecordProviderError(provider, kind string) {
	m.ProviderErrors.WithLabelValues(provider, kind).Inc()
}

// RecordBreakerTransition records a circuit breaker state change
func (m *Metrics) RecordBreakerTransition(breaker, from, to string) {
	m.BreakerTransitions.WithLabelValues(breaker, from, to).Inc()
	open := 0.0
	if to == "open" {
		open = 1.0
	}
	m.BreakerOpen.WithLabelValues(breaker).Set(open)
}

// RecordRecovery records a structured output recovery outcome
func (m *Metrics) RecordRecovery(outcome string) {
	m.RecoveryAttempts.WithLabelValues(outcome).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// Snapshot returns current aggregate values for the JSON status endpoint
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
