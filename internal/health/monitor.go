package health

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/techscaniq/diligence/internal/infrastructure/resilience"
)

// PhaseStatus describes the lifecycle state of one pipeline phase
type PhaseStatus string

const (
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
	PhaseDegraded  PhaseStatus = "degraded"
)

// Status classifies the aggregate health of a pipeline run
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Thresholds holds the health classification constants
type Thresholds struct {
	// MaxErrors is the total error count above which a run is critical
	MaxErrors int
	// MaxRetries is the total retry count above which a run is degraded
	MaxRetries int
}

// DefaultThresholds returns the standard classification thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxErrors: 10, MaxRetries: 5}
}

// PhaseMetrics is one record per named pipeline phase per run. It is
// written by the phase's own code through the Monitor's recording calls.
type PhaseMetrics struct {
	PhaseName     string      `json:"phase_name"`
	StartTime     time.Time   `json:"start_time"`
	EndTime       *time.Time  `json:"end_time,omitempty"`
	Status        PhaseStatus `json:"status"`
	EvidenceCount int         `json:"evidence_count,omitempty"`
	Errors        []string    `json:"errors,omitempty"`
	RetryCount    int         `json:"retry_count"`
	FallbackCount int         `json:"fallback_count"`
}

// Duration returns the phase duration, measured to now for running phases
func (m *PhaseMetrics) Duration() time.Duration {
	if m.EndTime != nil {
		return m.EndTime.Sub(m.StartTime)
	}
	return time.Since(m.StartTime)
}

// Health is the derived aggregate over all phase metrics in a run
type Health struct {
	OverallStatus  Status                         `json:"overall_status"`
	TotalDuration  time.Duration                  `json:"total_duration"`
	TotalErrors    int                            `json:"total_errors"`
	TotalRetries   int                            `json:"total_retries"`
	TotalFallbacks int                            `json:"total_fallbacks"`
	Phases         []PhaseMetrics                 `json:"phases"`
	Breakers       map[string]resilience.Snapshot `json:"breakers,omitempty"`
}

// Monitor records phase lifecycle events for one pipeline run and computes
// the aggregate health classification. It tolerates concurrent recording
// calls from phases that run partially in parallel.
type Monitor struct {
	mu         sync.Mutex
	phases     map[string]*PhaseMetrics
	order      []string
	thresholds Thresholds
	breakers   *resilience.Registry
	log        *zap.Logger
	started    time.Time
}

// NewMonitor creates a health monitor. The registry may be nil when no
// breaker snapshot is wanted; a nil logger disables logging.
func NewMonitor(thresholds Thresholds, breakers *resilience.Registry, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		phases:     make(map[string]*PhaseMetrics),
		thresholds: thresholds,
		breakers:   breakers,
		log:        log,
	}
}

// StartPhase begins tracking a named phase. Starting an already-started
// phase overwrites the prior record; callers must not start a phase they
// have not ended.
func (m *Monitor) StartPhase(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.phases[name]; !exists {
		m.order = append(m.order, name)
	}
	now := time.Now()
	if m.started.IsZero() {
		m.started = now
	}
	m.phases[name] = &PhaseMetrics{
		PhaseName: name,
		StartTime: now,
		Status:    PhaseRunning,
	}

	m.log.Info("phase started", zap.String("phase", name))
}

// EndPhase finalizes a phase with its terminal status and optional
// evidence count.
func (m *Monitor) EndPhase(name string, status PhaseStatus, evidenceCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	phase, ok := m.phases[name]
	if !ok {
		return
	}
	now := time.Now()
	phase.EndTime = &now
	phase.Status = status
	if evidenceCount > 0 {
		phase.EvidenceCount = evidenceCount
	}

	m.log.Info("phase ended",
		zap.String("phase", name),
		zap.String("status", string(status)),
		zap.Duration("duration", phase.Duration()),
		zap.Int("evidence", phase.EvidenceCount),
	)
}

// RecordError appends an error message to a phase's ordered error list
func (m *Monitor) RecordError(name, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if phase, ok := m.phases[name]; ok {
		phase.Errors = append(phase.Errors, message)
	}
}

// RecordRetry counts one retried attempt against a phase
func (m *Monitor) RecordRetry(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if phase, ok := m.phases[name]; ok {
		phase.RetryCount++
	}
}

// RecordFallback counts one fallback invocation against a phase
func (m *Monitor) RecordFallback(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if phase, ok := m.phases[name]; ok {
		phase.FallbackCount++
	}
}

// Health computes the aggregate classification over the run's phases and
// embeds a snapshot of every registered circuit breaker.
func (m *Monitor) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := Health{
		OverallStatus: StatusHealthy,
		Phases:        make([]PhaseMetrics, 0, len(m.order)),
	}

	anyFailed := false
	anyDegraded := false
	for _, name := range m.order {
		phase := m.phases[name]
		h.Phases = append(h.Phases, *phase)
		h.TotalErrors += len(phase.Errors)
		h.TotalRetries += phase.RetryCount
		h.TotalFallbacks += phase.FallbackCount
		switch phase.Status {
		case PhaseFailed:
			anyFailed = true
		case PhaseDegraded:
			anyDegraded = true
		}
	}

	if !m.started.IsZero() {
		h.TotalDuration = m.runDuration()
	}

	switch {
	case anyFailed || h.TotalErrors > m.thresholds.MaxErrors:
		h.OverallStatus = StatusCritical
	case anyDegraded || h.TotalRetries > m.thresholds.MaxRetries || h.TotalFallbacks > 0:
		h.OverallStatus = StatusDegraded
	}

	if m.breakers != nil {
		h.Breakers = m.breakers.Stats()
	}

	return h
}

// Reset discards all phase records, starting a fresh run
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = make(map[string]*PhaseMetrics)
	m.order = nil
	m.started = time.Time{}
}

// runDuration spans from the first phase start to the latest phase end,
// or to now when a phase is still running. Caller must hold the lock.
func (m *Monitor) runDuration() time.Duration {
	var latest time.Time
	for _, phase := range m.phases {
		if phase.EndTime == nil {
			return time.Since(m.started)
		}
		if phase.EndTime.After(latest) {
			latest = *phase.EndTime
		}
	}
	if latest.IsZero() {
		return 0
	}
	return latest.Sub(m.started)
}
