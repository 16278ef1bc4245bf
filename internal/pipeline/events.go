package pipeline

import (
	"fmt"
	"time"
)

// Pipeline phases, in execution order
const (
	PhaseEvidence  = "evidence_collection"
	PhaseAnalysis  = "analysis"
	PhaseCitations = "citation_linking"
	PhaseAssembly  = "report_assembly"
)

// FallbackBaseline is the heuristic analysis used when every model fails
const FallbackBaseline = "baseline-heuristic"

var phaseOrder = []string{PhaseEvidence, PhaseAnalysis, PhaseCitations, PhaseAssembly}

// Event statuses emitted over a run's lifetime
const (
	EventStarted   = "started"
	EventCompleted = "completed"
	EventDegraded  = "degraded"
	EventFailed    = "failed"
)

// Event is one phase lifecycle notification for a run
type Event struct {
	RunID     string    `json:"run_id"`
	Phase     string    `json:"phase"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener observes phase events. Called synchronously from the driver,
// so implementations must not block.
type Listener func(Event)

// PhaseError reports that a phase failure aborted the run. Degrade-continued
// phases surface through the run's health instead of an error.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
