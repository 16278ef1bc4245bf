package pipeline

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// FailureAction decides what the driver does when a phase cannot complete
type FailureAction string

const (
	// ActionAbort fails the whole run
	ActionAbort FailureAction = "abort"
	// ActionDegrade marks the phase degraded and continues with partial output
	ActionDegrade FailureAction = "degrade"
	// ActionFallback invokes the policy's named fallback, then continues degraded
	ActionFallback FailureAction = "fallback"
)

// PhasePolicy configures failure handling for one phase
type PhasePolicy struct {
	Action   FailureAction `yaml:"action"`
	Fallback string        `yaml:"fallback,omitempty"`
}

// PolicyTable maps phase names to their failure policies
type PolicyTable map[string]PhasePolicy

// DefaultPolicies returns the stock failure-policy table. Evidence and
// assembly abort because nothing downstream can work without them;
// analysis falls back to the baseline heuristic; citation linking is
// cosmetic enough to degrade.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		PhaseEvidence:  {Action: ActionAbort},
		PhaseAnalysis:  {Action: ActionFallback, Fallback: FallbackBaseline},
		PhaseCitations: {Action: ActionDegrade},
		PhaseAssembly:  {Action: ActionAbort},
	}
}

// For returns the phase's policy, aborting by default for unknown phases
func (t PolicyTable) For(phase string) PhasePolicy {
	if policy, ok := t[phase]; ok {
		return policy
	}
	return PhasePolicy{Action: ActionAbort}
}

type policyFile struct {
	Phases map[string]PhasePolicy `yaml:"phases"`
}

// LoadPolicies reads a failure-policy table from a YAML file and overlays
// it on the defaults. Phases absent from the file keep their default policy.
func LoadPolicies(path string) (PolicyTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	table := DefaultPolicies()
	for phase, policy := range file.Phases {
		if !knownPhase(phase) {
			return nil, fmt.Errorf("policy file names unknown phase %q", phase)
		}
		switch policy.Action {
		case ActionAbort, ActionDegrade:
		case ActionFallback:
			if policy.Fallback == "" {
				return nil, fmt.Errorf("phase %q: fallback action needs a fallback name", phase)
			}
		default:
			return nil, fmt.Errorf("phase %q: unknown action %q", phase, policy.Action)
		}
		table[phase] = policy
	}
	return table, nil
}

func knownPhase(name string) bool {
	for _, phase := range phaseOrder {
		if phase == name {
			return true
		}
	}
	return false
}
