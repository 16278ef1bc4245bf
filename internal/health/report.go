package health

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Report produces a deterministic, ordered textual summary of the run for
// logs and operator dashboards. It is not end-user display material.
func (m *Monitor) Report() string {
	h := m.Health()

	var sb strings.Builder
	sb.WriteString("=== Pipeline Health Report ===\n")
	fmt.Fprintf(&sb, "Overall status: %s\n", h.OverallStatus)
	fmt.Fprintf(&sb, "Total duration: %s\n", h.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(&sb, "Errors: %d  Retries: %d  Fallbacks: %d\n", h.TotalErrors, h.TotalRetries, h.TotalFallbacks)

	sb.WriteString("\nPhases:\n")
	for _, phase := range h.Phases {
		fmt.Fprintf(&sb, "  %-20s %-10s %8s", phase.PhaseName, phase.Status, phase.Duration().Round(time.Millisecond))
		if phase.EvidenceCount > 0 {
			fmt.Fprintf(&sb, "  evidence=%d", phase.EvidenceCount)
		}
		if phase.RetryCount > 0 {
			fmt.Fprintf(&sb, "  retries=%d", phase.RetryCount)
		}
		if phase.FallbackCount > 0 {
			fmt.Fprintf(&sb, "  fallbacks=%d", phase.FallbackCount)
		}
		sb.WriteByte('\n')
		for _, msg := range phase.Errors {
			fmt.Fprintf(&sb, "    error: %s\n", msg)
		}
	}

	if len(h.Breakers) > 0 {
		sb.WriteString("\nCircuit breakers:\n")
		names := make([]string, 0, len(h.Breakers))
		for name := range h.Breakers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			snap := h.Breakers[name]
			fmt.Fprintf(&sb, "  %-20s %-10s failures=%d\n", name, snap.State, snap.FailureCount)
		}
	}

	sb.WriteString("\nRecommended actions:\n")
	for _, action := range recommendations(h) {
		fmt.Fprintf(&sb, "  - %s\n", action)
	}

	return sb.String()
}

// recommendations returns short operator guidance keyed off the overall status
func recommendations(h Health) []string {
	switch h.OverallStatus {
	case StatusCritical:
		actions := []string{"inspect failed phases and their error lists before re-running"}
		for name, snap := range h.Breakers {
			if snap.State == "open" {
				actions = append(actions, fmt.Sprintf("dependency %q is circuit-broken; verify provider status", name))
			}
		}
		sort.Strings(actions[1:])
		return actions
	case StatusDegraded:
		return []string{
			"review degraded phases and fallback usage; report content may be partial",
			"check retry counts against provider rate limits",
		}
	default:
		return []string{"none; pipeline is healthy"}
	}
}
