// Package salesflow implements the sales conversation state machine: stage
// detection, the per-stage behavioral policy, intent classification and
// slot bookkeeping. It is pure and deterministic:
//
//   - No I/O and no logging in the library (callers persist and log)
//   - Keyword tables are data behind small strategy interfaces
//   - Forward-only transitions, with a greeting reset as the single
//     highest-priority rule
//   - Malformed stored state decodes to the default context, never an error
//     the caller must handle
//
// The caller owns persistence: Machine.Advance returns an updated Context
// that the caller writes back with merge-on-write semantics.
package salesflow

import "strings"

// Stage is a named phase of the sales script.
type Stage string

const (
	StageGreeting          Stage = "greeting"
	StageNeedsDiscovery    Stage = "needs_discovery"
	StagePresentation      Stage = "presentation"
	StageObjections        Stage = "objections"
	StageConsultationOffer Stage = "consultation_offer"
	StageScheduling        Stage = "scheduling"
	StageSummary           Stage = "summary"
)

// Stages lists every stage in script order.
var Stages = []Stage{
	StageGreeting,
	StageNeedsDiscovery,
	StagePresentation,
	StageObjections,
	StageConsultationOffer,
	StageScheduling,
	StageSummary,
}

// ParseStage converts a stored stage name into a Stage. Names are matched
// case-insensitively; unknown names report false.
func ParseStage(s string) (Stage, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range Stages {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Rank returns the position of s in script order, or -1 for unknown stages.
func (s Stage) Rank() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the enumerated stages.
func (s Stage) Valid() bool { return s.Rank() >= 0 }

// Before reports whether s comes strictly earlier than other in script order.
func (s Stage) Before(other Stage) bool { return s.Rank() < other.Rank() }

func (s Stage) String() string { return string(s) }
