// Package guideline provides condition-action behavior rules and their
// matching results.
package guideline

import "sort"

// Criticality is the ordinal priority of a guideline, used to resolve
// conflicts between matched guidelines.
type Criticality int

const (
	CriticalityLow Criticality = iota
	CriticalityMedium
	CriticalityHigh
)

// String returns the criticality name.
func (c Criticality) String() string {
	switch c {
	case CriticalityLow:
		return "low"
	case CriticalityMedium:
		return "medium"
	case CriticalityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseCriticality converts a string to a Criticality.
func ParseCriticality(s string) (Criticality, bool) {
	switch s {
	case "low", "":
		return CriticalityLow, true
	case "medium":
		return CriticalityMedium, true
	case "high":
		return CriticalityHigh, true
	default:
		return CriticalityLow, false
	}
}

// ScopeKind restricts where a guideline is eligible for matching.
type ScopeKind string

const (
	// ScopeGlobal guidelines are eligible on every turn.
	ScopeGlobal ScopeKind = "global"

	// ScopeJourney guidelines are eligible only while their journey is active.
	ScopeJourney ScopeKind = "journey"

	// ScopeState guidelines are eligible only in one state of their journey.
	ScopeState ScopeKind = "state"
)

// Scope binds a guideline to a journey or journey state.
type Scope struct {
	Kind      ScopeKind `json:"kind"`
	JourneyID string    `json:"journey_id,omitempty"`
	StateID   string    `json:"state_id,omitempty"`
}

// GlobalScope returns the unrestricted scope.
func GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal}
}

// Eligible reports whether the scope admits matching given the session's
// active journey and state (empty strings when no journey is active).
func (s Scope) Eligible(journeyID, stateID string) bool {
	switch s.Kind {
	case ScopeJourney:
		return s.JourneyID == journeyID && journeyID != ""
	case ScopeState:
		return s.JourneyID == journeyID && s.StateID == stateID && stateID != ""
	default:
		return true
	}
}

// Guideline is a condition-action rule. An empty action makes the guideline
// an observation: it informs composition without demanding an action.
// Guidelines are configuration-time data and never mutate mid-conversation;
// deactivation happens via Enabled.
type Guideline struct {
	// ID is the unique identifier.
	ID string `json:"id"`

	// Condition is a natural-language predicate evaluated against the
	// conversational context by the condition evaluator.
	Condition string `json:"condition"`

	// Action is a natural-language instruction. Empty means observation.
	Action string `json:"action,omitempty"`

	// Criticality orders this guideline against conflicting ones.
	Criticality Criticality `json:"criticality"`

	// ToolRefs names tools invoked when this guideline matches.
	ToolRefs []string `json:"tool_refs,omitempty"`

	// Mode optionally overrides the agent's composition mode for turns
	// where this guideline matched. Empty means no override.
	Mode string `json:"mode,omitempty"`

	// Scope restricts where the guideline is eligible.
	Scope Scope `json:"scope"`

	// Enabled gates the guideline; disabled guidelines are never matched.
	Enabled bool `json:"enabled"`

	// Sequence is the definition order, used as the deterministic
	// tie-break between equal-criticality conflicting guidelines.
	Sequence int `json:"sequence"`
}

// IsObservation reports whether the guideline carries no action.
func (g Guideline) IsObservation() bool {
	return g.Action == ""
}

// Match is a guideline the evaluator judged applicable to the current turn.
type Match struct {
	Guideline  Guideline `json:"guideline"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale,omitempty"`
}

// SortMatches orders matches by criticality descending, then confidence
// descending, then sequence ascending. Overlapping or duplicate conditions
// are an authoring concern and are not deduplicated here.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Guideline.Criticality != b.Guideline.Criticality {
			return a.Guideline.Criticality > b.Guideline.Criticality
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Guideline.Sequence < b.Guideline.Sequence
	})
}
