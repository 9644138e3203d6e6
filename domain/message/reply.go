package message

import (
	"time"

	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/tool"
)

// DiagnosticKind classifies non-fatal conditions recorded in the trace.
type DiagnosticKind string

const (
	// DiagnosticAmbiguousConflict marks an equal-criticality guideline
	// conflict resolved by the deterministic tie-break.
	DiagnosticAmbiguousConflict DiagnosticKind = "ambiguous_guideline_conflict"

	// DiagnosticUnresolvedTransition marks a fork whose conditions all
	// failed; the session stayed in its state.
	DiagnosticUnresolvedTransition DiagnosticKind = "unresolved_transition"

	// DiagnosticJourneyAbandoned marks a turn where the customer walked
	// away from the active journey and the session was released from it.
	DiagnosticJourneyAbandoned DiagnosticKind = "journey_abandoned"

	// DiagnosticNoApprovedResponse marks a strict-mode turn with no
	// signal-matched canned response.
	DiagnosticNoApprovedResponse DiagnosticKind = "no_approved_response"

	// DiagnosticCritiqueViolation marks a draft that violated a HIGH
	// guideline during the self-critique pass.
	DiagnosticCritiqueViolation DiagnosticKind = "critique_violation"
)

// Diagnostic is one non-fatal condition surfaced by the pipeline.
type Diagnostic struct {
	Kind   DiagnosticKind `json:"kind"`
	Detail string         `json:"detail,omitempty"`
}

// JourneyStep records one journey-engine action taken during the turn.
type JourneyStep struct {
	JourneyID string `json:"journey_id"`
	FromState string `json:"from_state,omitempty"`
	ToState   string `json:"to_state"`

	// Skipped marks chat states bypassed by the adaptive-skip check.
	Skipped bool `json:"skipped,omitempty"`

	// Reason is the condition or precondition that drove the step.
	Reason string `json:"reason,omitempty"`
}

// ToolInvocation records one tool call and its outcome in the trace.
type ToolInvocation struct {
	ToolName    string        `json:"tool_name"`
	GuidelineID string        `json:"guideline_id,omitempty"`
	Outcome     tool.Outcome  `json:"outcome"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Trace is the structured record of which guidelines, tools, and journey
// steps informed a reply.
type Trace struct {
	// Matches are the guidelines the evaluator judged applicable, in
	// resolution order.
	Matches []guideline.Match `json:"matches,omitempty"`

	// Tools are the invocations performed this turn.
	Tools []ToolInvocation `json:"tools,omitempty"`

	// JourneySteps are the transitions and skips taken this turn.
	JourneySteps []JourneyStep `json:"journey_steps,omitempty"`

	// Mode is the composition mode that produced the reply.
	Mode CompositionMode `json:"mode"`

	// CannedID names the canned response used, when one was.
	CannedID string `json:"canned_id,omitempty"`

	// CritiquePasses counts self-critique evaluations of drafts.
	CritiquePasses int `json:"critique_passes,omitempty"`

	// Diagnostics are non-fatal conditions surfaced for diagnosis.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// AddDiagnostic appends a diagnostic to the trace.
func (t *Trace) AddDiagnostic(kind DiagnosticKind, detail string) {
	t.Diagnostics = append(t.Diagnostics, Diagnostic{Kind: kind, Detail: detail})
}

// HasDiagnostic reports whether a diagnostic of the given kind was recorded.
func (t *Trace) HasDiagnostic(kind DiagnosticKind) bool {
	for _, d := range t.Diagnostics {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

// Reply is the outgoing message with its trace.
type Reply struct {
	// Text is the message sent to the customer.
	Text string `json:"text"`

	// NoApprovedResponse is set when strict mode found no usable canned
	// response; Text then carries the configured deflection.
	NoApprovedResponse bool `json:"no_approved_response,omitempty"`

	// Trace records what informed the reply.
	Trace Trace `json:"trace"`
}
