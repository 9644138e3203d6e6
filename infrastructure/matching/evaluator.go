// Package matching provides semantic condition evaluation and the guideline
// matching pipeline.
package matching

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/parley/domain/glossary"
)

// Verdict is the evaluator's judgment of one condition.
type Verdict struct {
	// Match reports whether the condition holds in the given context.
	Match bool `json:"match"`

	// Confidence is the evaluator's certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// Rationale is a short explanation, kept for the turn trace.
	Rationale string `json:"rationale,omitempty"`
}

// Context is the conversational state a condition is evaluated against.
type Context struct {
	// Input is the current turn's customer message.
	Input string

	// History holds the recent conversation, newest last, formatted as
	// "source: text" lines.
	History []string

	// Terms are the glossary terms relevant to the turn.
	Terms []glossary.Term

	// Vars is a snapshot of resolvable context-variable values.
	Vars map[string]json.RawMessage

	// JourneyID and StateID name the active journey state, empty when
	// no journey is active.
	JourneyID string
	StateID   string
}

// Evaluator judges natural-language conditions against conversational
// context. It replaces what a systems language would express as pattern
// matching, so implementations must be swappable and mockable.
//
// An unavailable evaluator must return an error wrapping
// ErrMatchingUnavailable; the engine aborts and retries the whole turn
// rather than silently skipping guidelines.
type Evaluator interface {
	// Evaluate judges a single condition.
	Evaluate(ctx context.Context, condition string, ec Context) (Verdict, error)

	// Name returns the evaluator name for logging.
	Name() string
}
