package message

import (
	"context"
	"regexp"
	"strings"
)

// CannedScope restricts where a canned response is eligible.
type CannedScope struct {
	// JourneyID limits the response to one journey; empty means global.
	JourneyID string `json:"journey_id,omitempty"`

	// StateID further limits it to one state of that journey.
	StateID string `json:"state_id,omitempty"`
}

// Eligible reports whether the scope admits use in the given journey/state.
func (s CannedScope) Eligible(journeyID, stateID string) bool {
	if s.JourneyID == "" {
		return true
	}
	if s.JourneyID != journeyID {
		return false
	}
	return s.StateID == "" || s.StateID == stateID
}

// CannedResponse is pre-approved template text. Placeholders use the
// {field} syntax and are filled from tool field bindings and variables.
type CannedResponse struct {
	// ID is the unique identifier.
	ID string `json:"id"`

	// Template is the response text with {field} placeholders.
	Template string `json:"template"`

	// SignalPhrases indicate when the template applies; a template with
	// no signal match is ineligible in strict and composited modes.
	SignalPhrases []string `json:"signal_phrases,omitempty"`

	// Scope restricts where the response is eligible.
	Scope CannedScope `json:"scope"`

	// Safe marks the response as a safe fallback for critique failures
	// and error paths.
	Safe bool `json:"safe,omitempty"`
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Fields returns the placeholder names in the template, in order of first
// appearance.
func (c CannedResponse) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(c.Template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Render fills placeholders from the given bindings. It reports false when
// any placeholder is unbound; an unsatisfied template is ineligible.
func (c CannedResponse) Render(bindings map[string]string) (string, bool) {
	satisfied := true
	out := placeholderPattern.ReplaceAllStringFunc(c.Template, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := bindings[name]
		if !ok {
			satisfied = false
			return m
		}
		return v
	})
	return out, satisfied
}

// SignalMatches reports whether any signal phrase appears, case-folded, in
// the given text.
func (c CannedResponse) SignalMatches(text string) bool {
	folded := strings.ToLower(text)
	for _, phrase := range c.SignalPhrases {
		if phrase != "" && strings.Contains(folded, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// CannedStore defines the repository interface for canned responses.
type CannedStore interface {
	// Create adds a canned response.
	Create(ctx context.Context, c CannedResponse) error

	// Get retrieves a canned response by ID.
	Get(ctx context.Context, id string) (CannedResponse, error)

	// List returns all canned responses in definition order.
	List(ctx context.Context) ([]CannedResponse, error)

	// ListEligible returns responses whose scope admits the given journey
	// and state, in definition order.
	ListEligible(ctx context.Context, journeyID, stateID string) ([]CannedResponse, error)

	// Delete removes a canned response by ID.
	Delete(ctx context.Context, id string) error
}
