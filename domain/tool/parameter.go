package tool

import (
	"encoding/json"
	"strings"
)

// Source declares where a parameter's value comes from.
type Source string

const (
	// SourceCustomer parameters must be asked for explicitly before the
	// call; a call with an unresolved required customer parameter is
	// deferred, not failed.
	SourceCustomer Source = "customer"

	// SourceContext parameters are extracted from conversation or session
	// state without asking. Missing at call time counts as a
	// MissingParameter failure, not a hard error.
	SourceContext Source = "context"
)

// Parameter is one declared tool input.
type Parameter struct {
	// Name is the argument key.
	Name string `json:"name"`

	// Description guides extraction and clarification questions.
	Description string `json:"description,omitempty"`

	// Required parameters gate the call per their source's policy.
	Required bool `json:"required"`

	// Source declares the resolution policy.
	Source Source `json:"source"`

	// BindsTo optionally references "tool.field": the parameter takes its
	// value from another tool's result field, sequencing the two calls.
	BindsTo string `json:"binds_to,omitempty"`
}

// Dependency returns the tool name and field a BindsTo reference points at.
func (p Parameter) Dependency() (toolName, field string, ok bool) {
	if p.BindsTo == "" {
		return "", "", false
	}
	i := strings.IndexByte(p.BindsTo, '.')
	if i <= 0 || i == len(p.BindsTo)-1 {
		return "", "", false
	}
	return p.BindsTo[:i], p.BindsTo[i+1:], true
}

// Arguments holds resolved parameter values by name.
type Arguments map[string]json.RawMessage

// String returns the argument as an unquoted string for convenience.
func (a Arguments) String(name string) string {
	raw, ok := a[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Has reports whether the argument is present.
func (a Arguments) Has(name string) bool {
	_, ok := a[name]
	return ok
}
