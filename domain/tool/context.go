package tool

import "encoding/json"

// Context carries the session view a tool executes against. It is a
// read-only snapshot; variable writes travel back through the Result.
type Context struct {
	// SessionID is the invoking session.
	SessionID string `json:"session_id"`

	// CustomerID identifies the customer.
	CustomerID string `json:"customer_id"`

	// Tags are the session's group labels.
	Tags []string `json:"tags,omitempty"`

	// Vars is a snapshot of resolvable context-variable values.
	Vars map[string]json.RawMessage `json:"vars,omitempty"`

	// History holds the recent conversation, newest last, formatted as
	// "source: text" lines.
	History []string `json:"history,omitempty"`
}

// Var returns a variable snapshot value as an unquoted string.
func (c Context) Var(name string) string {
	raw, ok := c.Vars[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
