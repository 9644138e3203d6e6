package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/message"
	"github.com/felixgeelhaar/parley/domain/tool"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Common field constructors for turn-pipeline logging.

// SessionID adds a session ID field.
func SessionID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("session_id", id)
	}
}

// AgentID adds an agent ID field.
func AgentID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("agent_id", id)
	}
}

// CustomerID adds a customer ID field.
func CustomerID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("customer_id", id)
	}
}

// JourneyID adds a journey field.
func JourneyID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("journey", id)
	}
}

// StateID adds a journey state field.
func StateID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("state", id)
	}
}

// FromState adds a from_state field for transitions.
func FromState(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("from_state", id)
	}
}

// ToState adds a to_state field for transitions.
func ToState(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("to_state", id)
	}
}

// GuidelineID adds a guideline ID field.
func GuidelineID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("guideline", id)
	}
}

// Criticality adds a criticality field.
func Criticality(c guideline.Criticality) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("criticality", c.String())
	}
}

// Confidence adds a confidence field.
func Confidence(v float64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Float64("confidence", v)
	}
}

// ToolName adds a tool name field.
func ToolName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("tool", name)
	}
}

// Outcome adds a tool outcome field.
func Outcome(o tool.Outcome) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("outcome", string(o))
	}
}

// Mode adds a composition mode field.
func Mode(m message.CompositionMode) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("mode", string(m))
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// Matches adds a matched-guideline count field.
func Matches(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("matches", n)
	}
}

// Str adds an arbitrary string field.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}
