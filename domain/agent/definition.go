// Package agent provides the agent definition: the configuration-time
// collections a conversation runs against.
package agent

import (
	"github.com/felixgeelhaar/parley/domain/glossary"
	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/journey"
	"github.com/felixgeelhaar/parley/domain/message"
	"github.com/felixgeelhaar/parley/domain/variable"
)

// Definition is the complete configuration of one agent. It is immutable
// during conversation processing; hot reload swaps whole definitions
// between turns.
type Definition struct {
	// ID is the unique identifier.
	ID string `json:"id"`

	// Name is a human-readable name.
	Name string `json:"name"`

	// Description explains the agent's purpose.
	Description string `json:"description,omitempty"`

	// Mode is the default composition mode; guidelines may override it
	// per turn.
	Mode message.CompositionMode `json:"mode"`

	// Deflection is the generic fallback message for unrecoverable
	// failures. Customers never see raw errors.
	Deflection string `json:"deflection,omitempty"`

	// Terms is the agent's glossary.
	Terms []glossary.Term `json:"terms,omitempty"`

	// Guidelines are the agent's condition-action rules.
	Guidelines []guideline.Guideline `json:"guidelines,omitempty"`

	// Journeys are the agent's conversational state machines.
	Journeys []journey.Journey `json:"journeys,omitempty"`

	// Canned are the agent's pre-approved response templates.
	Canned []message.CannedResponse `json:"canned,omitempty"`

	// Variables are the agent's context-variable declarations.
	Variables []variable.Definition `json:"variables,omitempty"`
}

// DefaultDeflection is used when a definition configures none.
const DefaultDeflection = "I'm sorry, I can't help with that right now. Let me connect you with a colleague."

// JourneyByID returns the journey with the given ID.
func (d *Definition) JourneyByID(id string) (*journey.Journey, bool) {
	for i := range d.Journeys {
		if d.Journeys[i].ID == id {
			return &d.Journeys[i], true
		}
	}
	return nil, false
}

// VariableByName returns the declaration of the named context variable.
func (d *Definition) VariableByName(name string) (variable.Definition, bool) {
	for _, v := range d.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return variable.Definition{}, false
}

// DeflectionText returns the configured deflection or the default.
func (d *Definition) DeflectionText() string {
	if d.Deflection != "" {
		return d.Deflection
	}
	return DefaultDeflection
}
