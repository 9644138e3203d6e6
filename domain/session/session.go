// Package session provides per-customer conversation containers and their
// append-only event logs.
package session

import "time"

// Session is a long-lived per-customer conversation container. It is created
// on first contact and never deleted implicitly. Only the turn-processing
// pipeline mutates a session, and only one turn per session runs at a time.
type Session struct {
	// ID is the unique identifier.
	ID string `json:"id"`

	// AgentID names the agent definition the session runs against.
	AgentID string `json:"agent_id"`

	// CustomerID identifies the customer.
	CustomerID string `json:"customer_id"`

	// Tags are group labels used for tag-scoped context variables.
	Tags []string `json:"tags,omitempty"`

	// JourneyID is the active journey, empty when none is active.
	JourneyID string `json:"journey_id,omitempty"`

	// StateID is the current state within the active journey.
	StateID string `json:"state_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasActiveJourney reports whether a journey is bound to the session.
func (s *Session) HasActiveJourney() bool {
	return s.JourneyID != ""
}

// BindJourney activates a journey at the given state.
func (s *Session) BindJourney(journeyID, stateID string) {
	s.JourneyID = journeyID
	s.StateID = stateID
}

// ClearJourney detaches the active journey, e.g. after it reached a terminal
// state or the customer abandoned it.
func (s *Session) ClearJourney() {
	s.JourneyID = ""
	s.StateID = ""
}
