package session

import (
	"encoding/json"
	"time"
)

// Source identifies who produced an event.
type Source string

const (
	SourceCustomer Source = "customer"
	SourceAgent    Source = "agent"
	SourceSystem   Source = "system"
)

// Kind classifies an event.
type Kind string

const (
	// KindMessage is a customer or agent message.
	KindMessage Kind = "message"

	// KindStatus records pipeline status changes (journey transitions,
	// skips, diagnostics).
	KindStatus Kind = "status"

	// KindTool records a tool invocation and its outcome.
	KindTool Kind = "tool"
)

// Event is one entry in a session's append-only event log.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// SessionID is the session this event belongs to.
	SessionID string `json:"session_id"`

	// Source identifies who produced the event.
	Source Source `json:"source"`

	// Kind classifies the event.
	Kind Kind `json:"kind"`

	// Body contains the event-specific data.
	Body json.RawMessage `json:"body"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Sequence is the ordering number within the session's log.
	Sequence uint64 `json:"sequence"`
}

// MessageBody is the body of a message event.
type MessageBody struct {
	Text string `json:"text"`
}

// NewMessageEvent creates a message event from the given source.
func NewMessageEvent(sessionID string, source Source, text string) (Event, error) {
	body, err := json.Marshal(MessageBody{Text: text})
	if err != nil {
		return Event{}, err
	}
	return Event{
		SessionID: sessionID,
		Source:    source,
		Kind:      KindMessage,
		Body:      body,
		Timestamp: time.Now(),
	}, nil
}

// NewStatusEvent creates a system status event with an arbitrary payload.
func NewStatusEvent(sessionID string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		SessionID: sessionID,
		Source:    SourceSystem,
		Kind:      KindStatus,
		Body:      body,
		Timestamp: time.Now(),
	}, nil
}

// Text returns the message text for message events, empty otherwise.
func (e *Event) Text() string {
	if e.Kind != KindMessage {
		return ""
	}
	var body MessageBody
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return ""
	}
	return body.Text
}

// UnmarshalBody decodes the event body into the given value.
func (e *Event) UnmarshalBody(v any) error {
	return json.Unmarshal(e.Body, v)
}
