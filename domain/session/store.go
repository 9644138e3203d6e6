package session

import "context"

// Store defines the repository interface for sessions.
type Store interface {
	// Save persists a new session.
	Save(ctx context.Context, s *Session) error

	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*Session, error)

	// Update persists changes to an existing session.
	Update(ctx context.Context, s *Session) error

	// ListByCustomer returns all sessions for a customer.
	ListByCustomer(ctx context.Context, customerID string) ([]*Session, error)
}

// EventLog defines the interface for session event persistence.
// The log is append-only; the pipeline appends customer/agent events and
// reads history. Durability guarantees belong to the implementation.
type EventLog interface {
	// Append persists one or more events atomically. Events are assigned
	// sequence numbers in order of appearance.
	Append(ctx context.Context, events ...Event) error

	// LoadEvents retrieves all events for a session in sequence order.
	LoadEvents(ctx context.Context, sessionID string) ([]Event, error)

	// LoadEventsFrom retrieves events starting from a sequence number.
	LoadEventsFrom(ctx context.Context, sessionID string, fromSeq uint64) ([]Event, error)

	// Subscribe returns a channel that receives new events for a session.
	// The channel is closed when the context is cancelled.
	Subscribe(ctx context.Context, sessionID string) (<-chan Event, error)
}
