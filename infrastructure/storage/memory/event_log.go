package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/parley/domain/session"
)

// EventLog is an in-memory implementation of session.EventLog.
type EventLog struct {
	events      map[string][]session.Event // sessionID -> events
	subscribers map[string][]chan session.Event
	sequences   map[string]uint64 // sessionID -> last sequence
	mu          sync.RWMutex
}

// NewEventLog creates a new in-memory event log.
func NewEventLog() *EventLog {
	return &EventLog{
		events:      make(map[string][]session.Event),
		subscribers: make(map[string][]chan session.Event),
		sequences:   make(map[string]uint64),
	}
}

// Append persists one or more events atomically.
func (l *EventLog) Append(ctx context.Context, events ...session.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bySession := make(map[string][]session.Event)
	for _, e := range events {
		bySession[e.SessionID] = append(bySession[e.SessionID], e)
	}

	for sessionID, batch := range bySession {
		seq := l.sequences[sessionID]
		for i := range batch {
			if batch[i].ID == "" {
				batch[i].ID = uuid.New().String()
			}
			if batch[i].Timestamp.IsZero() {
				batch[i].Timestamp = time.Now()
			}
			seq++
			batch[i].Sequence = seq
		}

		l.events[sessionID] = append(l.events[sessionID], batch...)
		l.sequences[sessionID] = seq

		for _, sub := range l.subscribers[sessionID] {
			for _, e := range batch {
				select {
				case sub <- e:
				default:
					// Channel full, skip (non-blocking)
				}
			}
		}
	}

	return nil
}

// LoadEvents retrieves all events for a session in sequence order.
func (l *EventLog) LoadEvents(ctx context.Context, sessionID string) ([]session.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	events := l.events[sessionID]
	result := make([]session.Event, len(events))
	copy(result, events)
	return result, nil
}

// LoadEventsFrom retrieves events starting from a sequence number.
func (l *EventLog) LoadEventsFrom(ctx context.Context, sessionID string, fromSeq uint64) ([]session.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []session.Event
	for _, e := range l.events[sessionID] {
		if e.Sequence >= fromSeq {
			result = append(result, e)
		}
	}
	return result, nil
}

// Subscribe returns a channel that receives new events for a session.
func (l *EventLog) Subscribe(ctx context.Context, sessionID string) (<-chan session.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan session.Event, 100)
	l.subscribers[sessionID] = append(l.subscribers[sessionID], ch)

	go func() {
		<-ctx.Done()
		l.unsubscribe(sessionID, ch)
	}()

	return ch, nil
}

func (l *EventLog) unsubscribe(sessionID string, ch chan session.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	subs := l.subscribers[sessionID]
	for i, sub := range subs {
		if sub == ch {
			l.subscribers[sessionID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}
