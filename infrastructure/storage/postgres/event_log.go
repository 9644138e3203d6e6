package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/parley/domain/session"
)

// EventLog is a PostgreSQL-backed implementation of session.EventLog.
type EventLog struct {
	pool        *pgxpool.Pool
	schema      string
	subscribers map[string][]chan session.Event
	mu          sync.RWMutex
}

// NewEventLog creates a PostgreSQL event log on an existing pool.
func NewEventLog(pool *pgxpool.Pool, schema string) *EventLog {
	if schema == "" {
		schema = "public"
	}
	return &EventLog{
		pool:        pool,
		schema:      schema,
		subscribers: make(map[string][]chan session.Event),
	}
}

func (l *EventLog) tableName() string {
	return fmt.Sprintf("%s.session_events", l.schema)
}

// Migrate creates the events table if it does not exist.
func (l *EventLog) Migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			source TEXT NOT NULL,
			kind TEXT NOT NULL,
			body JSONB NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			sequence BIGINT NOT NULL,
			UNIQUE (session_id, sequence)
		);
		CREATE INDEX IF NOT EXISTS idx_session_events_session ON %s (session_id, sequence);
	`, l.tableName(), l.tableName())

	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Append persists one or more events atomically, assigning IDs, timestamps,
// and per-session sequence numbers.
func (l *EventLog) Append(ctx context.Context, events ...session.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return l.wrapError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	sequences := make(map[string]uint64)
	for _, e := range events {
		if e.SessionID == "" {
			return session.ErrEmptyID
		}
		if _, ok := sequences[e.SessionID]; ok {
			continue
		}
		var maxSeq *uint64
		err := tx.QueryRow(ctx,
			fmt.Sprintf("SELECT MAX(sequence) FROM %s WHERE session_id = $1", l.tableName()),
			e.SessionID,
		).Scan(&maxSeq)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return l.wrapError(err)
		}
		if maxSeq != nil {
			sequences[e.SessionID] = *maxSeq
		}
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, source, kind, body, timestamp, sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, l.tableName())

	now := time.Now()
	appended := make([]session.Event, 0, len(events))
	for i := range events {
		e := events[i]
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		sequences[e.SessionID]++
		e.Sequence = sequences[e.SessionID]

		if _, err := tx.Exec(ctx, insertQuery,
			e.ID, e.SessionID, string(e.Source), string(e.Kind),
			e.Body, e.Timestamp, e.Sequence,
		); err != nil {
			return l.wrapError(err)
		}
		appended = append(appended, e)
	}

	if err := tx.Commit(ctx); err != nil {
		return l.wrapError(err)
	}

	l.notifySubscribers(appended)
	return nil
}

// LoadEvents retrieves all events for a session in sequence order.
func (l *EventLog) LoadEvents(ctx context.Context, sessionID string) ([]session.Event, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, source, kind, body, timestamp, sequence
		FROM %s
		WHERE session_id = $1
		ORDER BY sequence ASC
	`, l.tableName())

	rows, err := l.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, l.wrapError(err)
	}
	defer rows.Close()

	return l.scanEvents(rows)
}

// LoadEventsFrom retrieves events starting from a sequence number.
func (l *EventLog) LoadEventsFrom(ctx context.Context, sessionID string, fromSeq uint64) ([]session.Event, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, source, kind, body, timestamp, sequence
		FROM %s
		WHERE session_id = $1 AND sequence >= $2
		ORDER BY sequence ASC
	`, l.tableName())

	rows, err := l.pool.Query(ctx, query, sessionID, fromSeq)
	if err != nil {
		return nil, l.wrapError(err)
	}
	defer rows.Close()

	return l.scanEvents(rows)
}

// Subscribe returns a channel that receives new events for a session.
func (l *EventLog) Subscribe(ctx context.Context, sessionID string) (<-chan session.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	ch := make(chan session.Event, 100)
	l.subscribers[sessionID] = append(l.subscribers[sessionID], ch)
	l.mu.Unlock()

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
			break
		}
	}
	if len(l.subscribers[sessionID]) == 0 {
		delete(l.subscribers, sessionID)
	}
}

func (l *EventLog) notifySubscribers(events []session.Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range events {
		for _, ch := range l.subscribers[e.SessionID] {
			select {
			case ch <- e:
			default:
			}
		}
	}
}

func (l *EventLog) scanEvents(rows pgx.Rows) ([]session.Event, error) {
	var events []session.Event
	for rows.Next() {
		var e session.Event
		var source, kind string

		if err := rows.Scan(
			&e.ID, &e.SessionID, &source, &kind,
			&e.Body, &e.Timestamp, &e.Sequence,
		); err != nil {
			return nil, err
		}
		e.Source = session.Source(source)
		e.Kind = session.Kind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes all subscriber channels. The pool is owned by the caller.
func (l *EventLog) Close() {
	l.mu.Lock()
	for _, subs := range l.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	l.subscribers = make(map[string][]chan session.Event)
	l.mu.Unlock()
}

func (l *EventLog) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(ErrConnectionFailed, err)
}

var _ session.EventLog = (*EventLog)(nil)
