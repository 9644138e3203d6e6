package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/felixgeelhaar/parley/domain/session"
	"github.com/google/uuid"
)

// EventLog is a SQLite-backed implementation of session.EventLog.
type EventLog struct {
	db          *sql.DB
	subscribers map[string][]chan session.Event
	mu          sync.RWMutex
}

// NewEventLog creates a new SQLite event log with the given configuration.
func NewEventLog(cfg Config, opts ...Option) (*EventLog, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	l := &EventLog{
		db:          db,
		subscribers: make(map[string][]chan session.Event),
	}

	if cfg.AutoMigrate {
		if err := l.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return l, nil
}

// NewEventLogFromDB creates an event log from an existing database connection.
func NewEventLogFromDB(db *sql.DB) (*EventLog, error) {
	l := &EventLog{
		db:          db,
		subscribers: make(map[string][]chan session.Event),
	}
	if err := l.migrate(); err != nil {
		return nil, err
	}
	return l, nil
}

// migrate creates the events table if it doesn't exist.
func (l *EventLog) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS session_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			source TEXT NOT NULL,
			kind TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id);
		CREATE INDEX IF NOT EXISTS idx_session_events_seq ON session_events(session_id, sequence);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_session_events_seq_unique ON session_events(session_id, sequence);
	`

	if _, err := l.db.Exec(schema); err != nil {
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

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO session_events (id, session_id, source, kind, sequence, timestamp, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now()

	// Current sequence per session touched by this batch.
	sequences := make(map[string]uint64)
	for _, e := range events {
		if e.SessionID == "" {
			return session.ErrEmptyID
		}
		if _, ok := sequences[e.SessionID]; ok {
			continue
		}
		var maxSeq sql.NullInt64
		err := tx.QueryRowContext(ctx,
			"SELECT MAX(sequence) FROM session_events WHERE session_id = ?",
			e.SessionID,
		).Scan(&maxSeq)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if maxSeq.Valid {
			sequences[e.SessionID] = uint64(maxSeq.Int64)
		}
	}

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

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.SessionID, string(e.Source), string(e.Kind),
			e.Sequence, e.Timestamp.Unix(), data, now.Unix(),
		); err != nil {
			return err
		}
		appended = append(appended, e)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	l.notifySubscribers(appended)
	return nil
}

// LoadEvents retrieves all events for a session in sequence order.
func (l *EventLog) LoadEvents(ctx context.Context, sessionID string) ([]session.Event, error) {
	return l.load(ctx,
		"SELECT data FROM session_events WHERE session_id = ? ORDER BY sequence",
		sessionID,
	)
}

// LoadEventsFrom retrieves events starting from a sequence number.
func (l *EventLog) LoadEventsFrom(ctx context.Context, sessionID string, fromSeq uint64) ([]session.Event, error) {
	return l.load(ctx,
		"SELECT data FROM session_events WHERE session_id = ? AND sequence >= ? ORDER BY sequence",
		sessionID, fromSeq,
	)
}

func (l *EventLog) load(ctx context.Context, query string, args ...any) ([]session.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []session.Event
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e session.Event
		if err := json.Unmarshal(data, &e); err != nil {
			continue // skip malformed entries
		}
		events = append(events, e)
	}
	return events, rows.Err()
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
				// Channel full, skip
			}
		}
	}
}

// Close closes the database connection and all subscriber channels.
func (l *EventLog) Close() error {
	l.mu.Lock()
	for _, subs := range l.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	l.subscribers = make(map[string][]chan session.Event)
	l.mu.Unlock()

	return l.db.Close()
}

// DB returns the underlying database connection.
func (l *EventLog) DB() *sql.DB {
	return l.db
}

var _ session.EventLog = (*EventLog)(nil)
