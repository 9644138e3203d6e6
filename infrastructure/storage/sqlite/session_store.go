package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/parley/domain/session"
)

// SessionStore is a SQLite-backed implementation of session.Store.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a new SQLite session store with the given
// configuration.
func NewSessionStore(cfg Config, opts ...Option) (*SessionStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &SessionStore{db: db}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewSessionStoreFromDB creates a session store from an existing database
// connection.
func NewSessionStoreFromDB(db *sql.DB) (*SessionStore, error) {
	s := &SessionStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SessionStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			journey_id TEXT NOT NULL DEFAULT '',
			state_id TEXT NOT NULL DEFAULT '',
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_customer ON sessions(customer_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Save persists a new session.
func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess.ID == "" {
		return session.ErrEmptyID
	}

	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, agent_id, customer_id, journey_id, state_id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.AgentID, sess.CustomerID, sess.JourneyID, sess.StateID,
		data, sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return session.ErrExists
		}
		return err
	}
	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM sessions WHERE id = ?", id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Update persists changes to an existing session.
func (s *SessionStore) Update(ctx context.Context, sess *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sess.UpdatedAt = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET agent_id = ?, customer_id = ?, journey_id = ?, state_id = ?, data = ?, updated_at = ?
		 WHERE id = ?`,
		sess.AgentID, sess.CustomerID, sess.JourneyID, sess.StateID,
		data, sess.UpdatedAt.Unix(), sess.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// ListByCustomer returns all sessions for a customer, oldest first.
func (s *SessionStore) ListByCustomer(ctx context.Context, customerID string) ([]*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT data FROM sessions WHERE customer_id = ? ORDER BY created_at",
		customerID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []*session.Session
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var sess session.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// Close closes the database connection.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ session.Store = (*SessionStore)(nil)
