package memory

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/parley/domain/session"
)

// SessionStore is an in-memory implementation of session.Store.
type SessionStore struct {
	sessions map[string]*session.Session
	mu       sync.RWMutex
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session.Session),
	}
}

// Save persists a new session.
func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess.ID == "" {
		return session.ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return session.ErrExists
	}

	copied := *sess
	s.sessions[sess.ID] = &copied
	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	copied := *sess
	return &copied, nil
}

// Update persists changes to an existing session.
func (s *SessionStore) Update(ctx context.Context, sess *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; !exists {
		return session.ErrNotFound
	}

	copied := *sess
	copied.UpdatedAt = time.Now()
	s.sessions[sess.ID] = &copied
	return nil
}

// ListByCustomer returns all sessions for a customer.
func (s *SessionStore) ListByCustomer(ctx context.Context, customerID string) ([]*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*session.Session
	for _, sess := range s.sessions {
		if sess.CustomerID == customerID {
			copied := *sess
			result = append(result, &copied)
		}
	}
	return result, nil
}
