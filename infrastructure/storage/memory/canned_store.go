package memory

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/parley/domain/message"
)

// CannedStore is an in-memory implementation of message.CannedStore.
type CannedStore struct {
	responses []message.CannedResponse
	mu        sync.RWMutex
}

// NewCannedStore creates a new in-memory canned-response store.
func NewCannedStore() *CannedStore {
	return &CannedStore{}
}

// Create adds a canned response.
func (s *CannedStore) Create(ctx context.Context, c message.CannedResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.responses {
		if existing.ID == c.ID {
			return message.ErrCannedExists
		}
	}
	s.responses = append(s.responses, c)
	return nil
}

// Get retrieves a canned response by ID.
func (s *CannedStore) Get(ctx context.Context, id string) (message.CannedResponse, error) {
	if err := ctx.Err(); err != nil {
		return message.CannedResponse{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.responses {
		if c.ID == id {
			return c, nil
		}
	}
	return message.CannedResponse{}, message.ErrCannedNotFound
}

// List returns all canned responses in definition order.
func (s *CannedStore) List(ctx context.Context) ([]message.CannedResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]message.CannedResponse, len(s.responses))
	copy(result, s.responses)
	return result, nil
}

// ListEligible returns responses whose scope admits the given journey and
// state, in definition order.
func (s *CannedStore) ListEligible(ctx context.Context, journeyID, stateID string) ([]message.CannedResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []message.CannedResponse
	for _, c := range s.responses {
		if c.Scope.Eligible(journeyID, stateID) {
			result = append(result, c)
		}
	}
	return result, nil
}

// Delete removes a canned response by ID.
func (s *CannedStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.responses {
		if c.ID == id {
			s.responses = append(s.responses[:i], s.responses[i+1:]...)
			return nil
		}
	}
	return message.ErrCannedNotFound
}
