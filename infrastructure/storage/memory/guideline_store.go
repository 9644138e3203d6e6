package memory

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/parley/domain/guideline"
)

// GuidelineStore is an in-memory implementation of guideline.Store.
type GuidelineStore struct {
	guidelines []guideline.Guideline
	nextSeq    int
	mu         sync.RWMutex
}

// NewGuidelineStore creates a new in-memory guideline store.
func NewGuidelineStore() *GuidelineStore {
	return &GuidelineStore{nextSeq: 1}
}

// Create adds a guideline. Sequence is assigned in creation order unless
// the guideline carries one already.
func (s *GuidelineStore) Create(ctx context.Context, g guideline.Guideline) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.Condition == "" {
		return guideline.ErrEmptyCondition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.guidelines {
		if existing.ID == g.ID {
			return guideline.ErrExists
		}
	}
	if g.Sequence == 0 {
		g.Sequence = s.nextSeq
	}
	if g.Sequence >= s.nextSeq {
		s.nextSeq = g.Sequence + 1
	}
	s.guidelines = append(s.guidelines, g)
	return nil
}

// Get retrieves a guideline by ID.
func (s *GuidelineStore) Get(ctx context.Context, id string) (guideline.Guideline, error) {
	if err := ctx.Err(); err != nil {
		return guideline.Guideline{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.guidelines {
		if g.ID == id {
			return g, nil
		}
	}
	return guideline.Guideline{}, guideline.ErrNotFound
}

// List returns all guidelines in definition order.
func (s *GuidelineStore) List(ctx context.Context) ([]guideline.Guideline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]guideline.Guideline, len(s.guidelines))
	copy(result, s.guidelines)
	return result, nil
}

// ListEligible returns enabled guidelines whose scope admits the given
// journey and state, in definition order.
func (s *GuidelineStore) ListEligible(ctx context.Context, journeyID, stateID string) ([]guideline.Guideline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []guideline.Guideline
	for _, g := range s.guidelines {
		if g.Enabled && g.Scope.Eligible(journeyID, stateID) {
			result = append(result, g)
		}
	}
	return result, nil
}

// SetEnabled activates or deactivates a guideline.
func (s *GuidelineStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.guidelines {
		if s.guidelines[i].ID == id {
			s.guidelines[i].Enabled = enabled
			return nil
		}
	}
	return guideline.ErrNotFound
}

// Delete removes a guideline by ID.
func (s *GuidelineStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, g := range s.guidelines {
		if g.ID == id {
			s.guidelines = append(s.guidelines[:i], s.guidelines[i+1:]...)
			return nil
		}
	}
	return guideline.ErrNotFound
}
