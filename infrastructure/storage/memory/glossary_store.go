package memory

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/parley/domain/glossary"
)

// GlossaryStore is an in-memory implementation of glossary.Store.
type GlossaryStore struct {
	terms []glossary.Term
	mu    sync.RWMutex
}

// NewGlossaryStore creates a new in-memory glossary store.
func NewGlossaryStore() *GlossaryStore {
	return &GlossaryStore{}
}

// Create adds a term. The name must be unique within the store.
func (s *GlossaryStore) Create(ctx context.Context, term glossary.Term) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if term.Name == "" {
		return glossary.ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.terms {
		if t.ID == term.ID || t.Name == term.Name {
			return glossary.ErrTermExists
		}
	}
	s.terms = append(s.terms, term)
	return nil
}

// Get retrieves a term by ID.
func (s *GlossaryStore) Get(ctx context.Context, id string) (glossary.Term, error) {
	if err := ctx.Err(); err != nil {
		return glossary.Term{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.terms {
		if t.ID == id {
			return t, nil
		}
	}
	return glossary.Term{}, glossary.ErrTermNotFound
}

// GetByName retrieves a term by its canonical name.
func (s *GlossaryStore) GetByName(ctx context.Context, name string) (glossary.Term, error) {
	if err := ctx.Err(); err != nil {
		return glossary.Term{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.terms {
		if t.Name == name {
			return t, nil
		}
	}
	return glossary.Term{}, glossary.ErrTermNotFound
}

// List returns all terms in definition order.
func (s *GlossaryStore) List(ctx context.Context) ([]glossary.Term, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]glossary.Term, len(s.terms))
	copy(result, s.terms)
	return result, nil
}

// Update replaces an existing term.
func (s *GlossaryStore) Update(ctx context.Context, term glossary.Term) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.terms {
		if t.ID == term.ID {
			s.terms[i] = term
			return nil
		}
	}
	return glossary.ErrTermNotFound
}

// Delete removes a term by ID.
func (s *GlossaryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.terms {
		if t.ID == id {
			s.terms = append(s.terms[:i], s.terms[i+1:]...)
			return nil
		}
	}
	return glossary.ErrTermNotFound
}
