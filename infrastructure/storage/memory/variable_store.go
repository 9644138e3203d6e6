package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/felixgeelhaar/parley/domain/variable"
)

// VariableStore is an in-memory implementation of variable.Store.
type VariableStore struct {
	values map[string]variable.Value // name|scopeKey -> value
	mu     sync.RWMutex
}

// NewVariableStore creates a new in-memory variable store.
func NewVariableStore() *VariableStore {
	return &VariableStore{
		values: make(map[string]variable.Value),
	}
}

func variableKey(name, scopeKey string) string {
	return name + "\x00" + scopeKey
}

// Get retrieves a value.
func (s *VariableStore) Get(ctx context.Context, name, scopeKey string) (variable.Value, error) {
	if err := ctx.Err(); err != nil {
		return variable.Value{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[variableKey(name, scopeKey)]
	if !ok {
		return variable.Value{}, variable.ErrNotFound
	}
	return v, nil
}

// Put writes a value.
func (s *VariableStore) Put(ctx context.Context, v variable.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.Name == "" {
		return variable.ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[variableKey(v.Name, v.ScopeKey)] = v
	return nil
}

// Delete removes a value.
func (s *VariableStore) Delete(ctx context.Context, name, scopeKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := variableKey(name, scopeKey)
	if _, ok := s.values[key]; !ok {
		return variable.ErrNotFound
	}
	delete(s.values, key)
	return nil
}

// List returns all values for a scope key.
func (s *VariableStore) List(ctx context.Context, scopeKey string) ([]variable.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []variable.Value
	for key, v := range s.values {
		if strings.HasSuffix(key, "\x00"+scopeKey) {
			result = append(result, v)
		}
	}
	return result, nil
}
