package variable

import (
	"context"
	"errors"
	"time"
)

// Staging buffers all variable writes of one turn and commits them
// atomically at turn end. A cancelled turn discards the buffer, so
// subsequent turns never observe partial writes. Within one turn the last
// write to a key wins; cross-turn races are prevented by per-session turn
// serialization.
//
// Staging is not safe for concurrent use; one turn owns one buffer.
type Staging struct {
	store  Store
	writes []Value
	index  map[string]int // name|scopeKey -> position in writes
}

// NewStaging creates a staging buffer over the given store.
func NewStaging(store Store) *Staging {
	return &Staging{
		store: store,
		index: make(map[string]int),
	}
}

func stagingKey(name, scopeKey string) string {
	return name + "\x00" + scopeKey
}

// Get reads through the buffer: a staged write shadows the stored value.
func (s *Staging) Get(ctx context.Context, name, scopeKey string) (Value, error) {
	if i, ok := s.index[stagingKey(name, scopeKey)]; ok {
		return s.writes[i], nil
	}
	return s.store.Get(ctx, name, scopeKey)
}

// Stage records a write without touching the store.
func (s *Staging) Stage(v Value) {
	if v.LastRefreshed.IsZero() {
		v.LastRefreshed = time.Now()
	}
	key := stagingKey(v.Name, v.ScopeKey)
	if i, ok := s.index[key]; ok {
		s.writes[i] = v
		return
	}
	s.index[key] = len(s.writes)
	s.writes = append(s.writes, v)
}

// Pending returns the number of staged writes.
func (s *Staging) Pending() int {
	return len(s.writes)
}

// Commit flushes all staged writes to the store. A context cancellation
// before Commit means nothing is written. Commit refuses to run on an
// already-cancelled context so a cancelled turn cannot half-apply.
func (s *Staging) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var errs []error
	for _, v := range s.writes {
		if err := s.store.Put(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	s.Discard()
	return errors.Join(errs...)
}

// Discard drops all staged writes.
func (s *Staging) Discard() {
	s.writes = nil
	s.index = make(map[string]int)
}
