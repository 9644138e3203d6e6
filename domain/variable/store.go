package variable

import "context"

// Store defines the repository interface for variable values, keyed by
// (name, scope key). The turn pipeline writes through a Staging buffer,
// never directly.
type Store interface {
	// Get retrieves a value.
	Get(ctx context.Context, name, scopeKey string) (Value, error)

	// Put writes a value.
	Put(ctx context.Context, v Value) error

	// Delete removes a value.
	Delete(ctx context.Context, name, scopeKey string) error

	// List returns all values for a scope key.
	List(ctx context.Context, scopeKey string) ([]Value, error)
}
