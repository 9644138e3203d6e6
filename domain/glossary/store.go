package glossary

import "context"

// Store defines the repository interface for glossary terms.
// This is configuration-time storage; terms are read-only during a turn.
type Store interface {
	// Create adds a term. The name must be unique within the store.
	Create(ctx context.Context, term Term) error

	// Get retrieves a term by ID.
	Get(ctx context.Context, id string) (Term, error)

	// GetByName retrieves a term by its canonical name.
	GetByName(ctx context.Context, name string) (Term, error)

	// List returns all terms in definition order.
	List(ctx context.Context) ([]Term, error)

	// Update replaces an existing term.
	Update(ctx context.Context, term Term) error

	// Delete removes a term by ID.
	Delete(ctx context.Context, id string) error
}
