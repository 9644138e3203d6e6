package guideline

import "context"

// Store defines the repository interface for guidelines.
// Implementations are in infrastructure/storage.
type Store interface {
	// Create adds a guideline. Sequence is assigned in creation order.
	Create(ctx context.Context, g Guideline) error

	// Get retrieves a guideline by ID.
	Get(ctx context.Context, id string) (Guideline, error)

	// List returns all guidelines in definition order.
	List(ctx context.Context) ([]Guideline, error)

	// ListEligible returns enabled guidelines whose scope admits the given
	// journey and state, in definition order.
	ListEligible(ctx context.Context, journeyID, stateID string) ([]Guideline, error)

	// SetEnabled activates or deactivates a guideline.
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// Delete removes a guideline by ID.
	Delete(ctx context.Context, id string) error
}
