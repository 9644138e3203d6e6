package journey

import "errors"

// Domain errors for journeys.
var (
	// ErrNotFound indicates the requested journey does not exist.
	ErrNotFound = errors.New("journey not found")

	// ErrEmptyID indicates a journey was created without an ID.
	ErrEmptyID = errors.New("journey id cannot be empty")

	// ErrNoStates indicates a journey has no states.
	ErrNoStates = errors.New("journey has no states")

	// ErrEmptyStateID indicates a state with no ID.
	ErrEmptyStateID = errors.New("state id cannot be empty")

	// ErrDuplicateState indicates two states share an ID.
	ErrDuplicateState = errors.New("duplicate state id")

	// ErrInitialStateMissing indicates the initial state does not exist.
	ErrInitialStateMissing = errors.New("initial state not found")

	// ErrUnknownState indicates a transition endpoint does not exist.
	ErrUnknownState = errors.New("unknown state")

	// ErrInvalidState indicates a state payload does not fit its kind.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidFork indicates a fork state violates its transition rules.
	ErrInvalidFork = errors.New("invalid fork state")

	// ErrMultipleDefaults indicates a non-fork state declares more than one
	// unconditional transition.
	ErrMultipleDefaults = errors.New("multiple unconditional transitions")
)
