package variable

import "errors"

// Domain errors for context variables.
var (
	// ErrNotFound indicates no value exists for the requested key.
	ErrNotFound = errors.New("variable value not found")

	// ErrEmptyName indicates a variable without a name.
	ErrEmptyName = errors.New("variable name cannot be empty")

	// ErrUnknownScope indicates an unrecognized scope.
	ErrUnknownScope = errors.New("unknown variable scope")
)
