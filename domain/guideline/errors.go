package guideline

import "errors"

// Domain errors for guidelines.
var (
	// ErrNotFound indicates the requested guideline does not exist.
	ErrNotFound = errors.New("guideline not found")

	// ErrExists indicates a guideline with the same ID already exists.
	ErrExists = errors.New("guideline already exists")

	// ErrEmptyCondition indicates a guideline was created without a condition.
	ErrEmptyCondition = errors.New("guideline condition cannot be empty")
)
