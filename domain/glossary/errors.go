package glossary

import "errors"

// Domain errors for the glossary.
var (
	// ErrTermNotFound indicates the requested term does not exist.
	ErrTermNotFound = errors.New("glossary term not found")

	// ErrTermExists indicates a term with the same name already exists.
	ErrTermExists = errors.New("glossary term already exists")

	// ErrEmptyName indicates a term was created without a name.
	ErrEmptyName = errors.New("glossary term name cannot be empty")
)
