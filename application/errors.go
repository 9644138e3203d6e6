package application

import "errors"

var (
	// ErrEmptyInput indicates a turn was submitted without customer text.
	ErrEmptyInput = errors.New("customer input cannot be empty")

	// ErrNoDefinition indicates the engine has no agent definition.
	ErrNoDefinition = errors.New("agent definition is required")
)
