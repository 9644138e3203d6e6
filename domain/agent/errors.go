package agent

import "errors"

// Domain errors for agent definitions.
var (
	// ErrEmptyID indicates a definition without an ID.
	ErrEmptyID = errors.New("agent definition id cannot be empty")

	// ErrDuplicateID indicates two configuration items share an ID.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrDuplicateTerm indicates two glossary terms share a name.
	ErrDuplicateTerm = errors.New("duplicate glossary term name")

	// ErrInvalidTerm indicates a malformed glossary term.
	ErrInvalidTerm = errors.New("invalid glossary term")

	// ErrInvalidMode indicates an unknown composition mode.
	ErrInvalidMode = errors.New("invalid composition mode")

	// ErrInvalidVariable indicates a malformed variable declaration.
	ErrInvalidVariable = errors.New("invalid variable declaration")

	// ErrDanglingToolRef indicates a reference to an unregistered tool.
	ErrDanglingToolRef = errors.New("dangling tool reference")

	// ErrDanglingJourneyRef indicates a reference to an unknown journey
	// or journey state.
	ErrDanglingJourneyRef = errors.New("dangling journey reference")
)
