package session

import "errors"

// Domain errors for sessions.
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrExists indicates a session with the same ID already exists.
	ErrExists = errors.New("session already exists")

	// ErrEmptyID indicates a session was created without an ID.
	ErrEmptyID = errors.New("session id cannot be empty")
)
