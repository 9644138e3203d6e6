package message

import "errors"

// Domain errors for messages and canned responses.
var (
	// ErrCannedNotFound indicates the requested canned response does not exist.
	ErrCannedNotFound = errors.New("canned response not found")

	// ErrCannedExists indicates a canned response with the same ID exists.
	ErrCannedExists = errors.New("canned response already exists")

	// ErrNoApprovedResponse indicates strict mode found no signal-matched
	// canned response for the turn.
	ErrNoApprovedResponse = errors.New("no approved response available")
)
