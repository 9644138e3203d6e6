package matching

import "errors"

// Errors for the matching pipeline.
var (
	// ErrMatchingUnavailable indicates the condition evaluator could not
	// be reached. Retryable; it aborts the whole turn because matching
	// gates everything downstream.
	ErrMatchingUnavailable = errors.New("matching unavailable")

	// ErrInvalidVerdict indicates the provider returned output that could
	// not be parsed as a verdict.
	ErrInvalidVerdict = errors.New("invalid verdict from provider")
)
