package quality

import "errors"

var (
	// ErrInvalidTransition is returned when an event does not apply to the current status.
	ErrInvalidTransition = errors.New("invalid enrichment status transition")

	// ErrRetryExhausted is returned when a record has used all of its retry passes.
	ErrRetryExhausted = errors.New("retry limit reached")
)
