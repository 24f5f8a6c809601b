package recording

import "errors"

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the session's current state.
	ErrInvalidTransition = errors.New("invalid recording state transition")
	// ErrQueueClosed is returned when work is submitted after cleanup.
	ErrQueueClosed = errors.New("sample queue closed")
)
