package filter

import "errors"

// Sentinel errors for filter operations.
var (
	// ErrFilterFailure indicates a filter produced no output image.
	ErrFilterFailure = errors.New("filter failure")

	// ErrUnknownFilter indicates no filter is registered under a name.
	ErrUnknownFilter = errors.New("unknown filter")

	// ErrNilImage indicates a nil input image.
	ErrNilImage = errors.New("input image cannot be nil")
)
