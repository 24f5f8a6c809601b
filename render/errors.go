package render

import "errors"

var (
	// ErrInvalidSize is returned when a pipeline target size is not positive.
	ErrInvalidSize = errors.New("render size must be positive")
	// ErrEmptyFrame is returned when a frame has a zero extent.
	ErrEmptyFrame = errors.New("frame has an empty extent")
	// ErrNilBuffer is returned when RenderInto is given no destination.
	ErrNilBuffer = errors.New("destination pixel buffer is nil")
	// ErrSizeMismatch is returned when a destination buffer does not match
	// the pipeline size.
	ErrSizeMismatch = errors.New("destination buffer does not match render size")
)
