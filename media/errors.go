package media

import "errors"

// Sentinel errors for media package operations.
var (
	// ErrInvalidDimensions indicates a non-positive width or height.
	ErrInvalidDimensions = errors.New("invalid dimensions")

	// ErrPoolExhausted indicates every pooled pixel buffer is in use.
	ErrPoolExhausted = errors.New("pixel buffer pool exhausted")

	// ErrNotOpus indicates a packet could not be decoded as Opus.
	ErrNotOpus = errors.New("not an opus packet")
)
