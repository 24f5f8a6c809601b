package container

import "errors"

var (
	// ErrWriterOpen is returned when the output file cannot be created or
	// written.
	ErrWriterOpen = errors.New("cannot open movie writer")
	// ErrAlreadyStarted is returned when tracks are added after writing began.
	ErrAlreadyStarted = errors.New("writer already started")
	// ErrNotWriting is returned when samples arrive outside a writing session.
	ErrNotWriting = errors.New("writer is not writing")
	// ErrUnsupportedTrack is returned for tracks the container cannot carry.
	ErrUnsupportedTrack = errors.New("unsupported track")
	// ErrNotReady is returned when an input has no room for more data.
	ErrNotReady = errors.New("input is not ready for more media data")
	// ErrSampleMismatch is returned when a sample does not fit its track.
	ErrSampleMismatch = errors.New("sample does not match track")
)
