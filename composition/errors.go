package composition

import "errors"

var (
	// ErrMissingSourceFrame is returned when a layer's track has no frame at
	// the requested time. The whole output frame fails.
	ErrMissingSourceFrame = errors.New("missing source frame")
	// ErrNoSourceTracks is returned for an instruction without layers.
	ErrNoSourceTracks = errors.New("no source track IDs")
	// ErrNoVideoTrack is returned when an asset has no video track.
	ErrNoVideoTrack = errors.New("asset has no video track")
	// ErrEmptySequence is returned when an image sequence has no frames.
	ErrEmptySequence = errors.New("image sequence is empty")
	// ErrNotAudio is returned when a non-audio sample is given as audio.
	ErrNotAudio = errors.New("not an audio sample")
	// ErrExportFailed wraps any error that aborts an export.
	ErrExportFailed = errors.New("export failed")
)
