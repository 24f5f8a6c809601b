// Package container defines the movie container writer used by recording
// and export, and implements it as fragmented MP4.
//
// A Writer accepts one Input per track. Inputs must be added before
// StartWriting; samples are appended per input and each input reports
// whether it can take more data. Inputs never block: a caller that sees
// IsReadyForMoreMediaData return false drops the sample.
package container

import (
	"fmt"

	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
)

// Status is the lifecycle state of a Writer.
type Status uint8

const (
	// StatusUnknown means StartWriting has not been called.
	StatusUnknown Status = iota
	// StatusWriting means samples are being accepted.
	StatusWriting
	// StatusCompleted means FinishWriting succeeded.
	StatusCompleted
	// StatusFailed means the writer hit an I/O error.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusWriting:
		return "writing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// TrackSpec describes one track of a movie.
type TrackSpec struct {
	MediaType media.MediaType

	// Video tracks.
	Width  int
	Height int

	// Audio tracks.
	Audio media.AudioFormat
	// OpusHeader is an Opus packet decoded for the channel layout when
	// Audio.Codec is Opus. Optional.
	OpusHeader []byte

	// Transform is the display transform of a video track.
	Transform geom.Transform
}

// Input is one track of a Writer.
type Input interface {
	// Spec returns the track description.
	Spec() TrackSpec
	// IsReadyForMoreMediaData reports whether an append would be accepted.
	IsReadyForMoreMediaData() bool
	// AppendSample appends an audio sample, or a video sample's pixels.
	AppendSample(s media.SampleBuffer) error
	// AppendPixelBuffer appends a video frame presented at pts.
	AppendPixelBuffer(pb *media.PixelBuffer, pts media.Time) error
}

// Writer writes a movie file.
type Writer interface {
	// CanAdd reports whether a track described by spec can be added.
	CanAdd(spec TrackSpec) bool
	// AddInput adds a track. It fails once writing has started.
	AddInput(spec TrackSpec) (Input, error)
	// StartWriting opens the output and writes the track descriptions.
	StartWriting() error
	// StartSession sets the timestamp that maps to time zero in the file.
	// Samples presented before it are discarded.
	StartSession(at media.Time)
	// FinishWriting flushes and closes the file, then calls done with the
	// outcome.
	FinishWriting(done func(error))
	// Status returns the writer state.
	Status() Status
	// Path returns the output file path.
	Path() string
}
