package media

import "fmt"

// MediaType tags a sample buffer or a track.
type MediaType uint8

const (
	// MediaTypeUnknown is the zero value.
	MediaTypeUnknown MediaType = iota
	// MediaTypeAudio carries audio samples.
	MediaTypeAudio
	// MediaTypeVideo carries pixel buffers.
	MediaTypeVideo
)

// String returns the media type name.
func (m MediaType) String() string {
	switch m {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	default:
		return "unknown"
	}
}

// SampleBuffer is one timestamped unit of captured or decoded media: a video
// frame or a packet of audio.
type SampleBuffer struct {
	MediaType MediaType
	PTS       Time
	Duration  Time

	// Pixels is set for video samples.
	Pixels *PixelBuffer
	// Audio is set for audio samples.
	Audio *AudioBuffer
}

// NewVideoSample wraps a pixel buffer presented at pts.
func NewVideoSample(pb *PixelBuffer, pts Time) SampleBuffer {
	return SampleBuffer{MediaType: MediaTypeVideo, PTS: pts, Pixels: pb}
}

// NewAudioSample wraps an audio buffer presented at pts. The duration is
// derived from the sample count and rate when both are known.
func NewAudioSample(ab *AudioBuffer, pts Time) SampleBuffer {
	s := SampleBuffer{MediaType: MediaTypeAudio, PTS: pts, Audio: ab}
	if ab != nil && ab.Format.SampleRate > 0 && ab.SampleCount > 0 {
		s.Duration = NewTime(int64(ab.SampleCount), int32(ab.Format.SampleRate))
	}
	return s
}

// Validate checks that the payload matches the media type.
func (s SampleBuffer) Validate() error {
	if !s.PTS.IsValid() {
		return fmt.Errorf("%s sample has no presentation timestamp", s.MediaType)
	}
	switch s.MediaType {
	case MediaTypeVideo:
		if s.Pixels == nil {
			return fmt.Errorf("video sample has no pixel buffer")
		}
		return s.Pixels.Validate()
	case MediaTypeAudio:
		if s.Audio == nil {
			return fmt.Errorf("audio sample has no audio buffer")
		}
		return nil
	default:
		return fmt.Errorf("sample has unknown media type")
	}
}
