package composition

import (
	"fmt"
	"sort"

	"github.com/opd-ai/videopipeline/media"
)

// AudioAsset is an Asset that also carries audio. Export copies its
// samples into the movie unchanged.
type AudioAsset interface {
	Asset
	AudioFormat() media.AudioFormat
	// AudioSamples returns every audio sample in presentation order.
	AudioSamples() []media.SampleBuffer
}

type audioAsset struct {
	Asset
	trackID int
	format  media.AudioFormat
	samples []media.SampleBuffer
}

// WithAudio adds an audio track to a. Samples are sorted by presentation
// time; each must be an audio sample.
func WithAudio(a Asset, format media.AudioFormat, samples []media.SampleBuffer) (AudioAsset, error) {
	for i, s := range samples {
		if s.MediaType != media.MediaTypeAudio || s.Audio == nil {
			return nil, fmt.Errorf("%w: sample %d is not audio", ErrNotAudio, i)
		}
	}
	sorted := append([]media.SampleBuffer(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PTS.Compare(sorted[j].PTS) < 0 })

	id := 0
	for _, t := range a.Tracks() {
		if t.ID > id {
			id = t.ID
		}
	}
	return &audioAsset{Asset: a, trackID: id + 1, format: format, samples: sorted}, nil
}

func (a *audioAsset) Tracks() []Track {
	return append(a.Asset.Tracks(), Track{
		ID:        a.trackID,
		MediaType: media.MediaTypeAudio,
		TimeRange: media.NewTimeRange(media.ZeroTime, a.Duration()),
	})
}

func (a *audioAsset) AudioFormat() media.AudioFormat { return a.format }

func (a *audioAsset) AudioSamples() []media.SampleBuffer { return a.samples }
