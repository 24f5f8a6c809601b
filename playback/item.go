package playback

import (
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/videopipeline/composition"
	"github.com/opd-ai/videopipeline/media"
)

// ItemOutput plays an asset in real time and vends its frames. When a
// composition is set, frames are composed through it; otherwise the first
// video track is shown as is.
type ItemOutput struct {
	asset       composition.Asset
	composition *composition.VideoComposition
	compositor  *composition.Compositor
	trackID     int
	frameDur    media.Time

	mu      sync.Mutex
	start   time.Time
	playing bool
	paused  media.Time
	last    media.Time
}

// NewItemOutput creates a paused output at the start of asset. comp may be
// nil.
func NewItemOutput(asset composition.Asset, comp *composition.VideoComposition) (*ItemOutput, error) {
	tracks := composition.VideoTracks(asset)
	if len(tracks) == 0 {
		return nil, composition.ErrNoVideoTrack
	}

	o := &ItemOutput{
		asset:       asset,
		composition: comp,
		trackID:     tracks[0].ID,
		frameDur:    media.NewTime(1, media.DefaultTimescale),
		paused:      media.ZeroTime,
		last:        media.InvalidTime,
	}
	if fps := tracks[0].NominalFrameRate; fps > 0 {
		o.frameDur = media.TimeFromSeconds(1/fps, media.DefaultTimescale)
	}
	if comp != nil {
		o.compositor = composition.NewCompositor(nil)
		if comp.FrameDuration.IsValid() {
			o.frameDur = comp.FrameDuration
		}
	}
	return o, nil
}

// Play starts the item clock at host time now.
func (o *ItemOutput) Play(now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.playing {
		return
	}
	o.start = now.Add(-o.paused.Duration())
	o.playing = true
}

// Pause freezes the item at host time now.
func (o *ItemOutput) Pause(now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.playing {
		return
	}
	o.paused = o.itemTimeLocked(now)
	o.playing = false
}

// Seek moves the item to t and forces the next frame to be vended.
func (o *ItemOutput) Seek(t media.Time, now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = o.clamp(t)
	if o.playing {
		o.start = now.Add(-o.paused.Duration())
	}
	o.last = media.InvalidTime
}

// ItemTime maps a host time to the item timeline, clamped to the asset.
func (o *ItemOutput) ItemTime(host time.Time) media.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.itemTimeLocked(host)
}

func (o *ItemOutput) itemTimeLocked(host time.Time) media.Time {
	if !o.playing {
		return o.paused
	}
	elapsed := host.Sub(o.start).Seconds()
	return o.clamp(media.TimeFromSeconds(elapsed, media.DefaultTimescale))
}

func (o *ItemOutput) clamp(t media.Time) media.Time {
	if !t.IsValid() || t.Before(media.ZeroTime) {
		return media.ZeroTime
	}
	if end := o.asset.Duration(); end.IsValid() && !t.Before(end) {
		// hold the last frame
		last := end.Sub(o.frameDur)
		if last.Before(media.ZeroTime) {
			return media.ZeroTime
		}
		return last
	}
	return t
}

// frameTime snaps t to the start of its frame.
func (o *ItemOutput) frameTime(t media.Time) media.Time {
	fd := o.frameDur.ConvertScale(media.DefaultTimescale)
	v := t.ConvertScale(media.DefaultTimescale).Value
	if fd.Value > 0 {
		v -= v % fd.Value
	}
	return media.NewTime(v, media.DefaultTimescale)
}

// HasNewPixelBuffer reports whether t falls in a frame other than the last
// one copied.
func (o *ItemOutput) HasNewPixelBuffer(t media.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.last.IsValid() || o.frameTime(t).Compare(o.last) != 0
}

// CopyPixelBuffer renders the frame shown at t.
func (o *ItemOutput) CopyPixelBuffer(t media.Time) (*media.PixelBuffer, bool) {
	ft := o.frameTime(t)

	img, err := o.frame(ft)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ItemOutput.CopyPixelBuffer",
			"time":     ft.String(),
			"error":    err.Error(),
		}).Warn("Failed to produce frame")
		return nil, false
	}

	o.mu.Lock()
	o.last = ft
	o.mu.Unlock()
	return media.PixelBufferFromImage(img), true
}

func (o *ItemOutput) frame(t media.Time) (image.Image, error) {
	if o.composition == nil {
		return o.asset.Frame(o.trackID, t)
	}
	instruction, ok := o.composition.InstructionAt(t)
	if !ok {
		return nil, composition.ErrNoSourceTracks
	}
	return o.compositor.Compose(composition.Request{
		Time:        t,
		Instruction: instruction,
		Frames: composition.FrameSourceFunc(func(trackID int) (image.Image, bool) {
			img, err := o.asset.Frame(trackID, t)
			return img, err == nil
		}),
		RenderSize:      o.composition.RenderSize,
		RenderTransform: o.composition.RenderTransform,
	})
}
