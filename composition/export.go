package composition

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/videopipeline/container"
	"github.com/opd-ai/videopipeline/events"
	"github.com/opd-ai/videopipeline/filter"
	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
	"github.com/opd-ai/videopipeline/render"
)

// ExportOptions configures an ExportSession.
type ExportOptions struct {
	// Crop is the output rectangle in presentation coordinates. Nil exports
	// the whole frame at its natural size under the preferred transform.
	Crop *geom.Rect
	// Filters are applied to every layer.
	Filters []filter.Filter
	// Overlay is scaled to the render size and composited over every frame.
	Overlay image.Image
	// Quality is the JPEG quality of video samples.
	Quality int
	Bus     *events.Bus
	Context *render.Context
	// NewWriter defaults to a fragmented MP4 writer.
	NewWriter func(path string) (container.Writer, error)
}

// ExportSession renders an asset through a cropped composition into a
// movie file.
type ExportSession struct {
	asset       Asset
	path        string
	opts        ExportOptions
	rctx        *render.Context
	composition *VideoComposition
	compositor  *Compositor
	finisher    *render.Pipeline

	mu     sync.Mutex
	frames int
	total  int
	status container.Status
}

// NewExportSession prepares an export of asset to path.
func NewExportSession(asset Asset, path string, opts ExportOptions) (*ExportSession, error) {
	tracks := VideoTracks(asset)
	if len(tracks) == 0 {
		return nil, ErrNoVideoTrack
	}
	rctx := opts.Context
	if rctx == nil {
		rctx = render.NewContext()
	}
	if opts.NewWriter == nil {
		quality := opts.Quality
		opts.NewWriter = func(path string) (container.Writer, error) {
			return container.NewFMP4Writer(path, container.FMP4Options{Quality: quality})
		}
	}

	crop := PresentationRect(tracks[0])
	if opts.Crop != nil {
		crop = *opts.Crop
	}
	size := crop.Size().Point()
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("%w: crop %s", render.ErrInvalidSize, crop)
	}

	var layers *render.Pipeline
	if len(opts.Filters) > 0 {
		p, err := render.New(rctx, size, render.WithName("export-layers"))
		if err != nil {
			return nil, err
		}
		p.SetFilters(opts.Filters...)
		layers = p
	}

	comp, err := CroppedComposition(asset, crop, layers)
	if err != nil {
		return nil, err
	}

	s := &ExportSession{
		asset:       asset,
		path:        path,
		opts:        opts,
		rctx:        rctx,
		composition: comp,
		compositor:  NewCompositor(rctx),
	}
	if opts.Overlay != nil {
		p, err := render.New(rctx, size, render.WithName("export"))
		if err != nil {
			return nil, err
		}
		p.SetOverlay(opts.Overlay)
		s.finisher = p
	}
	return s, nil
}

// Path returns the output path.
func (s *ExportSession) Path() string { return s.path }

// Composition returns the composition being exported.
func (s *ExportSession) Composition() *VideoComposition { return s.composition }

// Status returns the export state.
func (s *ExportSession) Status() container.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Progress returns the fraction of frames written.
func (s *ExportSession) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == 0 {
		return 0
	}
	return float64(s.frames) / float64(s.total)
}

// FrameCount returns how many output frames the export writes.
func (s *ExportSession) FrameCount() int {
	fd := s.composition.FrameDuration.Seconds()
	return int(math.Ceil(s.asset.Duration().Seconds()/fd - 1e-9))
}

// Export writes every frame. It stops early when ctx is cancelled; the
// partial file is closed but kept.
func (s *ExportSession) Export(ctx context.Context) error {
	started := time.Now()
	total := s.FrameCount()

	s.mu.Lock()
	s.total, s.frames, s.status = total, 0, container.StatusWriting
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "ExportSession.Export",
		"path":     s.path,
		"frames":   total,
		"width":    s.composition.RenderSize.X,
		"height":   s.composition.RenderSize.Y,
	}).Info("Export started")

	written, err := s.export(ctx, total)
	s.finished(written, err, time.Since(started))
	return err
}

func (s *ExportSession) export(ctx context.Context, total int) (int, error) {
	size := s.composition.RenderSize

	w, err := s.opts.NewWriter(s.path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	in, err := w.AddInput(container.TrackSpec{
		MediaType: media.MediaTypeVideo,
		Width:     size.X,
		Height:    size.Y,
		Transform: geom.Identity,
	})
	if err != nil {
		return 0, s.abort(w, 0, err)
	}
	audio, err := s.addAudio(w)
	if err != nil {
		return 0, s.abort(w, 0, err)
	}
	if err := w.StartWriting(); err != nil {
		return 0, s.abort(w, 0, err)
	}
	w.StartSession(media.ZeroTime)

	pool, err := media.NewPixelBufferPool(size.X, size.Y, 2)
	if err != nil {
		return 0, s.abort(w, 0, err)
	}

	fd := s.composition.FrameDuration
	written := 0
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			closeWriter(w)
			return written, err
		}

		t := media.NewTime(int64(i)*fd.Value, fd.Scale)
		instruction, ok := s.composition.InstructionAt(t)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": "ExportSession.export",
				"time":     t.String(),
			}).Debug("No instruction, skipping frame")
			continue
		}

		if err := audio.until(t.Add(fd)); err != nil {
			return written, s.abort(w, written, err)
		}
		if err := s.writeFrame(in, pool, t, instruction); err != nil {
			return written, s.abort(w, written, err)
		}
		written++

		s.mu.Lock()
		s.frames = written
		s.mu.Unlock()
		events.Publish(s.opts.Bus, events.ExportProgress{
			Path:     s.path,
			Frames:   written,
			Total:    total,
			Progress: float64(written) / float64(total),
		})
	}

	if err := audio.until(s.asset.Duration()); err != nil {
		return written, s.abort(w, written, err)
	}
	if err := closeWriter(w); err != nil {
		return written, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return written, nil
}

// addAudio adds a passthrough audio track when the asset carries audio.
func (s *ExportSession) addAudio(w container.Writer) (*audioPassthrough, error) {
	aa, ok := s.asset.(AudioAsset)
	if !ok || len(aa.AudioSamples()) == 0 {
		return nil, nil
	}
	samples := aa.AudioSamples()
	spec := container.TrackSpec{MediaType: media.MediaTypeAudio, Audio: aa.AudioFormat()}
	if spec.Audio.Codec == media.AudioCodecOpus {
		spec.OpusHeader = samples[0].Audio.Data
	}
	in, err := w.AddInput(spec)
	if err != nil {
		return nil, err
	}
	return &audioPassthrough{in: in, samples: samples}, nil
}

// audioPassthrough copies audio samples between video frames so the two
// tracks stay interleaved.
type audioPassthrough struct {
	in      container.Input
	samples []media.SampleBuffer
	next    int
	dropped int
}

// until appends every remaining sample presented before end.
func (a *audioPassthrough) until(end media.Time) error {
	if a == nil {
		return nil
	}
	for ; a.next < len(a.samples); a.next++ {
		sample := a.samples[a.next]
		if sample.PTS.Compare(end) >= 0 {
			return nil
		}
		if !a.in.IsReadyForMoreMediaData() {
			a.dropped++
			logrus.WithFields(logrus.Fields{
				"function": "audioPassthrough.until",
				"pts":      sample.PTS.String(),
				"dropped":  a.dropped,
			}).Warn("Audio track not ready, sample dropped")
			continue
		}
		if err := a.in.AppendSample(sample); err != nil {
			return err
		}
	}
	return nil
}

func (s *ExportSession) writeFrame(in container.Input, pool *media.PixelBufferPool, t media.Time, instruction *Instruction) error {
	img, err := s.compositor.Compose(Request{
		Time:            t,
		Instruction:     instruction,
		Frames:          s.frameSource(t),
		RenderSize:      s.composition.RenderSize,
		RenderTransform: s.composition.RenderTransform,
	})
	if err != nil {
		return err
	}
	if s.finisher != nil {
		if img, err = s.finisher.Process(img); err != nil {
			return err
		}
	}

	pb, err := pool.Get()
	if err != nil {
		return err
	}
	defer pool.Put(pb)

	s.rctx.RenderToBuffer(img, pb)
	return in.AppendPixelBuffer(pb, t)
}

func (s *ExportSession) frameSource(t media.Time) FrameSource {
	return FrameSourceFunc(func(trackID int) (image.Image, bool) {
		img, err := s.asset.Frame(trackID, t)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "ExportSession.frameSource",
				"track":    trackID,
				"time":     t.String(),
				"error":    err.Error(),
			}).Debug("Source frame unavailable")
			return nil, false
		}
		return img, true
	})
}

// abort closes w and wraps err.
func (s *ExportSession) abort(w container.Writer, written int, err error) error {
	closeWriter(w)
	logrus.WithFields(logrus.Fields{
		"function": "ExportSession.export",
		"path":     s.path,
		"frames":   written,
		"error":    err.Error(),
	}).Error("Export failed")
	return fmt.Errorf("%w: %w", ErrExportFailed, err)
}

func closeWriter(w container.Writer) error {
	done := make(chan error, 1)
	w.FinishWriting(func(err error) { done <- err })
	return <-done
}

func (s *ExportSession) finished(written int, err error, elapsed time.Duration) {
	ev := events.ExportFinished{
		Path:      s.path,
		Frames:    written,
		Elapsed:   elapsed,
		Timestamp: time.Now(),
	}

	s.mu.Lock()
	if err != nil {
		s.status = container.StatusFailed
		ev.Error = err.Error()
	} else {
		s.status = container.StatusCompleted
	}
	s.mu.Unlock()

	if err == nil {
		logrus.WithFields(logrus.Fields{
			"function": "ExportSession.Export",
			"path":     s.path,
			"frames":   written,
			"elapsed":  elapsed,
		}).Info("Export finished")
	}
	events.Publish(s.opts.Bus, ev)
}
