// Package writer turns live sample buffers into a movie file.
//
// MovieFileOutput owns one adapter per captured track. Audio passes through
// untouched; video is rendered through the shared render pipeline into a
// pooled pixel buffer and that buffer is written at the original
// presentation time. The first sample appended after writing starts anchors
// the file's session, so every track shares one zero point. The first Opus
// packet seen before writing starts describes its track's channel layout.
package writer

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/videopipeline/container"
	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
	"github.com/opd-ai/videopipeline/render"
)

// Route names a source track feeding the movie.
type Route struct {
	ID        string
	MediaType media.MediaType
}

type trackAdapter struct {
	route Route
	spec  container.TrackSpec
	input container.Input
}

// MovieFileOutput writes captured samples through a container writer.
type MovieFileOutput struct {
	writer   container.Writer
	pipeline *render.Pipeline
	pool     *media.PixelBufferPool

	mu        sync.Mutex
	adapters  map[string]*trackAdapter
	order     []*trackAdapter
	startTime media.Time
	writing   bool
}

// NewMovieFileOutput creates an output with one track per route. Video
// tracks take the pipeline's size; audio tracks use audioFormat.
func NewMovieFileOutput(w container.Writer, pipeline *render.Pipeline, routes []Route, audioFormat media.AudioFormat) (*MovieFileOutput, error) {
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}

	size := pipeline.Size()
	pool, err := media.NewPixelBufferPool(size.X, size.Y, media.DefaultPoolCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPixelBufferPool, err)
	}

	m := &MovieFileOutput{
		writer:    w,
		pipeline:  pipeline,
		pool:      pool,
		adapters:  make(map[string]*trackAdapter),
		startTime: media.InvalidTime,
	}

	for _, r := range routes {
		if _, dup := m.adapters[r.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRoute, r.ID)
		}
		spec := container.TrackSpec{MediaType: r.MediaType, Transform: geom.Identity}
		switch r.MediaType {
		case media.MediaTypeVideo:
			spec.Width, spec.Height = size.X, size.Y
		case media.MediaTypeAudio:
			spec.Audio = audioFormat
		}
		a := &trackAdapter{route: r, spec: spec}
		m.adapters[r.ID] = a
		m.order = append(m.order, a)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewMovieFileOutput",
		"path":     w.Path(),
		"tracks":   len(routes),
		"width":    size.X,
		"height":   size.Y,
	}).Info("Movie file output created")

	return m, nil
}

// Path returns the movie file path.
func (m *MovieFileOutput) Path() string { return m.writer.Path() }

// IsWriting reports whether StartWriting has been called and FinishWriting
// has not.
func (m *MovieFileOutput) IsWriting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writing
}

// StartTime returns the anchored session start, or an invalid time.
func (m *MovieFileOutput) StartTime() media.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startTime
}

// StartWriting adds every track to the writer, tagging video tracks with
// transform, and starts the writer. Tracks are fixed at construction, so a
// writer refusing one is a programming error and panics.
func (m *MovieFileOutput) StartWriting(transform geom.Transform) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writing {
		return nil
	}

	size := m.pipeline.Size()
	for _, a := range m.order {
		if a.input != nil {
			continue
		}
		if a.route.MediaType == media.MediaTypeVideo {
			a.spec.Transform = transform
			a.spec.Width, a.spec.Height = size.X, size.Y
		}
		if !m.writer.CanAdd(a.spec) {
			panic(fmt.Sprintf("writer: cannot add %s input for route %q", a.route.MediaType, a.route.ID))
		}
		in, err := m.writer.AddInput(a.spec)
		if err != nil {
			panic(fmt.Sprintf("writer: adding %s input for route %q: %v", a.route.MediaType, a.route.ID, err))
		}
		a.input = in
	}

	if err := m.writer.StartWriting(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "MovieFileOutput.StartWriting",
			"path":     m.writer.Path(),
			"error":    err.Error(),
		}).Error("Failed to start writer")
		return err
	}
	m.writing = true

	logrus.WithFields(logrus.Fields{
		"function": "MovieFileOutput.StartWriting",
		"path":     m.writer.Path(),
	}).Info("Writing started")

	return nil
}

// Append writes a sample received on routeID. Samples arriving before
// StartWriting, on unknown routes, or while the track is not ready for
// more data are dropped.
func (m *MovieFileOutput) Append(sample media.SampleBuffer, routeID string) {
	mt := sample.MediaType.String()

	m.mu.Lock()
	if !m.writing {
		m.keepOpusHeaderLocked(sample, routeID)
		m.mu.Unlock()
		return
	}
	a, ok := m.adapters[routeID]
	if !ok || a.input == nil {
		m.mu.Unlock()
		samplesDropped.WithLabelValues(mt, "unrouted").Inc()
		logrus.WithFields(logrus.Fields{
			"function": "MovieFileOutput.Append",
			"route":    routeID,
		}).Warn("Sample for unknown route dropped")
		return
	}
	if !m.startTime.IsValid() {
		m.startTime = sample.PTS
		m.writer.StartSession(sample.PTS)
		logrus.WithFields(logrus.Fields{
			"function":   "MovieFileOutput.Append",
			"start_time": sample.PTS.String(),
			"media_type": mt,
		}).Info("Session anchored")
	}
	m.mu.Unlock()

	if !a.input.IsReadyForMoreMediaData() {
		m.drop(sample, "not_ready", nil)
		return
	}

	switch a.route.MediaType {
	case media.MediaTypeVideo:
		m.appendVideo(a, sample)
	default:
		if err := a.input.AppendSample(sample); err != nil {
			m.drop(sample, "append", err)
			return
		}
		samplesAppended.WithLabelValues(mt).Inc()
	}
}

// keepOpusHeaderLocked stores the first decodable Opus packet of an audio
// route that has no input yet.
func (m *MovieFileOutput) keepOpusHeaderLocked(sample media.SampleBuffer, routeID string) {
	a, ok := m.adapters[routeID]
	if !ok || a.input != nil || a.route.MediaType != media.MediaTypeAudio {
		return
	}
	if a.spec.Audio.Codec != media.AudioCodecOpus || len(a.spec.OpusHeader) > 0 || sample.Audio == nil {
		return
	}
	info, err := media.ReadOpusInfo(sample.Audio.Data)
	if err != nil {
		return
	}
	a.spec.OpusHeader = append([]byte(nil), sample.Audio.Data...)

	logrus.WithFields(logrus.Fields{
		"function": "MovieFileOutput.Append",
		"route":    routeID,
		"channels": info.Channels,
		"rate":     info.SampleRate,
	}).Debug("Opus layout taken from first packet")
}

// framePool returns a pool matching the pipeline's current size,
// replacing it after a resize. The track of a keeps the size it was
// started with.
func (m *MovieFileOutput) framePool(a *trackAdapter) (*media.PixelBufferPool, error) {
	size := m.pipeline.Size()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool.Width() == size.X && m.pool.Height() == size.Y {
		return m.pool, nil
	}
	pool, err := media.NewPixelBufferPool(size.X, size.Y, media.DefaultPoolCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPixelBufferPool, err)
	}

	fields := logrus.Fields{
		"function": "MovieFileOutput.framePool",
		"path":     m.writer.Path(),
		"from":     fmt.Sprintf("%dx%d", m.pool.Width(), m.pool.Height()),
		"to":       fmt.Sprintf("%dx%d", size.X, size.Y),
	}
	if size.X != a.spec.Width || size.Y != a.spec.Height {
		logrus.WithFields(fields).Warn("Pipeline resized while writing, frame size differs from track")
	} else {
		logrus.WithFields(fields).Debug("Pixel buffer pool resized")
	}

	m.pool = pool
	return pool, nil
}

func (m *MovieFileOutput) appendVideo(a *trackAdapter, sample media.SampleBuffer) {
	if sample.Pixels == nil {
		m.drop(sample, "render", render.ErrEmptyFrame)
		return
	}

	pool, err := m.framePool(a)
	if err != nil {
		m.drop(sample, "pool", err)
		return
	}
	pb, err := pool.Get()
	if err != nil {
		m.drop(sample, "pool", err)
		return
	}
	defer pool.Put(pb)

	if err := m.pipeline.RenderInto(sample.Pixels.Image(), pb); err != nil {
		m.drop(sample, "render", err)
		return
	}
	if err := a.input.AppendPixelBuffer(pb, sample.PTS); err != nil {
		m.drop(sample, "append", err)
		return
	}
	samplesAppended.WithLabelValues(media.MediaTypeVideo.String()).Inc()
}

func (m *MovieFileOutput) drop(sample media.SampleBuffer, reason string, err error) {
	samplesDropped.WithLabelValues(sample.MediaType.String(), reason).Inc()
	fields := logrus.Fields{
		"function":   "MovieFileOutput.Append",
		"media_type": sample.MediaType.String(),
		"pts":        sample.PTS.String(),
		"reason":     reason,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logrus.WithFields(fields).Warn("Sample dropped")
}

// FinishWriting finalizes the file and calls done with the outcome. The
// start time is reset.
func (m *MovieFileOutput) FinishWriting(done func(error)) {
	m.mu.Lock()
	m.writing = false
	m.startTime = media.InvalidTime
	m.mu.Unlock()

	m.writer.FinishWriting(func(err error) {
		fields := logrus.Fields{
			"function": "MovieFileOutput.FinishWriting",
			"path":     m.writer.Path(),
		}
		if err != nil {
			fields["error"] = err.Error()
			logrus.WithFields(fields).Error("Writing failed")
		} else {
			logrus.WithFields(fields).Info("Writing finished")
		}
		if done != nil {
			done(err)
		}
	})
}
