// Package recording implements the recording session state machine.
//
// A Session wires one data output per active media type of its capture
// sources, delivers their samples on a dedicated serial queue and forwards
// them to a MovieFileOutput:
//
//	ready → recording → finishing → finished
//
// Samples are processed while ready or recording and silently discarded
// once finishing. Finish closes the movie on the same queue that delivers
// samples, so every sample delivered before Finish is written first.
package recording

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/videopipeline/container"
	"github.com/opd-ai/videopipeline/events"
	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
	"github.com/opd-ai/videopipeline/render"
	"github.com/opd-ai/videopipeline/writer"
)

// Source is a capture device session that delivers samples to outputs.
type Source interface {
	// MediaTypes returns the media types the source currently captures.
	MediaTypes() []media.MediaType
	// CanAddOutput reports whether o can be attached.
	CanAddOutput(o *DataOutput) bool
	// AddOutput attaches o; the source then calls o.Deliver per sample.
	AddOutput(o *DataOutput)
	// RemoveOutput detaches o.
	RemoveOutput(o *DataOutput)
}

// DataOutput is the sample sink a Source delivers into.
type DataOutput struct {
	ID        string
	MediaType media.MediaType

	session *Session
}

// Deliver hands a sample to the owning session's queue without blocking.
// It reports false when the sample was dropped because the session is
// finishing or the queue is full or closed.
func (o *DataOutput) Deliver(sample media.SampleBuffer) bool {
	s := o.session
	if !s.State().AcceptsSamples() {
		return false
	}
	ok := s.queue.TryAsync(func() { s.handleSample(sample, o) })
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function":   "DataOutput.Deliver",
			"session":    s.id,
			"media_type": sample.MediaType.String(),
		}).Debug("Sample queue full, dropping sample")
	}
	return ok
}

type route struct {
	source Source
	output *DataOutput
}

// Options configures a Session.
type Options struct {
	// AudioFormat describes audio tracks.
	AudioFormat media.AudioFormat
	// QueueSize bounds pending samples.
	QueueSize int
	// Bus receives state change events. Optional.
	Bus *events.Bus
	// Clock timestamps incoming samples.
	Clock media.TimeProvider
}

// Session records the samples of its sources into one movie file. It is
// single use.
type Session struct {
	id       string
	pipeline *render.Pipeline
	movie    *writer.MovieFileOutput
	queue    *SerialQueue
	routes   []route
	bus      *events.Bus
	clock    media.TimeProvider

	mu              sync.Mutex
	state           State
	lastVideoSample *media.SampleBuffer
	lastSampleAt    time.Time

	cleanupOnce sync.Once
}

// New creates a ready session recording every active media type of
// sources into w. A source refusing an output is a programming error and
// panics.
func New(w container.Writer, pipeline *render.Pipeline, sources []Source, opts Options) (*Session, error) {
	if opts.AudioFormat == (media.AudioFormat{}) {
		opts.AudioFormat = media.DefaultAudioFormat
	}
	if opts.Clock == nil {
		opts.Clock = media.DefaultTimeProvider{}
	}

	s := &Session{
		id:       uuid.NewString(),
		pipeline: pipeline,
		bus:      opts.Bus,
		clock:    opts.Clock,
		state:    StateReady,
	}

	var routes []writer.Route
	for i, src := range sources {
		for _, mt := range src.MediaTypes() {
			o := &DataOutput{
				ID:        fmt.Sprintf("%s-%d", mt, i),
				MediaType: mt,
				session:   s,
			}
			s.routes = append(s.routes, route{source: src, output: o})
			routes = append(routes, writer.Route{ID: o.ID, MediaType: mt})
		}
	}

	movie, err := writer.NewMovieFileOutput(w, pipeline, routes, opts.AudioFormat)
	if err != nil {
		return nil, err
	}
	s.movie = movie
	s.queue = NewSerialQueue(opts.QueueSize)

	for _, r := range s.routes {
		if !r.source.CanAddOutput(r.output) {
			s.queue.Close()
			panic(fmt.Sprintf("recording: source refused %s output %q", r.output.MediaType, r.output.ID))
		}
		r.source.AddOutput(r.output)
	}

	logrus.WithFields(logrus.Fields{
		"function": "recording.New",
		"session":  s.id,
		"routes":   len(s.routes),
		"path":     w.Path(),
	}).Info("Recording session ready")

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Path returns the movie file path.
func (s *Session) Path() string { return s.movie.Path() }

// Pipeline returns the render pipeline video is rendered through.
func (s *Session) Pipeline() *render.Pipeline { return s.pipeline }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSampleAt returns when the last sample was processed.
func (s *Session) LastSampleAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSampleAt
}

// SetMirrored flips recorded and previewed video horizontally.
func (s *Session) SetMirrored(mirrored bool) {
	s.pipeline.SetMirrored(mirrored)
}

// Start begins writing with the capture orientation transform. Calling it
// in any state but ready is a programming error and panics.
func (s *Session) Start(transform geom.Transform) error {
	s.mu.Lock()
	from := s.state
	if !from.CanTransition(StateRecording) {
		s.mu.Unlock()
		panic(fmt.Sprintf("recording: Start called in state %s", from))
	}

	if err := s.movie.StartWriting(transform); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = StateRecording
	s.mu.Unlock()

	s.publish(from, StateRecording)
	return nil
}

// Finish stops recording. The session moves to finishing at once; the
// movie is closed after every queued sample and done is called once the
// session is finished. Finishing a session that is not recording returns
// ErrInvalidTransition and changes nothing. A session already cleaned up
// still finishes its movie once the queue has drained.
func (s *Session) Finish(done func(error)) error {
	s.mu.Lock()
	from := s.state
	if !from.CanTransition(StateFinishing) {
		s.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Session.Finish",
			"session":  s.id,
			"state":    from.String(),
		}).Warn("Finish rejected")
		return fmt.Errorf("%w: finish from %s", ErrInvalidTransition, from)
	}
	s.state = StateFinishing
	s.mu.Unlock()
	s.publish(from, StateFinishing)

	finish := func() {
		s.movie.FinishWriting(func(err error) {
			s.mu.Lock()
			s.state = StateFinished
			s.mu.Unlock()
			s.publish(StateFinishing, StateFinished)

			if done != nil {
				done(err)
			}
		})
	}

	if err := s.queue.Async(finish); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.Finish",
			"session":  s.id,
			"error":    err.Error(),
		}).Debug("Queue closed, finishing after drain")
		go func() {
			<-s.queue.Done()
			finish()
		}()
	}
	return nil
}

// Flush waits until every sample delivered so far has been processed.
func (s *Session) Flush() error {
	return s.queue.Sync(func() {})
}

// Snapshot renders the most recent video sample through the pipeline. ok
// is false when no video has arrived yet.
func (s *Session) Snapshot() (img *image.RGBA, ok bool) {
	s.mu.Lock()
	last := s.lastVideoSample
	s.mu.Unlock()

	if last == nil || last.Pixels == nil {
		return nil, false
	}
	img, err := s.pipeline.Process(last.Pixels.Image())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.Snapshot",
			"session":  s.id,
			"error":    err.Error(),
		}).Warn("Snapshot render failed")
		return nil, false
	}
	return img, true
}

// Cleanup detaches every output from its source and shuts the sample
// queue down; samples already queued still drain. It is idempotent and
// may be called from a Finish completion.
func (s *Session) Cleanup() {
	s.cleanupOnce.Do(func() {
		for _, r := range s.routes {
			r.source.RemoveOutput(r.output)
		}
		s.queue.Shutdown()

		logrus.WithFields(logrus.Fields{
			"function": "Session.Cleanup",
			"session":  s.id,
			"state":    s.State().String(),
		}).Debug("Recording session cleaned up")
	})
}

// handleSample runs on the queue. Samples accepted before Finish are
// still written; only a finished movie refuses them.
func (s *Session) handleSample(sample media.SampleBuffer, o *DataOutput) {
	s.mu.Lock()
	if s.state == StateFinished {
		s.mu.Unlock()
		return
	}
	s.lastSampleAt = s.clock.Now()
	if sample.MediaType == media.MediaTypeVideo {
		cached := sample
		s.lastVideoSample = &cached
	}
	s.mu.Unlock()

	s.movie.Append(sample, o.ID)
}

func (s *Session) publish(from, to State) {
	logrus.WithFields(logrus.Fields{
		"function": "Session",
		"session":  s.id,
		"from":     from.String(),
		"to":       to.String(),
	}).Info("Recording state changed")

	events.Publish(s.bus, events.RecordingStateChanged{
		SessionID: s.id,
		From:      from.String(),
		To:        to.String(),
		Path:      s.movie.Path(),
		Timestamp: s.clock.Now(),
	})
}
