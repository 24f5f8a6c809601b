// Package capture drives camera and microphone capture for recording and
// photos.
//
// A Session owns two independent device sessions, one for audio and one
// for video, so reconfiguring one never glitches the other. It keeps a
// prepared recording.Session ready so StartRecording begins immediately,
// and replaces it after every finished recording.
package capture

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/videopipeline/container"
	"github.com/opd-ai/videopipeline/events"
	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
	"github.com/opd-ai/videopipeline/recording"
	"github.com/opd-ai/videopipeline/render"
)

// WriterFactory opens the container writer for a new recording.
type WriterFactory func(path string) (container.Writer, error)

// Config wires a Session to its collaborators. Pipeline and Video are
// required.
type Config struct {
	Pipeline  *render.Pipeline
	Audio     DeviceSession
	Video     DeviceSession
	Discovery Discovery
	// AudioRoute defaults to a route that does nothing.
	AudioRoute AudioRoute
	// NewWriter defaults to a fragmented MP4 writer.
	NewWriter WriterFactory
	// Dir holds recordings and photos. Defaults to os.TempDir().
	Dir         string
	AudioFormat media.AudioFormat
	Bus         *events.Bus
	Clock       media.TimeProvider
}

// Session is the camera facing entry point: device selection, recording
// and photos.
type Session struct {
	pipeline  *render.Pipeline
	audio     DeviceSession
	video     DeviceSession
	discovery Discovery
	route     AudioRoute
	newWriter WriterFactory
	dir       string
	format    media.AudioFormat
	bus       *events.Bus
	clock     media.TimeProvider

	mu               sync.Mutex
	audioEnabled     bool
	manageAudioRoute bool
	flashMode        FlashMode
	orientation      geom.Transform
	recording        *recording.Session
	photo            *PhotoOutput
}

// NewSession creates a capture session. The first microphone found is
// attached to the audio session.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Pipeline == nil || cfg.Video == nil {
		return nil, fmt.Errorf("capture: pipeline and video session are required")
	}
	s := &Session{
		pipeline:         cfg.Pipeline,
		audio:            cfg.Audio,
		video:            cfg.Video,
		discovery:        cfg.Discovery,
		route:            cfg.AudioRoute,
		newWriter:        cfg.NewWriter,
		dir:              cfg.Dir,
		format:           cfg.AudioFormat,
		bus:              cfg.Bus,
		clock:            cfg.Clock,
		audioEnabled:     cfg.Audio != nil,
		manageAudioRoute: true,
		orientation:      geom.Rotation(-math.Pi / 2),
	}
	if s.route == nil {
		s.route = nopAudioRoute{}
	}
	if s.newWriter == nil {
		s.newWriter = func(path string) (container.Writer, error) {
			return container.NewFMP4Writer(path, container.FMP4Options{})
		}
	}
	if s.dir == "" {
		s.dir = os.TempDir()
	}
	if s.clock == nil {
		s.clock = media.DefaultTimeProvider{}
	}

	if s.audio != nil && s.discovery != nil {
		if mics := s.discovery.Devices(media.MediaTypeAudio); len(mics) > 0 {
			if err := s.audio.AddInput(mics[0]); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "capture.NewSession",
					"device":   mics[0].ID(),
					"error":    err.Error(),
				}).Warn("Failed to add microphone")
			}
		}
	}

	return s, nil
}

// Pipeline returns the render pipeline shared by preview and recording.
func (s *Session) Pipeline() *render.Pipeline { return s.pipeline }

// AudioEnabled reports whether recordings capture audio.
func (s *Session) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioEnabled
}

// SetAudioEnabled turns audio capture on or off for the next recording.
func (s *Session) SetAudioEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioEnabled = enabled && s.audio != nil
}

// SetManageAudioRoute controls whether recording takes over the shared
// audio route.
func (s *Session) SetManageAudioRoute(manage bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manageAudioRoute = manage
}

// FlashMode returns the photo flash mode.
func (s *Session) FlashMode() FlashMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flashMode
}

// SetFlashMode sets the photo flash mode.
func (s *Session) SetFlashMode(m FlashMode) {
	s.mu.Lock()
	s.flashMode = m
	photo := s.photo
	s.mu.Unlock()

	if photo != nil {
		photo.SetFlashMode(m)
	}
}

// SetOrientationTransform sets the transform recorded with video tracks.
// It defaults to a quarter turn clockwise.
func (s *Session) SetOrientationTransform(t geom.Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orientation = t
}

// IsRunning reports whether the video session is running.
func (s *Session) IsRunning() bool { return s.video.IsRunning() }

// SetRunning starts or stops the video session.
func (s *Session) SetRunning(running bool) {
	if running == s.video.IsRunning() {
		return
	}
	if running {
		s.video.StartRunning()
	} else {
		s.video.StopRunning()
	}
}

// VideoDevices lists the available cameras.
func (s *Session) VideoDevices() []Device {
	if s.discovery == nil {
		return nil
	}
	return s.discovery.Devices(media.MediaTypeVideo)
}

// CurrentVideoDevice returns the camera attached to the video session, or
// nil.
func (s *Session) CurrentVideoDevice() Device {
	for _, d := range s.video.Inputs() {
		if d.MediaType() == media.MediaTypeVideo {
			return d
		}
	}
	return nil
}

// SetCurrentVideoDevice switches camera in a single configuration change
// of the video session. Front cameras record mirrored. A nil device only
// removes the current camera.
func (s *Session) SetCurrentVideoDevice(d Device) error {
	s.video.BeginConfiguration()
	defer s.video.CommitConfiguration()

	if current := s.CurrentVideoDevice(); current != nil {
		s.video.RemoveInput(current)
	}
	if d == nil {
		return nil
	}

	if err := d.Configure(settingsFor(d)); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.SetCurrentVideoDevice",
			"device":   d.ID(),
			"error":    err.Error(),
		}).Warn("Couldn't configure video device")
	}
	if err := s.video.AddInput(d); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.SetCurrentVideoDevice",
			"device":   d.ID(),
			"error":    err.Error(),
		}).Error("Failed to add camera")
		return fmt.Errorf("add camera %s: %w", d.ID(), err)
	}

	mirrored := d.Position() == PositionFront
	s.pipeline.SetMirrored(mirrored)

	logrus.WithFields(logrus.Fields{
		"function": "Session.SetCurrentVideoDevice",
		"device":   d.ID(),
		"position": d.Position().String(),
		"mirrored": mirrored,
	}).Info("Video device switched")

	events.Publish(s.bus, events.VideoDeviceChanged{
		DeviceID:  d.ID(),
		Position:  d.Position().String(),
		Mirrored:  mirrored,
		Timestamp: s.clock.Now(),
	})
	return nil
}

// Prepare selects a camera and readies the recording session and photo
// output.
func (s *Session) Prepare() error {
	d := s.CurrentVideoDevice()
	if d == nil {
		devices := s.VideoDevices()
		if len(devices) == 0 {
			return ErrNoVideoDevice
		}
		d = devices[0]
	}
	if err := s.SetCurrentVideoDevice(d); err != nil {
		return err
	}
	if _, err := s.initializeRecordingSession(notLive); err != nil && !errors.Is(err, ErrAlreadyRecording) {
		return err
	}
	_, err := s.initializePhotoOutput()
	return err
}

// Unprepare releases the prepared recording session unless it is
// recording, and drops the photo output.
func (s *Session) Unprepare() {
	s.mu.Lock()
	var old *recording.Session
	if s.recording != nil && s.recording.State() != recording.StateRecording {
		old = s.recording
		s.recording = nil
	}
	s.photo = nil
	s.mu.Unlock()

	if old != nil {
		old.Cleanup()
	}
}

// Close releases the current recording session. An active recording is
// finished first and Close returns once its movie is complete.
func (s *Session) Close() {
	s.mu.Lock()
	old := s.recording
	s.recording = nil
	s.mu.Unlock()

	if old == nil {
		return
	}
	if old.State() == recording.StateRecording {
		finished := make(chan struct{})
		if s.finish(old, func(err error) {
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Session.Close",
					"session":  old.ID(),
					"error":    err.Error(),
				}).Warn("Recording finished with error on close")
			}
			close(finished)
		}) {
			<-finished
		}
	}
	old.Cleanup()
}

// OutputPath returns the movie path of the current recording session.
func (s *Session) OutputPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording == nil {
		return ""
	}
	return s.recording.Path()
}

// IsRecording reports whether the current recording session is recording.
func (s *Session) IsRecording() bool {
	s.mu.Lock()
	rs := s.recording
	s.mu.Unlock()
	return rs != nil && rs.State() == recording.StateRecording
}

// StartRecording takes over the audio route if configured to, starts the
// audio session and starts a recording session, creating one if none is
// prepared.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	rs := s.recording
	audioEnabled := s.audioEnabled
	manageRoute := s.manageAudioRoute
	orientation := s.orientation
	s.mu.Unlock()

	if rs != nil {
		switch rs.State() {
		case recording.StateRecording, recording.StateFinishing:
			return ErrAlreadyRecording
		case recording.StateFinished:
			rs = nil
		}
	}

	if audioEnabled {
		if manageRoute {
			if err := routeForRecording(s.route); err != nil {
				return fmt.Errorf("configure audio route: %w", err)
			}
		}
		s.audio.StartRunning()
	}

	if rs == nil {
		var err error
		if rs, err = s.initializeRecordingSession(notLive); err != nil {
			return err
		}
	}
	if err := rs.Start(orientation); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Session.StartRecording",
		"session":  rs.ID(),
		"path":     rs.Path(),
		"audio":    audioEnabled,
	}).Info("Recording started")
	return nil
}

// StopRecording finishes the current recording and releases the audio
// route. done is called once the movie is complete; a fresh recording
// session is prepared afterwards unless one was started from done.
func (s *Session) StopRecording(done func(error)) {
	s.mu.Lock()
	rs := s.recording
	s.mu.Unlock()

	if rs == nil {
		if done != nil {
			done(ErrNotRecording)
		}
		return
	}
	s.finish(rs, func(err error) {
		if done != nil {
			done(err)
		}
		// Completion runs on the finished session's queue.
		go s.prepareNext(rs)
	})
}

// finish hands the audio route back and finishes rs. It reports whether
// done will be called with the outcome; a rejected finish passes its error
// to done at once and reports false. Audio stops first so a recording
// started from done keeps its microphone.
func (s *Session) finish(rs *recording.Session, done func(error)) bool {
	s.mu.Lock()
	audioEnabled := s.audioEnabled
	manageRoute := s.manageAudioRoute
	s.mu.Unlock()

	if audioEnabled {
		s.audio.StopRunning()
		if manageRoute {
			if err := releaseRoute(s.route); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Session.finish",
					"error":    err.Error(),
				}).Warn("Error switching audio")
			}
		}
	}

	if err := rs.Finish(done); err != nil {
		if done != nil {
			done(err)
		}
		return false
	}
	return true
}

// prepareNext readies the session that follows finished. It leaves the
// current session alone once anything replaced finished.
func (s *Session) prepareNext(finished *recording.Session) {
	_, err := s.initializeRecordingSession(func(current *recording.Session) bool {
		return current == finished
	})
	if err != nil && !errors.Is(err, errSuperseded) {
		logrus.WithFields(logrus.Fields{
			"function": "Session.prepareNext",
			"error":    err.Error(),
		}).Warn("Failed to prepare next recording session")
	}
}

// Snapshot renders the last video frame of the current recording session.
func (s *Session) Snapshot() (*image.RGBA, bool) {
	s.mu.Lock()
	rs := s.recording
	s.mu.Unlock()
	if rs == nil {
		return nil, false
	}
	return rs.Snapshot()
}

// TakePhoto takes a photo on the video session.
func (s *Session) TakePhoto(done func(image.Image, error)) {
	s.mu.Lock()
	photo := s.photo
	s.mu.Unlock()

	if photo == nil {
		var err error
		if photo, err = s.initializePhotoOutput(); err != nil {
			if done != nil {
				done(nil, err)
			}
			return
		}
	}
	photo.TakePhoto(done)
}

// notLive accepts replacing any session that is not recording or
// finishing.
func notLive(current *recording.Session) bool {
	if current == nil {
		return true
	}
	switch current.State() {
	case recording.StateRecording, recording.StateFinishing:
		return false
	}
	return true
}

// initializeRecordingSession creates a recording session writing to a new
// temporary file and installs it if replace accepts the current session.
// The replaced session is cleaned up; a refused new one is discarded.
func (s *Session) initializeRecordingSession(replace func(current *recording.Session) bool) (*recording.Session, error) {
	path := filepath.Join(s.dir, uuid.NewString()+".mp4")
	w, err := s.newWriter(path)
	if err != nil {
		return nil, err
	}

	sources := []recording.Source{s.video}
	if s.AudioEnabled() {
		sources = append([]recording.Source{s.audio}, sources...)
	}
	rs, err := recording.New(w, s.pipeline, sources, recording.Options{
		AudioFormat: s.format,
		Bus:         s.bus,
		Clock:       s.clock,
	})
	if err != nil {
		return nil, err
	}
	if d := s.CurrentVideoDevice(); d != nil {
		rs.SetMirrored(d.Position() == PositionFront)
	}

	s.mu.Lock()
	old := s.recording
	installed := replace(old) && notLive(old)
	if installed {
		s.recording = rs
	}
	s.mu.Unlock()

	if !installed {
		rs.Cleanup()
		discardUnused(w)
		logrus.WithFields(logrus.Fields{
			"function": "Session.initializeRecordingSession",
			"session":  rs.ID(),
		}).Debug("Current recording session kept, new one discarded")
		if notLive(old) {
			return nil, errSuperseded
		}
		return nil, ErrAlreadyRecording
	}
	if old != nil {
		old.Cleanup()
	}
	return rs, nil
}

// discardUnused closes and removes the file of a writer that never started.
func discardUnused(w container.Writer) {
	if w.Status() != container.StatusUnknown {
		return
	}
	w.FinishWriting(nil)
	if err := os.Remove(w.Path()); err != nil && !os.IsNotExist(err) {
		logrus.WithFields(logrus.Fields{
			"function": "discardUnused",
			"path":     w.Path(),
			"error":    err.Error(),
		}).Debug("Failed to remove unused movie file")
	}
}

func (s *Session) initializePhotoOutput() (*PhotoOutput, error) {
	path := filepath.Join(s.dir, uuid.NewString()+".jpg")
	photo, err := NewPhotoOutput(s.video, s.pipeline, path, s.bus)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	photo.SetFlashMode(s.flashMode)
	s.photo = photo
	s.mu.Unlock()
	return photo, nil
}

// LastSampleAge is how long ago the current recording session processed a
// sample, or zero when it has none.
func (s *Session) LastSampleAge() time.Duration {
	s.mu.Lock()
	rs := s.recording
	s.mu.Unlock()
	if rs == nil || rs.LastSampleAt().IsZero() {
		return 0
	}
	return s.clock.Since(rs.LastSampleAt())
}
