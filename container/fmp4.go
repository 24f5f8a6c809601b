package container

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
)

const (
	// VideoTimescale is the timescale of video tracks.
	VideoTimescale = 90000
	// OpusTimescale is the fixed timescale of Opus tracks in MP4.
	OpusTimescale = 48000

	// DefaultFragmentDuration is how much media is buffered per fragment.
	DefaultFragmentDuration = time.Second
	// DefaultQuality is the JPEG quality of video samples.
	DefaultQuality = 85
	// DefaultMaxPendingSamples bounds each track's buffer; a full track
	// reports it is not ready for more data.
	DefaultMaxPendingSamples = 512

	defaultFrameDuration = VideoTimescale / 30
)

// FMP4Options configures an FMP4Writer.
type FMP4Options struct {
	// Quality is the JPEG quality (1-100) of video samples.
	Quality int
	// FragmentDuration is the buffered duration that triggers a flush.
	FragmentDuration time.Duration
	// MaxPendingSamples bounds the samples buffered per track.
	MaxPendingSamples int
}

func (o FMP4Options) withDefaults() FMP4Options {
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	if o.FragmentDuration <= 0 {
		o.FragmentDuration = DefaultFragmentDuration
	}
	if o.MaxPendingSamples <= 0 {
		o.MaxPendingSamples = DefaultMaxPendingSamples
	}
	return o
}

// FMP4Writer writes a fragmented MP4 file with MJPEG video and LPCM or
// Opus audio. Video track display transforms go into the track header
// matrix.
type FMP4Writer struct {
	path string
	opts FMP4Options

	mu           sync.Mutex
	file         *os.File
	status       Status
	tracks       []*fmp4Track
	sessionStart media.Time
	sequence     uint32
}

// NewFMP4Writer creates the output file at path.
func NewFMP4Writer(path string, opts FMP4Options) (*FMP4Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewFMP4Writer",
			"path":     path,
			"error":    err.Error(),
		}).Error("Failed to create movie file")
		return nil, fmt.Errorf("%w: %v", ErrWriterOpen, err)
	}

	return &FMP4Writer{
		path:         path,
		opts:         opts.withDefaults(),
		file:         f,
		sessionStart: media.InvalidTime,
	}, nil
}

// Path returns the output file path.
func (w *FMP4Writer) Path() string { return w.path }

// Status returns the writer state.
func (w *FMP4Writer) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// CanAdd reports whether spec describes a track this writer can carry and
// writing has not started.
func (w *FMP4Writer) CanAdd(spec TrackSpec) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != StatusUnknown {
		return false
	}
	_, _, err := codecFor(spec)
	return err == nil
}

// AddInput adds a track.
func (w *FMP4Writer) AddInput(spec TrackSpec) (Input, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != StatusUnknown {
		return nil, ErrAlreadyStarted
	}
	codec, timescale, err := codecFor(spec)
	if err != nil {
		return nil, err
	}

	t := &fmp4Track{
		w:         w,
		id:        len(w.tracks) + 1,
		spec:      spec,
		codec:     codec,
		timescale: timescale,
	}
	w.tracks = append(w.tracks, t)

	logrus.WithFields(logrus.Fields{
		"function":   "FMP4Writer.AddInput",
		"track_id":   t.id,
		"media_type": spec.MediaType.String(),
		"timescale":  timescale,
	}).Debug("Track added")

	return t, nil
}

func codecFor(spec TrackSpec) (fmp4.Codec, uint32, error) {
	switch spec.MediaType {
	case media.MediaTypeVideo:
		if spec.Width <= 0 || spec.Height <= 0 {
			return nil, 0, fmt.Errorf("%w: video size %dx%d", ErrUnsupportedTrack, spec.Width, spec.Height)
		}
		return &fmp4.CodecMJPEG{Width: spec.Width, Height: spec.Height}, VideoTimescale, nil

	case media.MediaTypeAudio:
		f := spec.Audio
		switch f.Codec {
		case media.AudioCodecLPCM:
			if f.SampleRate <= 0 || f.Channels <= 0 || f.BitDepth != 16 {
				return nil, 0, fmt.Errorf("%w: lpcm %s %d-bit", ErrUnsupportedTrack, f, f.BitDepth)
			}
			return &fmp4.CodecLPCM{
				LittleEndian: true,
				BitDepth:     f.BitDepth,
				SampleRate:   f.SampleRate,
				ChannelCount: f.Channels,
			}, uint32(f.SampleRate), nil

		case media.AudioCodecOpus:
			channels := f.Channels
			if len(spec.OpusHeader) > 0 {
				info, err := media.ReadOpusInfo(spec.OpusHeader)
				if err != nil {
					return nil, 0, fmt.Errorf("%w: %v", ErrUnsupportedTrack, err)
				}
				channels = info.Channels
			}
			if channels <= 0 {
				return nil, 0, fmt.Errorf("%w: opus without channel count", ErrUnsupportedTrack)
			}
			return &fmp4.CodecOpus{ChannelCount: channels}, OpusTimescale, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedTrack, spec.MediaType)
}

// StartWriting writes the file header describing every added track.
func (w *FMP4Writer) StartWriting() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != StatusUnknown {
		return ErrAlreadyStarted
	}
	if len(w.tracks) == 0 {
		return fmt.Errorf("%w: no tracks", ErrUnsupportedTrack)
	}

	header := fmp4.Init{}
	matrices := map[uint32][9]int32{}
	for _, t := range w.tracks {
		header.Tracks = append(header.Tracks, &fmp4.InitTrack{
			ID:        t.id,
			TimeScale: t.timescale,
			Codec:     t.codec,
		})
		if t.spec.MediaType == media.MediaTypeVideo && t.spec.Transform != (geom.Transform{}) && !t.spec.Transform.IsIdentity() {
			matrices[uint32(t.id)] = displayMatrix(t.spec.Transform)
		}
	}

	var buf seekablebuffer.Buffer
	if err := header.Marshal(&buf); err != nil {
		return w.failLocked(err)
	}
	init := buf.Bytes()
	if len(matrices) > 0 {
		var err error
		if init, err = setTrackMatrices(init, matrices); err != nil {
			return w.failLocked(err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "FMP4Writer.StartWriting",
			"tracks":   len(matrices),
		}).Debug("Display transforms written")
	}
	if _, err := w.file.Write(init); err != nil {
		return w.failLocked(err)
	}

	w.status = StatusWriting

	logrus.WithFields(logrus.Fields{
		"function": "FMP4Writer.StartWriting",
		"path":     w.path,
		"tracks":   len(w.tracks),
	}).Info("Movie writing started")

	return nil
}

// StartSession sets the timestamp mapped to time zero.
func (w *FMP4Writer) StartSession(at media.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessionStart = at
}

// FinishWriting flushes every buffered sample, closes the file and calls
// done before returning.
func (w *FMP4Writer) FinishWriting(done func(error)) {
	err := w.finish()
	if done != nil {
		done(err)
	}
}

func (w *FMP4Writer) finish() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != StatusWriting {
		if w.status == StatusUnknown {
			w.file.Close()
		}
		return ErrNotWriting
	}

	if err := w.flushLocked(true); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Close(); err != nil {
		return w.failLocked(err)
	}

	w.status = StatusCompleted
	logrus.WithFields(logrus.Fields{
		"function":  "FMP4Writer.FinishWriting",
		"path":      w.path,
		"fragments": w.sequence,
	}).Info("Movie writing finished")
	return nil
}

func (w *FMP4Writer) failLocked(err error) error {
	w.status = StatusFailed
	logrus.WithFields(logrus.Fields{
		"function": "FMP4Writer",
		"path":     w.path,
		"error":    err.Error(),
	}).Error("Movie write failed")
	return fmt.Errorf("%w: %v", ErrWriterOpen, err)
}

// flushLocked writes one fragment with every sample whose duration is
// known. When final is set, the last video sample of each track gets the
// previous frame duration.
func (w *FMP4Writer) flushLocked(final bool) error {
	part := fmp4.Part{SequenceNumber: w.sequence + 1}

	for _, t := range w.tracks {
		n := len(t.pending)
		if n == 0 {
			continue
		}
		if final && t.pending[n-1].duration == 0 {
			t.pending[n-1].duration = t.lastDuration
			if t.pending[n-1].duration == 0 {
				t.pending[n-1].duration = defaultFrameDuration
			}
		}

		ready := 0
		for ready < n && t.pending[ready].duration > 0 {
			ready++
		}
		if ready == 0 {
			continue
		}

		pt := &fmp4.PartTrack{ID: t.id, BaseTime: uint64(t.pending[0].dts)}
		for _, s := range t.pending[:ready] {
			pt.Samples = append(pt.Samples, &fmp4.PartSample{
				Duration: s.duration,
				Payload:  s.payload,
			})
		}
		part.Tracks = append(part.Tracks, pt)
		t.pending = append(t.pending[:0], t.pending[ready:]...)
	}

	if len(part.Tracks) == 0 {
		return nil
	}

	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return w.failLocked(err)
	}
	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return w.failLocked(err)
	}
	w.sequence++

	logrus.WithFields(logrus.Fields{
		"function": "FMP4Writer.flush",
		"sequence": w.sequence,
		"tracks":   len(part.Tracks),
		"bytes":    len(buf.Bytes()),
	}).Debug("Fragment written")

	return nil
}

// pendingSample is a sample waiting for its fragment. A zero duration
// means the next sample's timestamp is still unknown.
type pendingSample struct {
	dts      int64
	duration uint32
	payload  []byte
}

type fmp4Track struct {
	w         *FMP4Writer
	id        int
	spec      TrackSpec
	codec     fmp4.Codec
	timescale uint32

	pending      []pendingSample
	lastDuration uint32
	nextDTS      int64
	started      bool

	opusOnce sync.Once
}

func (t *fmp4Track) Spec() TrackSpec { return t.spec }

func (t *fmp4Track) IsReadyForMoreMediaData() bool {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	return t.w.status == StatusWriting && len(t.pending) < t.w.opts.MaxPendingSamples
}

func (t *fmp4Track) AppendSample(s media.SampleBuffer) error {
	if s.MediaType != t.spec.MediaType {
		return fmt.Errorf("%w: %s sample on %s track", ErrSampleMismatch, s.MediaType, t.spec.MediaType)
	}
	if s.MediaType == media.MediaTypeVideo {
		if s.Pixels == nil {
			return fmt.Errorf("%w: video sample without pixels", ErrSampleMismatch)
		}
		return t.AppendPixelBuffer(s.Pixels, s.PTS)
	}
	if s.Audio == nil {
		return fmt.Errorf("%w: audio sample without data", ErrSampleMismatch)
	}
	if opus, ok := t.codec.(*fmp4.CodecOpus); ok {
		t.opusOnce.Do(func() { t.checkOpusLayout(opus, s.Audio.Data) })
	}

	duration := t.audioDuration(s)
	return t.append(s.PTS, s.Audio.Data, duration)
}

// checkOpusLayout compares the first packet of an Opus track with the
// channel count written in the file header.
func (t *fmp4Track) checkOpusLayout(codec *fmp4.CodecOpus, packet []byte) {
	info, err := media.ReadOpusInfo(packet)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "fmp4Track.AppendSample",
			"track_id": t.id,
			"error":    err.Error(),
		}).Debug("First Opus packet not decodable")
		return
	}
	if info.Channels != codec.ChannelCount {
		logrus.WithFields(logrus.Fields{
			"function": "fmp4Track.AppendSample",
			"track_id": t.id,
			"header":   codec.ChannelCount,
			"stream":   info.Channels,
		}).Warn("Opus stream channel count differs from track header")
	}
}

func (t *fmp4Track) audioDuration(s media.SampleBuffer) uint32 {
	if ab := s.Audio; ab.SampleCount > 0 && ab.Format.SampleRate > 0 {
		return uint32(int64(ab.SampleCount) * int64(t.timescale) / int64(ab.Format.SampleRate))
	}
	if s.Duration.IsValid() {
		return uint32(s.Duration.ConvertScale(int32(t.timescale)).Value)
	}
	return 0
}

func (t *fmp4Track) AppendPixelBuffer(pb *media.PixelBuffer, pts media.Time) error {
	if t.spec.MediaType != media.MediaTypeVideo {
		return fmt.Errorf("%w: pixels on %s track", ErrSampleMismatch, t.spec.MediaType)
	}
	if err := pb.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSampleMismatch, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, pb.Image(), &jpeg.Options{Quality: t.w.opts.Quality}); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return t.append(pts, buf.Bytes(), 0)
}

// append buffers one payload. A zero duration is filled in from the next
// sample's timestamp.
func (t *fmp4Track) append(pts media.Time, payload []byte, duration uint32) error {
	w := t.w
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != StatusWriting || !w.sessionStart.IsValid() {
		return ErrNotWriting
	}
	if len(t.pending) >= w.opts.MaxPendingSamples {
		return ErrNotReady
	}

	rel := pts.Sub(w.sessionStart)
	if rel.Value < 0 {
		logrus.WithFields(logrus.Fields{
			"function": "fmp4Track.append",
			"track_id": t.id,
			"pts":      pts.String(),
		}).Debug("Sample before session start discarded")
		return nil
	}
	dts := rel.ConvertScale(int32(t.timescale)).Value

	if n := len(t.pending); n > 0 && t.pending[n-1].duration == 0 {
		prev := &t.pending[n-1]
		if dts <= prev.dts {
			logrus.WithFields(logrus.Fields{
				"function": "fmp4Track.append",
				"track_id": t.id,
				"pts":      pts.String(),
			}).Debug("Non-increasing timestamp discarded")
			return nil
		}
		prev.duration = uint32(dts - prev.dts)
		t.lastDuration = prev.duration
	} else if t.started && dts < t.nextDTS {
		// Keep fragments contiguous when audio packets overlap slightly.
		dts = t.nextDTS
	}

	t.pending = append(t.pending, pendingSample{dts: dts, duration: duration, payload: payload})
	t.started = true
	if duration > 0 {
		t.lastDuration = duration
		t.nextDTS = dts + int64(duration)
	} else {
		t.nextDTS = dts
	}

	if t.bufferedTicks() >= int64(w.opts.FragmentDuration.Seconds()*float64(t.timescale)) {
		return w.flushLocked(false)
	}
	return nil
}

func (t *fmp4Track) bufferedTicks() int64 {
	if len(t.pending) == 0 {
		return 0
	}
	last := t.pending[len(t.pending)-1]
	return last.dts + int64(last.duration) - t.pending[0].dts
}
