// Package containertest provides an in-memory container.Writer for tests.
package containertest

import (
	"sync"

	"github.com/opd-ai/videopipeline/container"
	"github.com/opd-ai/videopipeline/media"
)

// Appended is one sample recorded by a fake input.
type Appended struct {
	MediaType media.MediaType
	PTS       media.Time
	Pixels    *media.PixelBuffer
	Audio     *media.AudioBuffer
}

// Writer records every call made to it.
type Writer struct {
	mu sync.Mutex

	// Refuse makes CanAdd report false for every track.
	Refuse bool
	// StartErr is returned by StartWriting.
	StartErr error
	// FinishErr is passed to the FinishWriting callback.
	FinishErr error

	PathValue     string
	Inputs        []*Input
	Started       bool
	Sessions      []media.Time
	FinishedCalls int
	status        container.Status
}

// NewWriter creates a fake writer reporting path.
func NewWriter(path string) *Writer {
	return &Writer{PathValue: path}
}

// Path returns PathValue.
func (w *Writer) Path() string { return w.PathValue }

// Status returns the fake writer state.
func (w *Writer) Status() container.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// CanAdd reports !Refuse.
func (w *Writer) CanAdd(container.TrackSpec) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.Refuse && !w.Started
}

// AddInput records a new ready input.
func (w *Writer) AddInput(spec container.TrackSpec) (container.Input, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Started {
		return nil, container.ErrAlreadyStarted
	}
	in := &Input{spec: spec, ready: true}
	w.Inputs = append(w.Inputs, in)
	return in, nil
}

// StartWriting marks the writer started unless StartErr is set.
func (w *Writer) StartWriting() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.StartErr != nil {
		w.status = container.StatusFailed
		return w.StartErr
	}
	w.Started = true
	w.status = container.StatusWriting
	return nil
}

// StartSession records at.
func (w *Writer) StartSession(at media.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Sessions = append(w.Sessions, at)
}

// FinishWriting calls done with FinishErr.
func (w *Writer) FinishWriting(done func(error)) {
	w.mu.Lock()
	w.FinishedCalls++
	err := w.FinishErr
	if err == nil {
		w.status = container.StatusCompleted
	} else {
		w.status = container.StatusFailed
	}
	w.mu.Unlock()

	if done != nil {
		done(err)
	}
}

// FinishCount returns FinishedCalls under the writer lock.
func (w *Writer) FinishCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.FinishedCalls
}

// Input returns the first input of the given media type, or nil.
func (w *Writer) Input(mt media.MediaType) *Input {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, in := range w.Inputs {
		if in.spec.MediaType == mt {
			return in
		}
	}
	return nil
}

// Input is a fake track.
type Input struct {
	mu       sync.Mutex
	spec     container.TrackSpec
	ready    bool
	appended []Appended
}

// Spec returns the track description.
func (in *Input) Spec() container.TrackSpec { return in.spec }

// SetReady controls IsReadyForMoreMediaData.
func (in *Input) SetReady(ready bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.ready = ready
}

// IsReadyForMoreMediaData returns the value set with SetReady.
func (in *Input) IsReadyForMoreMediaData() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.ready
}

// AppendSample records s.
func (in *Input) AppendSample(s media.SampleBuffer) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.appended = append(in.appended, Appended{MediaType: s.MediaType, PTS: s.PTS, Pixels: s.Pixels, Audio: s.Audio})
	return nil
}

// AppendPixelBuffer records a copy of pb.
func (in *Input) AppendPixelBuffer(pb *media.PixelBuffer, pts media.Time) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.appended = append(in.appended, Appended{MediaType: media.MediaTypeVideo, PTS: pts, Pixels: pb.Clone()})
	return nil
}

// Appended returns the recorded samples.
func (in *Input) Appended() []Appended {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Appended(nil), in.appended...)
}
