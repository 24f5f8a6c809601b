package recording

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/videopipeline/container/containertest"
	"github.com/opd-ai/videopipeline/events"
	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
	"github.com/opd-ai/videopipeline/render"
)

// fakeSource is a capture source recording attached outputs.
type fakeSource struct {
	mu      sync.Mutex
	types   []media.MediaType
	refuse  bool
	outputs []*DataOutput
	removed int
}

func (f *fakeSource) MediaTypes() []media.MediaType { return f.types }

func (f *fakeSource) CanAddOutput(*DataOutput) bool { return !f.refuse }

func (f *fakeSource) AddOutput(o *DataOutput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, o)
}

func (f *fakeSource) RemoveOutput(*DataOutput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed++
}

func (f *fakeSource) output(mt media.MediaType) *DataOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.outputs {
		if o.MediaType == mt {
			return o
		}
	}
	return nil
}

type fixture struct {
	session *Session
	writer  *containertest.Writer
	video   *fakeSource
	audio   *fakeSource
}

func newFixture(t *testing.T, bus *events.Bus) *fixture {
	t.Helper()
	pipeline, err := render.New(render.NewContext(), image.Pt(16, 16))
	require.NoError(t, err)

	f := &fixture{
		writer: containertest.NewWriter("/tmp/rec.mp4"),
		video:  &fakeSource{types: []media.MediaType{media.MediaTypeVideo}},
		audio:  &fakeSource{types: []media.MediaType{media.MediaTypeAudio}},
	}
	f.session, err = New(f.writer, pipeline, []Source{f.video, f.audio}, Options{Bus: bus})
	require.NoError(t, err)
	t.Cleanup(f.session.Cleanup)
	return f
}

func videoSample(pts int64) media.SampleBuffer {
	return media.NewVideoSample(media.NewPixelBuffer(32, 32), media.NewTime(pts, 600))
}

func audioSample(pts int64) media.SampleBuffer {
	return media.NewAudioSample(&media.AudioBuffer{
		Format:      media.DefaultAudioFormat,
		Data:        make([]byte, 960),
		SampleCount: 480,
	}, media.NewTime(pts, 600))
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		legal    bool
	}{
		{StateReady, StateRecording, true},
		{StateRecording, StateFinishing, true},
		{StateFinishing, StateFinished, true},
		{StateReady, StateFinishing, false},
		{StateReady, StateFinished, false},
		{StateRecording, StateReady, false},
		{StateFinished, StateReady, false},
		{StateFinished, StateRecording, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.legal, tt.from.CanTransition(tt.to))
		})
	}

	assert.True(t, StateReady.AcceptsSamples())
	assert.True(t, StateRecording.AcceptsSamples())
	assert.False(t, StateFinishing.AcceptsSamples())
	assert.False(t, StateFinished.AcceptsSamples())
	assert.Equal(t, "state(7)", State(7).String())
}

func TestNewWiresOutputs(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, StateReady, f.session.State())
	require.NotNil(t, f.video.output(media.MediaTypeVideo))
	require.NotNil(t, f.audio.output(media.MediaTypeAudio))
	assert.NotEmpty(t, f.session.ID())
	assert.Equal(t, "/tmp/rec.mp4", f.session.Path())
}

func TestNewPanicsWhenSourceRefusesOutput(t *testing.T) {
	pipeline, err := render.New(nil, image.Pt(8, 8))
	require.NoError(t, err)
	src := &fakeSource{types: []media.MediaType{media.MediaTypeVideo}, refuse: true}

	assert.Panics(t, func() {
		_, _ = New(containertest.NewWriter("x.mp4"), pipeline, []Source{src}, Options{})
	})
}

func TestFinishFromReadyIsRejected(t *testing.T) {
	f := newFixture(t, nil)

	err := f.session.Finish(func(error) { t.Fatal("completion must not run") })
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateReady, f.session.State())
	assert.Equal(t, 0, f.writer.FinishedCalls)
	assert.False(t, f.writer.Started)
}

func TestStartOutsideReadyPanics(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start(geom.Identity))
	assert.Panics(t, func() { _ = f.session.Start(geom.Identity) })
	assert.Equal(t, StateRecording, f.session.State())
}

func TestReadySessionAcceptsSamples(t *testing.T) {
	f := newFixture(t, nil)

	_, ok := f.session.Snapshot()
	assert.False(t, ok, "no snapshot before video")

	require.True(t, f.video.output(media.MediaTypeVideo).Deliver(videoSample(0)))
	require.NoError(t, f.session.Flush())

	img, ok := f.session.Snapshot()
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
	assert.False(t, f.session.LastSampleAt().IsZero())
	assert.Empty(t, f.writer.Inputs, "nothing written before start")
}

func TestRecordingLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	video := f.video.output(media.MediaTypeVideo)
	audio := f.audio.output(media.MediaTypeAudio)

	require.NoError(t, f.session.Start(geom.Identity))
	assert.Equal(t, StateRecording, f.session.State())

	for i := int64(0); i < 5; i++ {
		require.True(t, audio.Deliver(audioSample(i*10)))
		require.True(t, video.Deliver(videoSample(i*20)))
	}

	finished := make(chan State, 1)
	require.NoError(t, f.session.Finish(func(err error) {
		assert.NoError(t, err)
		finished <- f.session.State()
	}))

	select {
	case state := <-finished:
		assert.Equal(t, StateFinished, state)
	case <-time.After(5 * time.Second):
		t.Fatal("finish did not complete")
	}

	assert.Len(t, f.writer.Input(media.MediaTypeAudio).Appended(), 5, "samples queued before finish are written")
	assert.Len(t, f.writer.Input(media.MediaTypeVideo).Appended(), 5)
	assert.Equal(t, 1, f.writer.FinishedCalls)

	assert.False(t, video.Deliver(videoSample(500)))
	require.NoError(t, f.session.Flush())
	assert.Len(t, f.writer.Input(media.MediaTypeVideo).Appended(), 5, "samples after finish are discarded")

	assert.ErrorIs(t, f.session.Finish(nil), ErrInvalidTransition)
}

func TestCleanupIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.session.Cleanup()
	f.session.Cleanup()

	assert.Equal(t, 1, f.video.removed)
	assert.Equal(t, 1, f.audio.removed)
	assert.False(t, f.video.output(media.MediaTypeVideo).Deliver(videoSample(0)), "closed queue drops samples")
}

func TestFinishAfterCleanupCompletesMovie(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start(geom.Identity))
	require.True(t, f.video.output(media.MediaTypeVideo).Deliver(videoSample(0)))
	f.session.Cleanup()

	finished := make(chan error, 1)
	require.NoError(t, f.session.Finish(func(err error) { finished <- err }))

	select {
	case err := <-finished:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("finish after cleanup never completed")
	}
	assert.Equal(t, StateFinished, f.session.State())
	assert.Equal(t, 1, f.writer.FinishCount())
	assert.Len(t, f.writer.Input(media.MediaTypeVideo).Appended(), 1, "queued sample drained before finish")
}

func TestCleanupFromFinishCompletion(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start(geom.Identity))

	returned := make(chan struct{})
	require.NoError(t, f.session.Finish(func(error) {
		f.session.Cleanup()
		close(returned)
	}))

	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("cleanup inside completion deadlocked")
	}
	assert.Equal(t, 1, f.video.removed)
}

func TestSetMirroredDrivesPipeline(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetMirrored(true)
	assert.True(t, f.session.Pipeline().Mirrored())
}

func TestStateChangesArePublished(t *testing.T) {
	bus := events.New()
	var mu sync.Mutex
	var seen []string
	defer events.Subscribe(bus, func(e events.RecordingStateChanged) {
		mu.Lock()
		seen = append(seen, e.To)
		mu.Unlock()
	})()

	f := newFixture(t, bus)
	require.NoError(t, f.session.Start(geom.Identity))
	done := make(chan struct{})
	require.NoError(t, f.session.Finish(func(error) { close(done) }))
	<-done

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.ElementsMatch(t, []string{"recording", "finishing", "finished"}, seen)
	mu.Unlock()
}

func TestSerialQueue(t *testing.T) {
	q := NewSerialQueue(2)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, q.Async(func() { order = append(order, i) }))
	}
	require.NoError(t, q.Sync(func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)

	block := make(chan struct{})
	running := make(chan struct{})
	require.True(t, q.TryAsync(func() {
		close(running)
		<-block
	}))
	<-running
	assert.True(t, q.TryAsync(func() {}))
	assert.True(t, q.TryAsync(func() {}))
	assert.False(t, q.TryAsync(func() {}), "full queue drops")
	close(block)

	q.Close()
	q.Close()
	assert.False(t, q.TryAsync(func() {}))
	assert.ErrorIs(t, q.Async(func() {}), ErrQueueClosed)
}

func TestSerialQueueShutdownFromTask(t *testing.T) {
	q := NewSerialQueue(4)

	var ran []int
	require.NoError(t, q.Async(func() {
		q.Shutdown()
		ran = append(ran, 0)
	}))
	assert.Eventually(t, func() bool {
		select {
		case <-q.Done():
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{0}, ran)
	assert.ErrorIs(t, q.Async(func() {}), ErrQueueClosed)
}
