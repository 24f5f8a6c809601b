// Package playback drives a render pipeline from a playing item.
//
// A DisplayLink fires once per display refresh, asks the item's video
// output for the frame due at the next refresh and, when a new one is
// available, renders it through the pipeline. Refreshes that arrive while a
// frame is still being rendered are skipped.
package playback

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/videopipeline/media"
	"github.com/opd-ai/videopipeline/render"
)

// DefaultRefreshInterval is a 60 Hz display.
const DefaultRefreshInterval = time.Second / 60

// VideoOutput vends the decoded frames of a playing item.
type VideoOutput interface {
	// ItemTime maps a host clock time to the item's timeline.
	ItemTime(host time.Time) media.Time
	// HasNewPixelBuffer reports whether the frame at t differs from the
	// last one copied.
	HasNewPixelBuffer(t media.Time) bool
	// CopyPixelBuffer returns the frame displayed at t.
	CopyPixelBuffer(t media.Time) (*media.PixelBuffer, bool)
}

// Delegate is told about each frame before it is rendered.
type Delegate interface {
	WillRender(frame image.Image, pipeline *render.Pipeline)
}

// DelegateFunc adapts a function to Delegate.
type DelegateFunc func(frame image.Image, pipeline *render.Pipeline)

// WillRender calls f.
func (f DelegateFunc) WillRender(frame image.Image, pipeline *render.Pipeline) { f(frame, pipeline) }

// Option configures a DisplayLink.
type Option func(*DisplayLink)

// WithRefreshInterval sets the time between refreshes.
func WithRefreshInterval(d time.Duration) Option {
	return func(l *DisplayLink) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithTimeProvider sets the host clock.
func WithTimeProvider(tp media.TimeProvider) Option {
	return func(l *DisplayLink) {
		if tp != nil {
			l.clock = tp
		}
	}
}

// DisplayLink pulls frames from a VideoOutput into a render pipeline.
type DisplayLink struct {
	output   VideoOutput
	pipeline *render.Pipeline
	interval time.Duration
	clock    media.TimeProvider

	mu       sync.Mutex
	delegate Delegate
	stop     chan struct{}
	done     chan struct{}

	busy atomic.Bool
}

// NewDisplayLink creates a stopped display link.
func NewDisplayLink(output VideoOutput, pipeline *render.Pipeline, opts ...Option) *DisplayLink {
	l := &DisplayLink{
		output:   output,
		pipeline: pipeline,
		interval: DefaultRefreshInterval,
		clock:    media.DefaultTimeProvider{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetDelegate sets the delegate told about every rendered frame.
func (l *DisplayLink) SetDelegate(d Delegate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delegate = d
}

// Running reports whether the refresh loop is active.
func (l *DisplayLink) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stop != nil
}

// Start begins refreshing. Starting a running link does nothing.
func (l *DisplayLink) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(l.stop, l.done)

	logrus.WithFields(logrus.Fields{
		"function": "DisplayLink.Start",
		"pipeline": l.pipeline.Name(),
		"interval": l.interval,
	}).Debug("Display link started")
}

// End stops refreshing and waits for the loop to exit.
func (l *DisplayLink) End() {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done

	logrus.WithFields(logrus.Fields{
		"function": "DisplayLink.End",
		"pipeline": l.pipeline.Name(),
	}).Debug("Display link ended")
}

func (l *DisplayLink) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Tick(l.clock.Now())
		}
	}
}

// Tick handles one refresh at host time now and reports whether a frame
// was rendered. A tick arriving while another is in progress is skipped.
func (l *DisplayLink) Tick(now time.Time) bool {
	if !l.busy.CompareAndSwap(false, true) {
		return false
	}
	defer l.busy.Store(false)

	t := l.output.ItemTime(now.Add(l.interval))
	if !l.output.HasNewPixelBuffer(t) {
		return false
	}
	pb, ok := l.output.CopyPixelBuffer(t)
	if !ok || pb == nil {
		return false
	}

	frame := pb.Image()
	l.mu.Lock()
	delegate := l.delegate
	l.mu.Unlock()
	if delegate != nil {
		delegate.WillRender(frame, l.pipeline)
	}
	return l.pipeline.Render(frame)
}
