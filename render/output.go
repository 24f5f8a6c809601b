package render

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/videopipeline/media"
)

// Output is a presentation surface: anything that accepts a rendered frame.
// Render must not retain img after returning unless it copies it, and must
// not block on presentation.
type Output interface {
	Render(img *image.RGBA, ctx *Context)
}

// OutputFunc adapts a function to the Output interface.
type OutputFunc func(img *image.RGBA, ctx *Context)

// Render calls f.
func (f OutputFunc) Render(img *image.RGBA, ctx *Context) { f(img, ctx) }

// OutputHandle identifies a registered output. The pipeline only keeps the
// output until the handle is removed; it never owns the surface.
type OutputHandle uint64

// OffscreenOutput keeps a copy of the most recent frame so it can be read
// back as an image or a pixel buffer.
type OffscreenOutput struct {
	mu     sync.Mutex
	last   *image.RGBA
	frames uint64
}

// NewOffscreenOutput creates an empty offscreen output.
func NewOffscreenOutput() *OffscreenOutput {
	return &OffscreenOutput{}
}

// Render stores a copy of img.
func (o *OffscreenOutput) Render(img *image.RGBA, _ *Context) {
	cp := &image.RGBA{
		Pix:    append([]uint8(nil), img.Pix...),
		Stride: img.Stride,
		Rect:   img.Rect,
	}

	o.mu.Lock()
	o.last = cp
	o.frames++
	o.mu.Unlock()
}

// Image returns the last rendered frame, or nil.
func (o *OffscreenOutput) Image() *image.RGBA {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Frames returns how many frames were rendered.
func (o *OffscreenOutput) Frames() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frames
}

// PixelBuffer converts the last frame to a new YUV420 buffer. ok is false
// before the first frame.
func (o *OffscreenOutput) PixelBuffer() (pb *media.PixelBuffer, ok bool) {
	img := o.Image()
	if img == nil {
		return nil, false
	}
	return media.PixelBufferFromImage(img), true
}

// Drawable is a surface that presents frames asynchronously, such as a
// layer backed by a GPU swap chain.
type Drawable interface {
	// DrawableSize returns the surface size in pixels.
	DrawableSize() image.Point
	// Present submits img for display and calls done once the surface can
	// accept another frame.
	Present(img *image.RGBA, done func())
}

// SurfaceOutput scales frames to a Drawable's size and presents them. It
// holds its own in-flight gate: while the previous frame is still being
// presented new frames are skipped.
type SurfaceOutput struct {
	surface  Drawable
	inFlight atomic.Bool
}

// NewSurfaceOutput wraps a drawable surface.
func NewSurfaceOutput(surface Drawable) *SurfaceOutput {
	return &SurfaceOutput{surface: surface}
}

// Render aspect-fills img to the drawable and presents it.
func (s *SurfaceOutput) Render(img *image.RGBA, ctx *Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		surfaceFramesDropped.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "SurfaceOutput.Render",
		}).Debug("Surface busy, skipping frame")
		return
	}

	size := s.surface.DrawableSize()
	if size.X <= 0 || size.Y <= 0 {
		s.inFlight.Store(false)
		return
	}

	frame := img
	if img.Bounds() != (image.Rectangle{Max: size}) {
		frame = ctx.Fill(img, size)
	}

	var once sync.Once
	s.surface.Present(frame, func() {
		once.Do(func() { s.inFlight.Store(false) })
	})
}

// Busy reports whether a frame is still being presented.
func (s *SurfaceOutput) Busy() bool {
	return s.inFlight.Load()
}
