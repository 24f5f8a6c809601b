// Package render implements the frame-processing pipeline shared by live
// preview, recording and offline export.
//
// The pipeline:
//
//	Frame → Orientation/Mirror → Aspect-fill → Filters → Overlay → Outputs
//	Frame → Orientation/Mirror → Aspect-fill → Filters → Overlay → Pixel buffer (encode)
package render

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/videopipeline/filter"
	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
)

// Listener is notified when a pipeline's filters change.
type Listener interface {
	FiltersChanged(p *Pipeline)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(p *Pipeline)

// FiltersChanged calls f.
func (f ListenerFunc) FiltersChanged(p *Pipeline) { f(p) }

// state is the part of a pipeline read on every frame. Render paths work
// on a copy taken under the read lock so a concurrent setter never tears
// a frame.
type state struct {
	size         image.Point
	filters      []filter.Filter
	overlay      image.Image
	overlayCache *image.RGBA
	orientation  geom.Transform
	mirrored     bool
}

// Pipeline applies orientation, aspect-fill, filters and an overlay to
// frames and fans the result out to its registered outputs.
//
// Render is guarded by a non-blocking admission gate: a call arriving while
// another is in flight is dropped. RenderInto and Process do not take the
// gate, so encoding never drops frames because of preview contention.
type Pipeline struct {
	ctx  *Context
	name string

	mu    sync.RWMutex
	state state

	outputsMu  sync.RWMutex
	outputs    map[OutputHandle]Output
	order      []OutputHandle
	nextHandle OutputHandle

	listenersMu sync.RWMutex
	listeners   []Listener

	rendering atomic.Bool
}

// Option configures a pipeline.
type Option func(*Pipeline)

// WithName labels the pipeline's metrics and logs.
func WithName(name string) Option {
	return func(p *Pipeline) { p.name = name }
}

// New creates a pipeline rendering at size.
func New(ctx *Context, size image.Point, opts ...Option) (*Pipeline, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, ErrInvalidSize
	}
	if ctx == nil {
		ctx = NewContext()
	}

	p := &Pipeline{
		ctx:     ctx,
		name:    "default",
		outputs: make(map[OutputHandle]Output),
		state: state{
			size:        size,
			orientation: geom.Identity,
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	logrus.WithFields(logrus.Fields{
		"function": "render.New",
		"pipeline": p.name,
		"width":    size.X,
		"height":   size.Y,
	}).Info("Render pipeline created")

	return p, nil
}

// Name returns the pipeline's metrics label.
func (p *Pipeline) Name() string { return p.name }

// Context returns the rendering context.
func (p *Pipeline) Context() *Context { return p.ctx }

// Size returns the target render size.
func (p *Pipeline) Size() image.Point {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.size
}

// SetSize changes the target render size and rebuilds the cached overlay.
func (p *Pipeline) SetSize(size image.Point) error {
	if size.X <= 0 || size.Y <= 0 {
		return ErrInvalidSize
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.size == size {
		return nil
	}
	p.state.size = size
	p.state.overlayCache = p.scaleOverlay(p.state.overlay, size)
	return nil
}

// Overlay returns the overlay image, if any.
func (p *Pipeline) Overlay() image.Image {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.overlay
}

// SetOverlay sets an image composited over every frame; nil removes it.
func (p *Pipeline) SetOverlay(overlay image.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.overlay = overlay
	p.state.overlayCache = p.scaleOverlay(overlay, p.state.size)
}

func (p *Pipeline) scaleOverlay(overlay image.Image, size image.Point) *image.RGBA {
	if overlay == nil || overlay.Bounds().Empty() {
		return nil
	}
	return p.ctx.Fill(overlay, size)
}

// OrientationTransform returns the rotation applied before scaling.
func (p *Pipeline) OrientationTransform() geom.Transform {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.orientation
}

// SetOrientationTransform sets the rotation applied before scaling.
func (p *Pipeline) SetOrientationTransform(t geom.Transform) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.orientation = t
}

// Mirrored reports whether frames are flipped horizontally.
func (p *Pipeline) Mirrored() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.mirrored
}

// SetMirrored enables or disables the horizontal flip.
func (p *Pipeline) SetMirrored(mirrored bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.mirrored = mirrored
}

// Filters returns a copy of the filter list.
func (p *Pipeline) Filters() []filter.Filter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]filter.Filter(nil), p.state.filters...)
}

// SetFilters replaces the filter list and notifies listeners.
func (p *Pipeline) SetFilters(filters ...filter.Filter) {
	p.mu.Lock()
	p.state.filters = append([]filter.Filter(nil), filters...)
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.SetFilters",
		"pipeline": p.name,
		"count":    len(filters),
	}).Debug("Filters updated")

	p.listenersMu.RLock()
	listeners := append([]Listener(nil), p.listeners...)
	p.listenersMu.RUnlock()
	for _, l := range listeners {
		l.FiltersChanged(p)
	}
}

// AddListener registers a filter change listener.
func (p *Pipeline) AddListener(l Listener) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, l)
}

// AddOutput registers an output and returns the handle that removes it.
func (p *Pipeline) AddOutput(o Output) OutputHandle {
	p.outputsMu.Lock()
	defer p.outputsMu.Unlock()

	p.nextHandle++
	h := p.nextHandle
	p.outputs[h] = o
	p.order = append(p.order, h)
	return h
}

// RemoveOutput unregisters an output. Unknown handles are ignored.
func (p *Pipeline) RemoveOutput(h OutputHandle) {
	p.outputsMu.Lock()
	defer p.outputsMu.Unlock()

	if _, ok := p.outputs[h]; !ok {
		return
	}
	delete(p.outputs, h)
	for i, cur := range p.order {
		if cur == h {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Outputs returns the registered outputs in registration order.
func (p *Pipeline) Outputs() []Output {
	p.outputsMu.RLock()
	defer p.outputsMu.RUnlock()

	outputs := make([]Output, 0, len(p.order))
	for _, h := range p.order {
		outputs = append(outputs, p.outputs[h])
	}
	return outputs
}

// Render processes frame and fans the result out to every output. It
// reports false when the frame was dropped because another render was in
// flight. A frame that cannot be processed is logged and skipped.
func (p *Pipeline) Render(frame image.Image) bool {
	if !p.rendering.CompareAndSwap(false, true) {
		framesDropped.WithLabelValues(p.name).Inc()
		logrus.WithFields(logrus.Fields{
			"function": "Pipeline.Render",
			"pipeline": p.name,
		}).Debug("Render in flight, dropping frame")
		return false
	}
	defer p.rendering.Store(false)

	img, err := p.Process(frame)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Pipeline.Render",
			"pipeline": p.name,
			"error":    err.Error(),
		}).Warn("Skipping frame")
		return true
	}

	for _, o := range p.Outputs() {
		o.Render(img, p.ctx)
	}
	framesRendered.WithLabelValues(p.name).Inc()
	return true
}

// RenderInto processes frame and writes the result into pb, which must
// match the pipeline size. Outputs are not invoked.
func (p *Pipeline) RenderInto(frame image.Image, pb *media.PixelBuffer) error {
	if pb == nil {
		return ErrNilBuffer
	}

	img, err := p.Process(frame)
	if err != nil {
		return err
	}
	if pb.Width != img.Rect.Dx() || pb.Height != img.Rect.Dy() {
		return ErrSizeMismatch
	}

	p.ctx.RenderToBuffer(img, pb)
	framesEncoded.WithLabelValues(p.name).Inc()
	return nil
}

// Process runs frame through the pipeline and returns an image whose
// bounds are exactly (0,0)-Size(). Filter failures are not errors: the
// failing filter is skipped.
func (p *Pipeline) Process(frame image.Image) (*image.RGBA, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}

	p.mu.RLock()
	st := p.state
	p.mu.RUnlock()

	// Step 1: orient and mirror the source, re-anchored at the origin. This
	// precedes the fill so a quarter turn still covers size exactly.
	extent := geom.RectOf(frame.Bounds())
	base := geom.Translation(-extent.X, -extent.Y).Concat(st.orientation)
	if st.mirrored {
		base = base.Concat(geom.MirrorHorizontal)
	}
	base = geom.Anchored(base, extent)

	// Step 2: aspect-fill the oriented extent into the target size
	oriented := base.ApplyToRect(extent)
	target := geom.R(0, 0, float64(st.size.X), float64(st.size.Y))
	img := p.ctx.Transform(frame, base.Concat(geom.AspectFill(oriented, target)), st.size)

	// Step 3: filters, keeping the previous image on failure
	if len(st.filters) > 0 {
		img = p.conform(p.applyFilters(st.filters, img), st.size)
	}

	// Step 4: overlay
	if st.overlayCache != nil {
		p.ctx.CompositeOver(img, st.overlayCache)
	}

	return img, nil
}

// ApplyFilters runs img through the filter chain only, without resizing,
// orienting or overlaying it. The result keeps img's extent.
func (p *Pipeline) ApplyFilters(img *image.RGBA) *image.RGBA {
	p.mu.RLock()
	filters := p.state.filters
	p.mu.RUnlock()

	if len(filters) == 0 {
		return img
	}
	out := p.applyFilters(filters, img)
	if out.Rect == img.Rect {
		return out
	}
	if out.Rect.Size() != img.Rect.Size() {
		out = p.ctx.Fill(out, img.Rect.Size())
	}
	out = p.ctx.Anchor(out)
	return p.ctx.Translate(out, img.Rect.Min.X, img.Rect.Min.Y)
}

func (p *Pipeline) applyFilters(filters []filter.Filter, img *image.RGBA) *image.RGBA {
	out, err := filter.ApplyAll(filters, img)
	if n := failureCount(err); n > 0 {
		filterFailures.WithLabelValues(p.name).Add(float64(n))
	}
	return out
}

// conform makes sure a filter result keeps the render extent.
func (p *Pipeline) conform(img *image.RGBA, size image.Point) *image.RGBA {
	want := image.Rectangle{Max: size}
	if img.Rect == want {
		return img
	}
	if img.Rect.Size() == size {
		return p.ctx.Anchor(img)
	}
	return p.ctx.Fill(img, size)
}

func failureCount(err error) int {
	if err == nil {
		return 0
	}
	if _, single := err.(*filter.FailureError); single {
		return 1
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}
