// Package composition renders multi-track video compositions offline.
//
// A VideoComposition holds instructions, each folding per-track layer
// instructions over a background. For every layer the Compositor crops the
// source frame, transforms it, crops again in output coordinates and
// re-anchors it, optionally filters it, then composites it over the canvas.
// ExportSession drives a Compositor over an Asset and writes the frames to
// a movie file.
package composition

import (
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
	"github.com/opd-ai/videopipeline/render"
)

// FrameSource returns the decoded source frame of a track for the request
// being composed.
type FrameSource interface {
	SourceFrame(trackID int) (image.Image, bool)
}

// FrameSourceFunc adapts a function to FrameSource.
type FrameSourceFunc func(trackID int) (image.Image, bool)

// SourceFrame calls f.
func (f FrameSourceFunc) SourceFrame(trackID int) (image.Image, bool) { return f(trackID) }

// Request asks for one output frame.
type Request struct {
	Time        media.Time
	Instruction *Instruction
	Frames      FrameSource
	// RenderSize is the canvas size.
	RenderSize image.Point
	// RenderTransform is applied to the composed canvas.
	RenderTransform geom.Transform
}

// Compositor folds layer instructions into output frames.
type Compositor struct {
	ctx *render.Context
}

// NewCompositor creates a compositor drawing with ctx.
func NewCompositor(ctx *render.Context) *Compositor {
	if ctx == nil {
		ctx = render.NewContext()
	}
	return &Compositor{ctx: ctx}
}

// Compose renders req into a new image of req.RenderSize. A missing source
// frame for any layer fails the whole frame.
func (c *Compositor) Compose(req Request) (*image.RGBA, error) {
	started := time.Now()

	img, err := c.compose(req)
	if err != nil {
		composeFailures.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "Compositor.Compose",
			"time":     req.Time.String(),
			"error":    err.Error(),
		}).Warn("Failed to compose frame")
		return nil, err
	}

	elapsed := time.Since(started)
	framesComposed.Inc()
	composeSeconds.Observe(elapsed.Seconds())
	logrus.WithFields(logrus.Fields{
		"function": "Compositor.Compose",
		"time":     req.Time.String(),
		"elapsed":  elapsed,
	}).Debug("Rendered a frame")
	return img, nil
}

func (c *Compositor) compose(req Request) (*image.RGBA, error) {
	in := req.Instruction
	if in == nil || len(in.Layers) == 0 {
		return nil, ErrNoSourceTracks
	}
	if req.RenderSize.X <= 0 || req.RenderSize.Y <= 0 {
		return nil, fmt.Errorf("%w: %v", render.ErrInvalidSize, req.RenderSize)
	}

	canvas := image.NewRGBA(image.Rectangle{Max: req.RenderSize})
	if in.Background != nil {
		draw.Draw(canvas, canvas.Rect, image.NewUniform(in.Background), image.Point{}, draw.Src)
	}

	for _, layer := range in.Layers {
		frame, ok := req.Frames.SourceFrame(layer.TrackID)
		if !ok || frame == nil {
			return nil, fmt.Errorf("%w: track %d at %s", ErrMissingSourceFrame, layer.TrackID, req.Time)
		}
		c.ctx.CompositeOver(canvas, c.renderLayer(layer, frame, req.Time))
	}

	if req.RenderTransform.IsIdentity() || req.RenderTransform == (geom.Transform{}) {
		return canvas, nil
	}
	return c.ctx.Transform(canvas, req.RenderTransform, req.RenderSize), nil
}

// renderLayer crops, transforms, post-crops and filters one source frame.
// The result is in output coordinates.
func (c *Compositor) renderLayer(layer *LayerInstruction, frame image.Image, t media.Time) *image.RGBA {
	img := toRGBA(frame)

	if ramp, ok := layer.CropRectangleRamp(t); ok {
		img = c.ctx.Crop(img, ramp.Start.Image())
	}

	if ramp, ok := layer.TransformRamp(t); ok && !ramp.Start.IsIdentity() {
		img = c.ctx.Apply(img, ramp.Start)
	}

	post := img.Rect
	if ramp, ok := layer.PostTransformCropRectangleRamp(t); ok {
		post = ramp.Start.Image()
	}
	img = c.ctx.Translate(c.ctx.Crop(img, post), -post.Min.X, -post.Min.Y)

	if layer.Pipeline != nil {
		img = layer.Pipeline.ApplyFilters(img)
	}
	return img
}

// Render composes req and writes the result into pb.
func (c *Compositor) Render(req Request, pb *media.PixelBuffer) error {
	if pb == nil {
		return render.ErrNilBuffer
	}
	if pb.Width != req.RenderSize.X || pb.Height != req.RenderSize.Y {
		return render.ErrSizeMismatch
	}
	img, err := c.Compose(req)
	if err != nil {
		return err
	}
	c.ctx.RenderToBuffer(img, pb)
	return nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Rect, img, img.Bounds().Min, draw.Src)
	return dst
}
