package render

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
)

// Context is the rendering context shared by pipelines and outputs. It is
// constructed once by the application and passed explicitly; there is no
// package-level default.
//
// Images handled by a Context keep their extent in image.RGBA.Rect, so an
// origin may be negative after a transform until it is re-anchored.
type Context struct {
	// Interpolator resamples images under non-integral transforms.
	Interpolator draw.Interpolator
}

// NewContext creates a context using bilinear resampling.
func NewContext() *Context {
	return &Context{Interpolator: draw.ApproxBiLinear}
}

func (c *Context) interpolator() draw.Interpolator {
	if c == nil || c.Interpolator == nil {
		return draw.ApproxBiLinear
	}
	return c.Interpolator
}

// Transform draws src through t into a new image with bounds (0,0)-size.
// Destination pixels not covered by the transformed source stay transparent.
func (c *Context) Transform(src image.Image, t geom.Transform, size image.Point) *image.RGBA {
	dst := image.NewRGBA(image.Rectangle{Max: size})
	c.transformInto(dst, src, t)
	return dst
}

// Apply returns src transformed by t. The result's extent is the bounding
// box of the transformed source extent.
func (c *Context) Apply(src image.Image, t geom.Transform) *image.RGBA {
	bounds := t.ApplyToRect(geom.RectOf(src.Bounds())).Image()
	dst := image.NewRGBA(bounds)
	c.transformInto(dst, src, t)
	return dst
}

func (c *Context) transformInto(dst *image.RGBA, src image.Image, t geom.Transform) {
	if dx, dy, ok := integralTranslation(t); ok {
		draw.Draw(dst, dst.Bounds(), src, dst.Bounds().Min.Sub(image.Pt(dx, dy)), draw.Src)
		return
	}
	c.interpolator().Transform(dst, t.Aff3(), src, src.Bounds(), draw.Src, nil)
}

// integralTranslation reports whether t only moves pixels by whole steps,
// in which case copying is exact and no resampling is needed.
func integralTranslation(t geom.Transform) (int, int, bool) {
	if t.A != 1 || t.D != 1 || t.B != 0 || t.C != 0 {
		return 0, 0, false
	}
	if t.Tx != math.Trunc(t.Tx) || t.Ty != math.Trunc(t.Ty) {
		return 0, 0, false
	}
	return int(t.Tx), int(t.Ty), true
}

// Crop returns the part of src inside r. The result shares src's pixels
// and keeps r's origin.
func (c *Context) Crop(src *image.RGBA, r image.Rectangle) *image.RGBA {
	return src.SubImage(r.Intersect(src.Bounds())).(*image.RGBA)
}

// Translate moves the extent of src by (dx, dy) without touching pixels.
func (c *Context) Translate(src *image.RGBA, dx, dy int) *image.RGBA {
	return &image.RGBA{
		Pix:    src.Pix,
		Stride: src.Stride,
		Rect:   src.Rect.Add(image.Pt(dx, dy)),
	}
}

// Anchor moves the extent origin of src to (0, 0).
func (c *Context) Anchor(src *image.RGBA) *image.RGBA {
	origin := src.Rect.Min
	if origin == (image.Point{}) {
		return src
	}
	return c.Translate(src, -origin.X, -origin.Y)
}

// CompositeOver draws src over dst using source-over blending, keeping
// both images in their own coordinates.
func (c *Context) CompositeOver(dst *image.RGBA, src image.Image) {
	draw.Draw(dst, src.Bounds(), src, src.Bounds().Min, draw.Over)
}

// Fill aspect-fills src into a new image of the given size.
func (c *Context) Fill(src image.Image, size image.Point) *image.RGBA {
	from := geom.RectOf(src.Bounds())
	t := geom.Translation(-from.X, -from.Y).Concat(
		geom.AspectFill(from, geom.R(0, 0, float64(size.X), float64(size.Y))))
	return c.Transform(src, t, size)
}

// RenderToBuffer converts img into pb, sampling from img's origin.
func (c *Context) RenderToBuffer(img image.Image, pb *media.PixelBuffer) {
	pb.Draw(img)
}
