package composition

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/videopipeline/filter"
	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
	"github.com/opd-ai/videopipeline/render"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func frames(m map[int]image.Image) FrameSource {
	return FrameSourceFunc(func(id int) (image.Image, bool) {
		img, ok := m[id]
		return img, ok
	})
}

func seconds(s float64) media.Time {
	return media.TimeFromSeconds(s, media.DefaultTimescale)
}

func TestRampsFirstMatchWins(t *testing.T) {
	l := NewLayerInstruction(1)
	l.SetPostTransformCropRectangleRamp(geom.R(0, 0, 1, 1), geom.R(0, 0, 2, 2), media.NewTimeRange(seconds(0), seconds(2)))
	l.SetPostTransformCropRectangleRamp(geom.R(0, 0, 3, 3), geom.R(0, 0, 3, 3), media.NewTimeRange(seconds(1), seconds(2)))
	l.SetPostTransformCropRectangle(geom.R(0, 0, 4, 4), seconds(5))

	tests := []struct {
		at     float64
		want   geom.Rect
		active bool
	}{
		{0, geom.R(0, 0, 1, 1), true},
		{1.5, geom.R(0, 0, 1, 1), true},
		{2.5, geom.R(0, 0, 3, 3), true},
		{4, geom.Rect{}, false},
		{5, geom.R(0, 0, 4, 4), true},
		{1e6, geom.R(0, 0, 4, 4), true},
	}
	for _, tt := range tests {
		ramp, ok := l.PostTransformCropRectangleRamp(seconds(tt.at))
		assert.Equal(t, tt.active, ok, "at %g", tt.at)
		assert.Equal(t, tt.want, ramp.Start, "at %g", tt.at)
	}

	_, ok := l.CropRectangleRamp(seconds(0))
	assert.False(t, ok, "ramp kinds are independent")
	_, ok = l.TransformRamp(seconds(0))
	assert.False(t, ok)

	l.SetTransform(geom.Scale(2, 2), seconds(0))
	tr, ok := l.TransformRamp(seconds(3))
	require.True(t, ok)
	assert.Equal(t, geom.Scale(2, 2), tr.Start)
	assert.Equal(t, tr.Start, tr.End, "step helpers hold one value")
}

func TestInstructionAt(t *testing.T) {
	comp := &VideoComposition{Instructions: []Instruction{
		{TimeRange: media.NewTimeRange(seconds(0), seconds(1)), Layers: []*LayerInstruction{NewLayerInstruction(1)}},
		{TimeRange: media.NewTimeRange(seconds(1), seconds(1)), Layers: []*LayerInstruction{NewLayerInstruction(2), NewLayerInstruction(3)}},
	}}

	in, ok := comp.InstructionAt(seconds(0.5))
	require.True(t, ok)
	assert.Equal(t, []int{1}, in.TrackIDs())

	in, ok = comp.InstructionAt(seconds(1))
	require.True(t, ok)
	assert.Equal(t, []int{2, 3}, in.TrackIDs())

	_, ok = comp.InstructionAt(seconds(2))
	assert.False(t, ok)
}

func TestComposeFullExtentWithoutRamps(t *testing.T) {
	c := NewCompositor(render.NewContext())
	src := solid(8, 4, red)

	out, err := c.Compose(Request{
		Time:        seconds(0),
		Instruction: &Instruction{Layers: []*LayerInstruction{NewLayerInstruction(1)}},
		Frames:      frames(map[int]image.Image{1: src}),
		RenderSize:  image.Pt(8, 4),
	})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), out.Bounds())
	assert.Equal(t, src.Pix, out.Pix)
}

func TestComposeIndependentRampsPerTrack(t *testing.T) {
	left := NewLayerInstruction(1)
	left.SetPostTransformCropRectangleRamp(geom.R(0, 0, 4, 4), geom.R(0, 0, 4, 4), media.NewTimeRange(seconds(0), seconds(1)))

	right := NewLayerInstruction(2)
	right.SetTransformRamp(geom.Translation(4, 0), geom.Translation(4, 0), media.NewTimeRange(seconds(1), media.PositiveInfinity))
	right.SetPostTransformCropRectangle(geom.R(0, 0, 8, 4), seconds(0))

	in := &Instruction{Layers: []*LayerInstruction{left, right}}
	src := frames(map[int]image.Image{1: solid(8, 4, red), 2: solid(4, 4, blue)})
	c := NewCompositor(nil)

	early, err := c.Compose(Request{Time: seconds(0), Instruction: in, Frames: src, RenderSize: image.Pt(8, 4)})
	require.NoError(t, err)
	assert.Equal(t, blue, early.RGBAAt(1, 1))
	assert.Equal(t, color.RGBA{}, early.RGBAAt(6, 1), "left layer cropped to its left half")

	late, err := c.Compose(Request{Time: seconds(1.5), Instruction: in, Frames: src, RenderSize: image.Pt(8, 4)})
	require.NoError(t, err)
	assert.Equal(t, red, late.RGBAAt(1, 1), "left layer back to full extent")
	assert.Equal(t, blue, late.RGBAAt(6, 1), "right layer moved by its own ramp")
}

func TestComposeBackground(t *testing.T) {
	layer := NewLayerInstruction(1)
	out, err := NewCompositor(nil).Compose(Request{
		Time:        seconds(0),
		Instruction: &Instruction{Background: color.RGBA{G: 255, A: 255}, Layers: []*LayerInstruction{layer}},
		Frames:      frames(map[int]image.Image{1: solid(2, 2, red)}),
		RenderSize:  image.Pt(4, 4),
	})
	require.NoError(t, err)
	assert.Equal(t, red, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{G: 255, A: 255}, out.RGBAAt(3, 3))
}

func TestComposeFailures(t *testing.T) {
	c := NewCompositor(nil)

	_, err := c.Compose(Request{
		Time:        seconds(0),
		Instruction: &Instruction{Layers: []*LayerInstruction{NewLayerInstruction(1), NewLayerInstruction(7)}},
		Frames:      frames(map[int]image.Image{1: solid(2, 2, red)}),
		RenderSize:  image.Pt(2, 2),
	})
	assert.ErrorIs(t, err, ErrMissingSourceFrame)

	_, err = c.Compose(Request{Instruction: &Instruction{}, RenderSize: image.Pt(2, 2)})
	assert.ErrorIs(t, err, ErrNoSourceTracks)

	_, err = c.Compose(Request{
		Instruction: &Instruction{Layers: []*LayerInstruction{NewLayerInstruction(1)}},
		Frames:      frames(map[int]image.Image{1: solid(2, 2, red)}),
	})
	assert.ErrorIs(t, err, render.ErrInvalidSize)
}

func TestRenderLayerReanchorsRotation(t *testing.T) {
	l := NewLayerInstruction(1)
	l.SetTransform(geom.Rotation(math.Pi/2), seconds(0))

	c := NewCompositor(nil)
	img := c.renderLayer(l, solid(4, 2, red), seconds(0))
	assert.Equal(t, image.Rect(0, 0, 2, 4), img.Rect)
}

func TestRenderLayerPreCrop(t *testing.T) {
	src := solid(8, 8, red)
	src.SetRGBA(5, 5, blue)

	l := NewLayerInstruction(1)
	l.SetCropRectangle(geom.R(4, 4, 4, 4), seconds(0))

	img := NewCompositor(nil).renderLayer(l, src, seconds(0))
	assert.Equal(t, image.Rect(0, 0, 4, 4), img.Rect)
	assert.Equal(t, blue, img.RGBAAt(1, 1))
}

func TestComposeAppliesLayerPipeline(t *testing.T) {
	p, err := render.New(nil, image.Pt(4, 4))
	require.NoError(t, err)
	p.SetFilters(filter.NewGrayscaleFilter())

	l := NewLayerInstruction(1)
	l.Pipeline = p

	out, err := NewCompositor(nil).Compose(Request{
		Instruction: &Instruction{Layers: []*LayerInstruction{l}},
		Frames:      frames(map[int]image.Image{1: solid(4, 4, red)}),
		RenderSize:  image.Pt(4, 4),
	})
	require.NoError(t, err)
	c := out.RGBAAt(2, 2)
	assert.Equal(t, c.R, c.G)
	assert.Equal(t, c.G, c.B)
}

func TestComposeRenderTransform(t *testing.T) {
	src := solid(4, 2, red)
	src.SetRGBA(0, 0, blue)

	out, err := NewCompositor(nil).Compose(Request{
		Instruction:     &Instruction{Layers: []*LayerInstruction{NewLayerInstruction(1)}},
		Frames:          frames(map[int]image.Image{1: src}),
		RenderSize:      image.Pt(4, 2),
		RenderTransform: geom.MirrorHorizontal.Translated(4, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, blue, out.RGBAAt(3, 0))
	assert.Equal(t, red, out.RGBAAt(0, 0))
}

func TestRenderIntoPixelBuffer(t *testing.T) {
	c := NewCompositor(nil)
	req := Request{
		Instruction: &Instruction{Layers: []*LayerInstruction{NewLayerInstruction(1)}},
		Frames:      frames(map[int]image.Image{1: solid(4, 4, red)}),
		RenderSize:  image.Pt(4, 4),
	}

	assert.ErrorIs(t, c.Render(req, nil), render.ErrNilBuffer)
	assert.ErrorIs(t, c.Render(req, media.NewPixelBuffer(2, 2)), render.ErrSizeMismatch)

	pb := media.NewPixelBuffer(4, 4)
	require.NoError(t, c.Render(req, pb))
	r, _, _, _ := pb.Image().At(1, 1).RGBA()
	assert.Greater(t, r>>8, uint32(200))
}
