package composition

import (
	"image"
	"image/color"

	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
	"github.com/opd-ai/videopipeline/render"
)

// RectRamp is a crop rectangle active during Range. The rectangle is held
// at Start for the whole range; End is recorded but not interpolated.
type RectRamp struct {
	Start geom.Rect
	End   geom.Rect
	Range media.TimeRange
}

// TransformRamp is an affine transform active during Range, held at Start.
type TransformRamp struct {
	Start geom.Transform
	End   geom.Transform
	Range media.TimeRange
}

// fromTime returns [at, +inf).
func fromTime(at media.Time) media.TimeRange {
	return media.NewTimeRange(at, media.PositiveInfinity)
}

// LayerInstruction describes how one source track is placed in the output.
// Ramps of each kind are searched in the order they were added and the
// first whose range contains the time wins; overlapping ranges are not
// rejected and resolve by that order.
type LayerInstruction struct {
	TrackID int
	// Pipeline, when set, filters the layer before it is composited.
	Pipeline *render.Pipeline

	crops      []RectRamp
	transforms []TransformRamp
	postCrops  []RectRamp
}

// NewLayerInstruction creates an instruction for a track.
func NewLayerInstruction(trackID int) *LayerInstruction {
	return &LayerInstruction{TrackID: trackID}
}

// SetCropRectangleRamp crops the source frame before it is transformed.
func (l *LayerInstruction) SetCropRectangleRamp(start, end geom.Rect, r media.TimeRange) {
	l.crops = append(l.crops, RectRamp{Start: start, End: end, Range: r})
}

// SetCropRectangle crops the source frame from at onwards.
func (l *LayerInstruction) SetCropRectangle(rect geom.Rect, at media.Time) {
	l.SetCropRectangleRamp(rect, rect, fromTime(at))
}

// CropRectangleRamp returns the pre-transform crop active at t.
func (l *LayerInstruction) CropRectangleRamp(t media.Time) (RectRamp, bool) {
	return findRect(l.crops, t)
}

// SetTransformRamp transforms the cropped frame.
func (l *LayerInstruction) SetTransformRamp(start, end geom.Transform, r media.TimeRange) {
	l.transforms = append(l.transforms, TransformRamp{Start: start, End: end, Range: r})
}

// SetTransform transforms the cropped frame from at onwards.
func (l *LayerInstruction) SetTransform(t geom.Transform, at media.Time) {
	l.SetTransformRamp(t, t, fromTime(at))
}

// TransformRamp returns the transform active at t.
func (l *LayerInstruction) TransformRamp(t media.Time) (TransformRamp, bool) {
	for _, ramp := range l.transforms {
		if ramp.Range.Contains(t) {
			return ramp, true
		}
	}
	return TransformRamp{}, false
}

// SetPostTransformCropRectangleRamp crops the frame after the transform,
// in output coordinates. The crop origin becomes the layer origin.
func (l *LayerInstruction) SetPostTransformCropRectangleRamp(start, end geom.Rect, r media.TimeRange) {
	l.postCrops = append(l.postCrops, RectRamp{Start: start, End: end, Range: r})
}

// SetPostTransformCropRectangle crops the transformed frame from at
// onwards.
func (l *LayerInstruction) SetPostTransformCropRectangle(rect geom.Rect, at media.Time) {
	l.SetPostTransformCropRectangleRamp(rect, rect, fromTime(at))
}

// PostTransformCropRectangleRamp returns the post-transform crop active at
// t.
func (l *LayerInstruction) PostTransformCropRectangleRamp(t media.Time) (RectRamp, bool) {
	return findRect(l.postCrops, t)
}

func findRect(ramps []RectRamp, t media.Time) (RectRamp, bool) {
	for _, ramp := range ramps {
		if ramp.Range.Contains(t) {
			return ramp, true
		}
	}
	return RectRamp{}, false
}

// Instruction composes its layers, back to front in slice order, over a
// background during TimeRange.
type Instruction struct {
	TimeRange media.TimeRange
	// Background fills the canvas. Nil means transparent.
	Background color.Color
	Layers     []*LayerInstruction
}

// TrackIDs returns the source tracks the instruction needs.
func (in *Instruction) TrackIDs() []int {
	ids := make([]int, 0, len(in.Layers))
	for _, l := range in.Layers {
		ids = append(ids, l.TrackID)
	}
	return ids
}

// VideoComposition describes the output of an export or playback.
type VideoComposition struct {
	RenderSize    image.Point
	FrameDuration media.Time
	// RenderTransform is applied to every composed frame.
	RenderTransform geom.Transform
	Instructions    []Instruction
}

// InstructionAt returns the first instruction whose range contains t.
func (c *VideoComposition) InstructionAt(t media.Time) (*Instruction, bool) {
	for i := range c.Instructions {
		if c.Instructions[i].TimeRange.Contains(t) {
			return &c.Instructions[i], true
		}
	}
	return nil, false
}
