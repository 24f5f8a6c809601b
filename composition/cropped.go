package composition

import (
	"math"

	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
	"github.com/opd-ai/videopipeline/render"
)

// minFrameDuration is the shortest frame duration a composition uses.
var minFrameDuration = media.NewTime(1, media.DefaultTimescale)

// CroppedComposition builds a composition showing crop of every video
// track of asset, in output coordinates after the track's preferred
// transform. The render size is the crop size. pipeline, when set, filters
// every layer.
func CroppedComposition(asset Asset, crop geom.Rect, pipeline *render.Pipeline) (*VideoComposition, error) {
	tracks := VideoTracks(asset)
	if len(tracks) == 0 {
		return nil, ErrNoVideoTrack
	}

	comp := &VideoComposition{
		RenderSize:      crop.Size().Point(),
		FrameDuration:   minFrameDuration,
		RenderTransform: geom.Identity,
	}
	for _, track := range tracks {
		comp.Instructions = append(comp.Instructions, cropInstruction(track, crop, pipeline))
		if track.NominalFrameRate > 0 {
			d := media.TimeFromSeconds(1/track.NominalFrameRate, media.DefaultTimescale)
			if d.After(comp.FrameDuration) {
				comp.FrameDuration = d
			}
		}
	}
	return comp, nil
}

func cropInstruction(track Track, crop geom.Rect, pipeline *render.Pipeline) Instruction {
	layer := NewLayerInstruction(track.ID)
	layer.Pipeline = pipeline
	layer.SetTransform(track.PreferredTransform, media.ZeroTime)
	layer.SetPostTransformCropRectangle(crop, media.ZeroTime)

	duration := track.TimeRange.Duration
	if !duration.IsValid() {
		duration = media.PositiveInfinity
	}
	return Instruction{
		TimeRange: media.NewTimeRange(media.ZeroTime, duration),
		Layers:    []*LayerInstruction{layer},
	}
}

// PresentationRect is the extent of a track's frames once its preferred
// transform is applied.
func PresentationRect(track Track) geom.Rect {
	natural := geom.R(0, 0, track.NaturalSize.Width, track.NaturalSize.Height)
	box := track.PreferredTransform.ApplyToRect(natural)
	// Rotations leave sub-pixel noise in the box.
	box.Width = math.Round(box.Width)
	box.Height = math.Round(box.Height)
	return box
}
