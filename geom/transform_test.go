package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAspectFill(t *testing.T) {
	tests := []struct {
		name   string
		from   Rect
		to     Rect
		scale  float64
		tx, ty float64
	}{
		{
			name:  "same aspect ratio",
			from:  R(0, 0, 100, 50),
			to:    R(0, 0, 200, 100),
			scale: 2,
		},
		{
			name:  "square into wide",
			from:  R(0, 0, 100, 100),
			to:    R(0, 0, 200, 100),
			scale: 2,
			ty:    -50,
		},
		{
			name:  "tall into wide",
			from:  R(0, 0, 100, 200),
			to:    R(0, 0, 200, 100),
			scale: 2,
			ty:    -150,
		},
		{
			name:  "wide into square",
			from:  R(0, 0, 200, 100),
			to:    R(0, 0, 100, 100),
			scale: 1,
			tx:    -50,
		},
		{
			name:  "landscape capture into portrait surface",
			from:  R(0, 0, 1920, 1080),
			to:    R(0, 0, 1080, 1920),
			scale: 1920.0 / 1080.0,
			tx:    (1080 - 1920*(1920.0/1080.0)) / 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := AspectFill(tt.from, tt.to)
			assert.InDelta(t, tt.scale, tr.A, 1e-9)
			assert.InDelta(t, tt.scale, tr.D, 1e-9)
			assert.Zero(t, tr.B)
			assert.Zero(t, tr.C)
			assert.InDelta(t, tt.tx, tr.Tx, 1e-9)
			assert.InDelta(t, tt.ty, tr.Ty, 1e-9)

			// The destination is always fully covered.
			covered := tr.ApplyToRect(tt.from)
			assert.LessOrEqual(t, covered.X, tt.to.X+1e-9)
			assert.LessOrEqual(t, covered.Y, tt.to.Y+1e-9)
			assert.GreaterOrEqual(t, covered.MaxX(), tt.to.MaxX()-1e-9)
			assert.GreaterOrEqual(t, covered.MaxY(), tt.to.MaxY()-1e-9)
		})
	}
}

func TestAspectFill_SameSizeIsIdentity(t *testing.T) {
	tr := AspectFill(R(0, 0, 640, 480), R(0, 0, 640, 480))
	assert.True(t, tr.IsIdentity())
}

func TestTransformConcatOrder(t *testing.T) {
	tr := Scale(2, 2).Concat(Translation(10, 0))
	x, y := tr.Apply(1, 1)
	assert.Equal(t, 12.0, x)
	assert.Equal(t, 2.0, y)

	tr = Translation(10, 0).Concat(Scale(2, 2))
	x, y = tr.Apply(1, 1)
	assert.Equal(t, 22.0, x)
	assert.Equal(t, 2.0, y)
}

func TestTransformInvert(t *testing.T) {
	tr := Rotation(math.Pi / 3).Concat(Scale(2, 3)).Translated(5, -7)
	inv, ok := tr.Invert()
	assert.True(t, ok)

	x, y := tr.Apply(13, 17)
	bx, by := inv.Apply(x, y)
	assert.InDelta(t, 13, bx, 1e-9)
	assert.InDelta(t, 17, by, 1e-9)

	_, ok = Scale(0, 1).Invert()
	assert.False(t, ok)
}

func TestAnchoredRotation(t *testing.T) {
	extent := R(0, 0, 1920, 1080)
	tr := Anchored(OrientationRight.Transform(), extent)
	box := tr.ApplyToRect(extent)

	assert.InDelta(t, 0, box.X, 1e-6)
	assert.InDelta(t, 0, box.Y, 1e-6)
	assert.InDelta(t, 1080, box.Width, 1e-6)
	assert.InDelta(t, 1920, box.Height, 1e-6)
}

func TestAnchoredMirror(t *testing.T) {
	extent := R(0, 0, 100, 50)
	tr := Anchored(MirrorHorizontal, extent)

	x, y := tr.Apply(0, 0)
	assert.Equal(t, 100.0, x)
	assert.Equal(t, 0.0, y)
	x, _ = tr.Apply(100, 0)
	assert.Equal(t, 0.0, x)
}

func TestRectImage(t *testing.T) {
	r := R(0.5, 1, 10, 10.2)
	img := r.Image()
	assert.Equal(t, 0, img.Min.X)
	assert.Equal(t, 1, img.Min.Y)
	assert.Equal(t, 11, img.Max.X)
	assert.Equal(t, 12, img.Max.Y)

	assert.Equal(t, R(5, 5, 5, 5), R(0, 0, 10, 10).Intersect(R(5, 5, 10, 10)))
	assert.True(t, R(0, 0, 10, 10).Intersect(R(20, 20, 1, 1)).IsEmpty())
}

func TestImageOrientation(t *testing.T) {
	assert.Equal(t, OrientationRight, ImageOrientation(DevicePortrait))
	assert.Equal(t, OrientationDown, ImageOrientation(DeviceLandscapeLeft))
	assert.Equal(t, OrientationUp, ImageOrientation(DeviceLandscapeRight))
	assert.Equal(t, OrientationLeft, ImageOrientation(DeviceUnknown))
	assert.True(t, OrientationUp.Transform().IsIdentity())
}
