package geom

import (
	"math"

	"golang.org/x/image/math/f64"
)

// Transform is a 2D affine transform.
type Transform struct {
	A, B, C, D float64
	Tx, Ty     float64
}

// Identity is the transform that leaves every point in place.
var Identity = Transform{A: 1, D: 1}

// Scale returns a scaling transform.
func Scale(sx, sy float64) Transform {
	return Transform{A: sx, D: sy}
}

// Translation returns a translating transform.
func Translation(tx, ty float64) Transform {
	return Transform{A: 1, D: 1, Tx: tx, Ty: ty}
}

// Rotation returns a counter-clockwise rotation by angle radians in a y-up
// space, which appears clockwise on y-down image rasters.
func Rotation(angle float64) Transform {
	sin, cos := math.Sincos(angle)
	sin, cos = snapUnit(sin), snapUnit(cos)
	return Transform{A: cos, B: sin, C: -sin, D: cos}
}

// snapUnit removes the rounding noise Sincos leaves on quarter turns so
// rotated extents keep integral sizes.
func snapUnit(v float64) float64 {
	const eps = 1e-12
	for _, exact := range [...]float64{-1, 0, 1} {
		if math.Abs(v-exact) < eps {
			return exact
		}
	}
	return v
}

// MirrorHorizontal flips the x axis.
var MirrorHorizontal = Scale(-1, 1)

// Concat returns the transform that applies t and then o.
func (t Transform) Concat(o Transform) Transform {
	return Transform{
		A:  t.A*o.A + t.B*o.C,
		B:  t.A*o.B + t.B*o.D,
		C:  t.C*o.A + t.D*o.C,
		D:  t.C*o.B + t.D*o.D,
		Tx: t.Tx*o.A + t.Ty*o.C + o.Tx,
		Ty: t.Tx*o.B + t.Ty*o.D + o.Ty,
	}
}

// Translated returns t followed by a translation.
func (t Transform) Translated(tx, ty float64) Transform {
	return t.Concat(Translation(tx, ty))
}

// IsIdentity reports whether t maps every point to itself.
func (t Transform) IsIdentity() bool {
	return t == Identity
}

// Invert returns the inverse transform. ok is false for singular transforms.
func (t Transform) Invert() (inv Transform, ok bool) {
	det := t.A*t.D - t.B*t.C
	if det == 0 || math.IsNaN(det) {
		return Transform{}, false
	}
	inv.A = t.D / det
	inv.B = -t.B / det
	inv.C = -t.C / det
	inv.D = t.A / det
	inv.Tx = (t.C*t.Ty - t.D*t.Tx) / det
	inv.Ty = (t.B*t.Tx - t.A*t.Ty) / det
	return inv, true
}

// Apply maps a point.
func (t Transform) Apply(x, y float64) (float64, float64) {
	return t.A*x + t.C*y + t.Tx, t.B*x + t.D*y + t.Ty
}

// ApplyToRect returns the bounding box of r after applying t.
func (t Transform) ApplyToRect(r Rect) Rect {
	if t.IsIdentity() {
		return r
	}
	xs := [4]float64{}
	ys := [4]float64{}
	xs[0], ys[0] = t.Apply(r.X, r.Y)
	xs[1], ys[1] = t.Apply(r.MaxX(), r.Y)
	xs[2], ys[2] = t.Apply(r.X, r.MaxY())
	xs[3], ys[3] = t.Apply(r.MaxX(), r.MaxY())

	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 1; i < 4; i++ {
		minX = math.Min(minX, xs[i])
		maxX = math.Max(maxX, xs[i])
		minY = math.Min(minY, ys[i])
		maxY = math.Max(maxY, ys[i])
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Aff3 returns t in the matrix layout used by golang.org/x/image/draw.
func (t Transform) Aff3() f64.Aff3 {
	return f64.Aff3{t.A, t.C, t.Tx, t.B, t.D, t.Ty}
}

// AspectFill returns the transform that scales from so it completely covers
// to, centering the overflowing axis. Equal sizes yield Identity.
func AspectFill(from, to Rect) Transform {
	if from.Size() == to.Size() {
		return Identity
	}

	horizontalRatio := to.Width / from.Width
	verticalRatio := to.Height / from.Height
	scale := math.Max(horizontalRatio, verticalRatio)

	var tx, ty float64
	if horizontalRatio < verticalRatio {
		tx = (to.Width - from.Width*scale) / 2
	}
	if horizontalRatio > verticalRatio {
		ty = (to.Height - from.Height*scale) / 2
	}

	return Transform{A: scale, D: scale, Tx: tx, Ty: ty}
}

// Anchored returns t followed by the translation that moves the transformed
// extent's origin to (0, 0).
func Anchored(t Transform, extent Rect) Transform {
	box := t.ApplyToRect(extent)
	return t.Translated(-box.X, -box.Y)
}
