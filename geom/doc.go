// Package geom provides the 2D geometry used by the render pipeline and the
// offline compositor.
//
// Rectangles and sizes are expressed in floating point pixel units, matching
// the way crop ramps and render sizes are authored. Affine transforms follow
// the row-vector convention used by most imaging frameworks:
//
//	x' = A*x + C*y + Tx
//	y' = B*x + D*y + Ty
//
// Transforms compose left to right: a.Concat(b) applies a first, then b.
//
// # Aspect Fill
//
// AspectFill computes the scale-and-center transform that makes a source
// rectangle completely cover a destination rectangle without letterboxing:
//
//	t := geom.AspectFill(geom.R(0, 0, 1280, 720), geom.R(0, 0, 1080, 1920))
//	covered := t.ApplyToRect(geom.R(0, 0, 1280, 720))
//
// # Orientation
//
// Orientation values describe how a captured buffer must be rotated to appear
// upright. DeviceOrientation maps a physical device pose to the matching
// image orientation.
package geom
