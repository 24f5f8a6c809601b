package filter

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// PercentCrop blends two filters for a swipeable before/after comparison:
// the right-hand Percent of the image shows Second's output, the rest shows
// First's output.
//
// Percent <= 0 (or a nil Second) yields First's output without evaluating
// Second. Percent >= 1 yields Second's output. If First fails the input is
// returned unchanged; if Second fails First's output is returned.
type PercentCrop struct {
	First   Filter
	Second  Filter
	Percent float64
}

// NewPercentCrop creates a crop-blend of two filters.
func NewPercentCrop(first, second Filter, percent float64) *PercentCrop {
	return &PercentCrop{First: first, Second: second, Percent: percent}
}

// Apply composites the two filter outputs.
func (f *PercentCrop) Apply(src *image.RGBA) (*image.RGBA, error) {
	if src == nil {
		return nil, ErrNilImage
	}

	first, err := f.First.Apply(src)
	if err != nil || first == nil {
		return src, nil
	}

	if f.Second == nil || f.Percent <= 0 {
		return first, nil
	}

	second, err := f.Second.Apply(src)
	if err != nil || second == nil {
		return first, nil
	}

	if f.Percent >= 1 {
		return second, nil
	}

	extent := src.Bounds()
	cropWidth := int(math.Round(float64(extent.Dx()) * f.Percent))
	crop := image.Rect(extent.Max.X-cropWidth, extent.Min.Y, extent.Max.X, extent.Max.Y)

	out := copyImage(first)
	draw.Draw(out, crop, second, crop.Min, draw.Over)
	return out, nil
}

// GetName returns the filter name.
func (f *PercentCrop) GetName() string {
	second := "none"
	if f.Second != nil {
		second = f.Second.GetName()
	}
	return fmt.Sprintf("PercentCrop(%s|%s@%.2f)", f.First.GetName(), second, f.Percent)
}
