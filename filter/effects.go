package filter

import (
	"fmt"
	"image"
)

// Identity returns a copy of its input. It is useful as the "no filter" page
// of a gallery.
type Identity struct{}

// Apply returns a copy of src.
func (Identity) Apply(src *image.RGBA) (*image.RGBA, error) {
	if src == nil {
		return nil, ErrNilImage
	}
	return copyImage(src), nil
}

// GetName returns the filter name.
func (Identity) GetName() string { return "Identity" }

// BrightnessFilter adjusts the brightness of every color channel.
type BrightnessFilter struct {
	adjustment int // -255 to +255
}

// NewBrightnessFilter creates a brightness adjustment filter.
// adjustment: -255 (darkest) to +255 (brightest), 0 = no change
func NewBrightnessFilter(adjustment int) *BrightnessFilter {
	return &BrightnessFilter{adjustment: clampInt(adjustment, -255, 255)}
}

// Apply offsets R, G and B; alpha is preserved.
func (f *BrightnessFilter) Apply(src *image.RGBA) (*image.RGBA, error) {
	if src == nil {
		return nil, ErrNilImage
	}
	return mapRGB(src, func(v uint8) uint8 {
		return clampByte(float64(int(v) + f.adjustment))
	}), nil
}

// GetName returns the filter name.
func (f *BrightnessFilter) GetName() string {
	return fmt.Sprintf("Brightness(%+d)", f.adjustment)
}

// ContrastFilter scales color channels around the midpoint.
type ContrastFilter struct {
	factor float64 // 0.0 = gray, 1.0 = normal, 3.0 = high contrast
}

// NewContrastFilter creates a contrast adjustment filter.
// factor: 0.0 (no contrast/gray) to 3.0 (high contrast), 1.0 = no change
func NewContrastFilter(factor float64) *ContrastFilter {
	return &ContrastFilter{factor: clampFloat(factor, 0, 3)}
}

// Apply adjusts contrast around 128.
func (f *ContrastFilter) Apply(src *image.RGBA) (*image.RGBA, error) {
	if src == nil {
		return nil, ErrNilImage
	}
	const midpoint = 128.0
	return mapRGB(src, func(v uint8) uint8 {
		return clampByte(midpoint + (float64(v)-midpoint)*f.factor + 0.5)
	}), nil
}

// GetName returns the filter name.
func (f *ContrastFilter) GetName() string {
	return fmt.Sprintf("Contrast(%.2f)", f.factor)
}

// GrayscaleFilter replaces color with Rec. 601 luma.
type GrayscaleFilter struct{}

// NewGrayscaleFilter creates a grayscale conversion filter.
func NewGrayscaleFilter() *GrayscaleFilter {
	return &GrayscaleFilter{}
}

// Apply converts src to grayscale.
func (f *GrayscaleFilter) Apply(src *image.RGBA) (*image.RGBA, error) {
	if src == nil {
		return nil, ErrNilImage
	}
	dst := copyImage(src)
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		y := clampByte(0.299*float64(dst.Pix[i]) + 0.587*float64(dst.Pix[i+1]) + 0.114*float64(dst.Pix[i+2]) + 0.5)
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2] = y, y, y
	}
	return dst, nil
}

// GetName returns the filter name.
func (f *GrayscaleFilter) GetName() string { return "Grayscale" }

// ColorTemperatureFilter shifts the red/blue balance.
type ColorTemperatureFilter struct {
	temperature int // -100 (cool) to +100 (warm)
}

// NewColorTemperatureFilter creates a color temperature filter.
func NewColorTemperatureFilter(temperature int) *ColorTemperatureFilter {
	return &ColorTemperatureFilter{temperature: clampInt(temperature, -100, 100)}
}

// Apply warms (more red, less blue) or cools the image.
func (f *ColorTemperatureFilter) Apply(src *image.RGBA) (*image.RGBA, error) {
	if src == nil {
		return nil, ErrNilImage
	}
	dst := copyImage(src)
	if f.temperature == 0 {
		return dst, nil
	}
	shift := float64(f.temperature) * 0.5
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		dst.Pix[i] = clampByte(float64(dst.Pix[i]) + shift)
		dst.Pix[i+2] = clampByte(float64(dst.Pix[i+2]) - shift)
	}
	return dst, nil
}

// GetName returns the filter name.
func (f *ColorTemperatureFilter) GetName() string {
	switch {
	case f.temperature > 0:
		return fmt.Sprintf("ColorTemperature(Warm%+d)", f.temperature)
	case f.temperature < 0:
		return fmt.Sprintf("ColorTemperature(Cool%+d)", f.temperature)
	default:
		return "ColorTemperature(Neutral)"
	}
}

// BlurFilter applies a box blur.
type BlurFilter struct {
	radius int // 1-5
}

// NewBlurFilter creates a blur filter with specified radius.
// radius: 1-5, larger values create more blur
func NewBlurFilter(radius int) *BlurFilter {
	return &BlurFilter{radius: clampInt(radius, 1, 5)}
}

// Apply blurs every channel, alpha included.
func (f *BlurFilter) Apply(src *image.RGBA) (*image.RGBA, error) {
	if src == nil {
		return nil, ErrNilImage
	}

	dst := copyImage(src)
	b := src.Bounds()

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var sum [4]int
			count := 0

			for dy := -f.radius; dy <= f.radius; dy++ {
				for dx := -f.radius; dx <= f.radius; dx++ {
					p := image.Pt(x+dx, y+dy)
					if !p.In(b) {
						continue
					}
					i := src.PixOffset(p.X, p.Y)
					for c := 0; c < 4; c++ {
						sum[c] += int(src.Pix[i+c])
					}
					count++
				}
			}

			o := dst.PixOffset(x, y)
			for c := 0; c < 4; c++ {
				dst.Pix[o+c] = byte(sum[c] / count)
			}
		}
	}

	return dst, nil
}

// GetName returns the filter name.
func (f *BlurFilter) GetName() string {
	return fmt.Sprintf("Blur(%d)", f.radius)
}

// SharpenFilter applies a 3x3 sharpening kernel.
type SharpenFilter struct {
	strength float64 // 0.0 = no effect, 1.0 = normal, 2.0 = strong
}

// NewSharpenFilter creates a sharpening filter with specified strength.
func NewSharpenFilter(strength float64) *SharpenFilter {
	return &SharpenFilter{strength: clampFloat(strength, 0, 2)}
}

// Apply sharpens R, G and B; edge pixels are left untouched.
func (f *SharpenFilter) Apply(src *image.RGBA) (*image.RGBA, error) {
	if src == nil {
		return nil, ErrNilImage
	}

	dst := copyImage(src)
	b := src.Bounds()

	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			o := src.PixOffset(x, y)
			top := src.PixOffset(x, y-1)
			bottom := src.PixOffset(x, y+1)
			left := src.PixOffset(x-1, y)
			right := src.PixOffset(x+1, y)

			for c := 0; c < 3; c++ {
				sum := float64(src.Pix[o+c]) * (1.0 + 4.0*f.strength)
				sum -= float64(src.Pix[top+c]) * f.strength
				sum -= float64(src.Pix[bottom+c]) * f.strength
				sum -= float64(src.Pix[left+c]) * f.strength
				sum -= float64(src.Pix[right+c]) * f.strength
				dst.Pix[o+c] = clampByte(sum + 0.5)
			}
		}
	}

	return dst, nil
}

// GetName returns the filter name.
func (f *SharpenFilter) GetName() string {
	return fmt.Sprintf("Sharpen(%.2f)", f.strength)
}

// copyImage creates a deep copy of an image, keeping its bounds.
func copyImage(src *image.RGBA) *image.RGBA {
	return &image.RGBA{
		Pix:    append([]uint8(nil), src.Pix...),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
}

func mapRGB(src *image.RGBA, fn func(uint8) uint8) *image.RGBA {
	dst := copyImage(src)
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		dst.Pix[i] = fn(dst.Pix[i])
		dst.Pix[i+1] = fn(dst.Pix[i+1])
		dst.Pix[i+2] = fn(dst.Pix[i+2])
	}
	return dst
}

func clampByte(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
