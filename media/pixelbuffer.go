package media

import (
	"fmt"
	"image"
	"image/color"
)

// PixelBuffer is a planar YUV 4:2:0 image as delivered by capture devices and
// decoders, and as consumed by the video track encoder.
//
// Chroma planes are subsampled by two in both directions, so Width and
// Height are expected to be even.
type PixelBuffer struct {
	Width   int
	Height  int
	Y       []byte // Luminance plane
	U       []byte // Chrominance U (Cb) plane
	V       []byte // Chrominance V (Cr) plane
	YStride int
	UStride int
	VStride int
}

// NewPixelBuffer allocates a buffer with tightly packed planes.
func NewPixelBuffer(width, height int) *PixelBuffer {
	uvWidth := (width + 1) / 2
	uvHeight := (height + 1) / 2
	return &PixelBuffer{
		Width:   width,
		Height:  height,
		Y:       make([]byte, width*height),
		U:       make([]byte, uvWidth*uvHeight),
		V:       make([]byte, uvWidth*uvHeight),
		YStride: width,
		UStride: uvWidth,
		VStride: uvWidth,
	}
}

// Validate checks plane sizes against the dimensions.
func (pb *PixelBuffer) Validate() error {
	if pb == nil {
		return fmt.Errorf("pixel buffer cannot be nil")
	}
	if pb.Width <= 0 || pb.Height <= 0 {
		return fmt.Errorf("invalid pixel buffer dimensions: %dx%d", pb.Width, pb.Height)
	}

	uvHeight := (pb.Height + 1) / 2
	if len(pb.Y) < pb.YStride*(pb.Height-1)+pb.Width {
		return fmt.Errorf("Y plane too small: got %d bytes for %dx%d stride %d",
			len(pb.Y), pb.Width, pb.Height, pb.YStride)
	}
	if pb.UStride != pb.VStride {
		return fmt.Errorf("chroma strides differ: U=%d V=%d", pb.UStride, pb.VStride)
	}
	if len(pb.U) < pb.UStride*uvHeight || len(pb.V) < pb.VStride*uvHeight {
		return fmt.Errorf("chroma planes too small: U=%d V=%d, expected %d",
			len(pb.U), len(pb.V), pb.UStride*uvHeight)
	}
	return nil
}

// Bounds returns the buffer extent with its origin at (0, 0).
func (pb *PixelBuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, pb.Width, pb.Height)
}

// Image wraps the planes, without copying, as an image.YCbCr.
func (pb *PixelBuffer) Image() *image.YCbCr {
	return &image.YCbCr{
		Y:              pb.Y,
		Cb:             pb.U,
		Cr:             pb.V,
		YStride:        pb.YStride,
		CStride:        pb.UStride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           pb.Bounds(),
	}
}

// Draw converts src into the buffer. src is sampled from its own origin, so
// src.Bounds().Min lands on (0, 0); pixels outside src are written black.
func (pb *PixelBuffer) Draw(src image.Image) {
	b := src.Bounds()

	for y := 0; y < pb.Height; y++ {
		row := y * pb.YStride
		for x := 0; x < pb.Width; x++ {
			sx, sy := b.Min.X+x, b.Min.Y+y
			if sx >= b.Max.X || sy >= b.Max.Y {
				pb.Y[row+x] = 0
				continue
			}
			yy, _, _ := color.RGBToYCbCr(rgbAt(src, sx, sy))
			pb.Y[row+x] = yy
		}
	}

	// Chroma is taken from the top-left pixel of each 2x2 block.
	uvWidth := (pb.Width + 1) / 2
	uvHeight := (pb.Height + 1) / 2
	for cy := 0; cy < uvHeight; cy++ {
		for cx := 0; cx < uvWidth; cx++ {
			sx, sy := b.Min.X+cx*2, b.Min.Y+cy*2
			cb, cr := uint8(128), uint8(128)
			if sx < b.Max.X && sy < b.Max.Y {
				_, cb, cr = color.RGBToYCbCr(rgbAt(src, sx, sy))
			}
			pb.U[cy*pb.UStride+cx] = cb
			pb.V[cy*pb.VStride+cx] = cr
		}
	}
}

func rgbAt(src image.Image, x, y int) (uint8, uint8, uint8) {
	if rgba, ok := src.(*image.RGBA); ok {
		i := rgba.PixOffset(x, y)
		return rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2]
	}
	r, g, b, _ := src.At(x, y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

// Clone returns a deep copy.
func (pb *PixelBuffer) Clone() *PixelBuffer {
	return &PixelBuffer{
		Width:   pb.Width,
		Height:  pb.Height,
		YStride: pb.YStride,
		UStride: pb.UStride,
		VStride: pb.VStride,
		Y:       append([]byte(nil), pb.Y...),
		U:       append([]byte(nil), pb.U...),
		V:       append([]byte(nil), pb.V...),
	}
}

// PixelBufferFromImage allocates a buffer the size of img and draws it.
func PixelBufferFromImage(img image.Image) *PixelBuffer {
	b := img.Bounds()
	pb := NewPixelBuffer(b.Dx(), b.Dy())
	pb.Draw(img)
	return pb
}
