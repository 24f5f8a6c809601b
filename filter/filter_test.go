package filter

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/videopipeline/geom"
)

// countingFilter records how often it runs and optionally fails.
type countingFilter struct {
	name  string
	calls int
	fail  bool
	inner Filter
}

func (f *countingFilter) Apply(src *image.RGBA) (*image.RGBA, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("boom")
	}
	if f.inner == nil {
		return copyImage(src), nil
	}
	return f.inner.Apply(src)
}

func (f *countingFilter) GetName() string { return f.name }

func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 200, A: 255})
		}
	}
	return img
}

func TestChainAppliesInOrder(t *testing.T) {
	img := createTestImage(16, 16)
	chain := NewChain(NewBrightnessFilter(10), NewGrayscaleFilter())

	out, err := chain.Apply(img)
	require.NoError(t, err)

	expected, _ := NewBrightnessFilter(10).Apply(img)
	expected, _ = NewGrayscaleFilter().Apply(expected)
	assert.Equal(t, expected.Pix, out.Pix)
	assert.Equal(t, 2, chain.Len())
}

func TestChainKeepsPreviousImageOnFailure(t *testing.T) {
	img := createTestImage(8, 8)
	failing := &countingFilter{name: "broken", fail: true}
	after := &countingFilter{name: "after"}
	chain := NewChain(NewBrightnessFilter(20), failing, after)

	out, err := chain.Apply(img)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFilterFailure)

	var failure *FailureError
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 1, failure.Index)
	assert.Equal(t, "broken", failure.Name)

	expected, _ := NewBrightnessFilter(20).Apply(img)
	assert.Equal(t, expected.Pix, out.Pix, "failed filter is skipped")
	assert.Equal(t, 1, after.calls, "later filters still run")
}

func TestChainMutation(t *testing.T) {
	chain := NewChain()
	chain.Add(NewGrayscaleFilter())
	chain.Add(NewBlurFilter(2))
	assert.Equal(t, 2, chain.Len())

	snapshot := chain.Filters()
	chain.Set(Identity{})
	assert.Len(t, snapshot, 2, "snapshots are independent of later mutation")
	assert.Equal(t, 1, chain.Len())

	chain.Clear()
	assert.Equal(t, 0, chain.Len())
}

func TestFiltersDoNotModifyInput(t *testing.T) {
	filters := []Filter{
		Identity{},
		NewBrightnessFilter(50),
		NewContrastFilter(2),
		NewGrayscaleFilter(),
		NewColorTemperatureFilter(40),
		NewBlurFilter(2),
		NewSharpenFilter(1),
	}

	for _, f := range filters {
		t.Run(f.GetName(), func(t *testing.T) {
			img := createTestImage(12, 10)
			original := append([]uint8(nil), img.Pix...)

			out, err := f.Apply(img)
			require.NoError(t, err)
			assert.Equal(t, img.Bounds(), out.Bounds())
			assert.Equal(t, original, img.Pix)

			_, err = f.Apply(nil)
			assert.ErrorIs(t, err, ErrNilImage)
		})
	}
}

func TestFilterClamping(t *testing.T) {
	assert.Equal(t, "Brightness(+255)", NewBrightnessFilter(1000).GetName())
	assert.Equal(t, "Contrast(3.00)", NewContrastFilter(9).GetName())
	assert.Equal(t, "Blur(5)", NewBlurFilter(50).GetName())
	assert.Equal(t, "Sharpen(0.00)", NewSharpenFilter(-1).GetName())
	assert.Equal(t, "ColorTemperature(Cool-100)", NewColorTemperatureFilter(-300).GetName())
	assert.Equal(t, "ColorTemperature(Neutral)", NewColorTemperatureFilter(0).GetName())
}

func TestGrayscale(t *testing.T) {
	img := createTestImage(4, 4)
	out, err := NewGrayscaleFilter().Apply(img)
	require.NoError(t, err)

	for i := 0; i < len(out.Pix); i += 4 {
		assert.Equal(t, out.Pix[i], out.Pix[i+1])
		assert.Equal(t, out.Pix[i], out.Pix[i+2])
	}
}

func TestRegistry(t *testing.T) {
	f, err := New("Contrast", Params{"factor": 1.5})
	require.NoError(t, err)
	assert.Equal(t, "Contrast(1.50)", f.GetName())

	f, err = New("blur", nil)
	require.NoError(t, err)
	assert.Equal(t, "Blur(1)", f.GetName())

	_, err = New("does-not-exist", nil)
	assert.ErrorIs(t, err, ErrUnknownFilter)

	Register("negate", func(Params) (Filter, error) { return NewContrastFilter(0), nil })
	assert.Contains(t, Names(), "negate")
	assert.Contains(t, Names(), "grayscale")
}

func TestPercentCrop(t *testing.T) {
	img := createTestImage(20, 10)
	firstOut, _ := Identity{}.Apply(img)
	secondOut, _ := NewGrayscaleFilter().Apply(img)

	t.Run("zero percent skips second filter", func(t *testing.T) {
		second := &countingFilter{name: "second", inner: NewGrayscaleFilter()}
		out, err := NewPercentCrop(Identity{}, second, 0).Apply(img)
		require.NoError(t, err)
		assert.Equal(t, firstOut.Pix, out.Pix)
		assert.Equal(t, 0, second.calls)
	})

	t.Run("full percent is second filter", func(t *testing.T) {
		out, err := NewPercentCrop(Identity{}, NewGrayscaleFilter(), 1).Apply(img)
		require.NoError(t, err)
		assert.Equal(t, secondOut.Pix, out.Pix)
	})

	t.Run("half percent splits the frame", func(t *testing.T) {
		out, err := NewPercentCrop(Identity{}, NewGrayscaleFilter(), 0.5).Apply(img)
		require.NoError(t, err)

		for y := 0; y < 10; y++ {
			for x := 0; x < 10; x++ {
				assert.Equal(t, firstOut.RGBAAt(x, y), out.RGBAAt(x, y), "left half at %d,%d", x, y)
			}
			for x := 10; x < 20; x++ {
				assert.Equal(t, secondOut.RGBAAt(x, y), out.RGBAAt(x, y), "right half at %d,%d", x, y)
			}
		}
		assert.NotEqual(t, firstOut.Pix, out.Pix)
	})

	t.Run("nil second is first output", func(t *testing.T) {
		out, err := NewPercentCrop(NewGrayscaleFilter(), nil, 0.7).Apply(img)
		require.NoError(t, err)
		assert.Equal(t, secondOut.Pix, out.Pix)
	})

	t.Run("failing first returns input", func(t *testing.T) {
		out, err := NewPercentCrop(&countingFilter{fail: true}, NewGrayscaleFilter(), 0.5).Apply(img)
		require.NoError(t, err)
		assert.Same(t, img, out)
	})
}

func TestGallery(t *testing.T) {
	g := NewGallery(geom.Sz(100, 50),
		GalleryEntry{Filter: Identity{}, Name: "Original"},
		GalleryEntry{Filter: NewGrayscaleFilter(), Name: "Mono"},
		GalleryEntry{Filter: NewColorTemperatureFilter(50), Name: "Warm"},
	)

	t.Run("page aligned offset shows one page", func(t *testing.T) {
		visible := g.Visible(100)
		require.Len(t, visible, 1)
		assert.Equal(t, "Mono", visible[0].Name)
		assert.Equal(t, geom.R(0, 0, 100, 50), visible[0].Rect)
	})

	t.Run("between pages shows two", func(t *testing.T) {
		visible := g.Visible(125)
		require.Len(t, visible, 2)
		assert.Equal(t, "Mono", visible[0].Name)
		assert.Equal(t, "Warm", visible[1].Name)
		assert.Equal(t, geom.R(-25, 0, 100, 50), visible[0].Rect)
		assert.Equal(t, geom.R(75, 0, 100, 50), visible[1].Rect)
	})

	t.Run("wraps in both directions", func(t *testing.T) {
		entry, ok := g.Entry(-1)
		require.True(t, ok)
		assert.Equal(t, "Warm", entry.Name)
		entry, _ = g.Entry(4)
		assert.Equal(t, "Mono", entry.Name)
	})

	t.Run("crossfade filter", func(t *testing.T) {
		left, right, percent, ok := g.Crossfade(225)
		require.True(t, ok)
		assert.Equal(t, "Warm", left.Name)
		assert.Equal(t, "Original", right.Name)
		assert.InDelta(t, 0.25, percent, 1e-9)

		blend, ok := g.Filter(225).(*PercentCrop)
		require.True(t, ok)
		assert.InDelta(t, 0.25, blend.Percent, 1e-9)

		_, isBlend := g.Filter(200).(*PercentCrop)
		assert.False(t, isBlend)
	})

	t.Run("empty gallery", func(t *testing.T) {
		empty := NewGallery(geom.Sz(10, 10))
		assert.Nil(t, empty.Visible(0))
		assert.Nil(t, empty.Filter(0))
	})
}
