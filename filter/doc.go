// Package filter provides the image filters applied by the render pipeline.
//
// A Filter is an opaque image-to-image transform. Filters are identified by
// name and built from a parameter bag, so configuration files and galleries
// never depend on concrete types:
//
//	f, err := filter.New("contrast", filter.Params{"factor": 1.4})
//	if err != nil {
//	    return err
//	}
//	chain := filter.NewChain(f, filter.NewGrayscaleFilter())
//
// A Chain applies its filters in order. A filter that produces no output is
// skipped: the chain keeps the previous image and reports the failure
// through a joined error wrapping ErrFilterFailure, so rendering always
// degrades gracefully.
//
// # Built-in Filters
//
//   - identity: copies its input
//   - brightness (adjustment): -255..255
//   - contrast (factor): 0..3
//   - grayscale
//   - temperature (temperature): -100 (cool) .. 100 (warm)
//   - blur (radius): 1..5 box blur
//   - sharpen (strength): 0..2
//
// # Comparison Blending
//
// PercentCrop shows a second filter over the right-hand part of the frame,
// which is what a swipeable filter gallery displays while a page is only
// partly scrolled in. Gallery maps a scroll offset to that blend.
package filter
