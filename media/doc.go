// Package media defines the data that flows between capture devices, the
// render pipeline and the movie writer.
//
// # Time
//
// Timestamps are rational (Value/Scale seconds) so that frame rates such as
// 30000/1001 are represented exactly. The zero Time is invalid and is used to
// mean "not set yet":
//
//	var start media.Time
//	if !start.IsValid() {
//	    start = sample.PTS
//	}
//
// TimeRange is half open, so adjacent ranges never both contain the same
// instant.
//
// # Sample Buffers
//
// A SampleBuffer carries either a YUV 4:2:0 PixelBuffer (video) or an
// AudioBuffer (audio) together with its presentation timestamp. Pixel
// buffers used for encoding come from a bounded PixelBufferPool.
package media
