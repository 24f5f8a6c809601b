package media

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultPoolCapacity bounds the number of buffers a pool hands out at once.
const DefaultPoolCapacity = 8

// PixelBufferPool recycles fixed-size pixel buffers for the encode path.
//
// At most capacity buffers can be outstanding; Get fails with
// ErrPoolExhausted instead of allocating without bound when consumers stop
// returning buffers.
type PixelBufferPool struct {
	width    int
	height   int
	capacity int

	mu          sync.Mutex
	free        []*PixelBuffer
	outstanding int
}

// NewPixelBufferPool creates a pool of width x height buffers.
func NewPixelBufferPool(width, height, capacity int) (*PixelBufferPool, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid pool dimensions %dx%d", ErrInvalidDimensions, width, height)
	}
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewPixelBufferPool",
		"width":    width,
		"height":   height,
		"capacity": capacity,
	}).Debug("Creating pixel buffer pool")

	return &PixelBufferPool{
		width:    width,
		height:   height,
		capacity: capacity,
	}, nil
}

// Width returns the width of pooled buffers.
func (p *PixelBufferPool) Width() int { return p.width }

// Height returns the height of pooled buffers.
func (p *PixelBufferPool) Height() int { return p.height }

// Get returns a buffer from the pool, allocating one if none is free.
func (p *PixelBufferPool) Get() (*PixelBuffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.outstanding >= p.capacity {
		return nil, fmt.Errorf("%w: %d buffers outstanding", ErrPoolExhausted, p.outstanding)
	}
	p.outstanding++

	if n := len(p.free); n > 0 {
		pb := p.free[n-1]
		p.free = p.free[:n-1]
		return pb, nil
	}
	return NewPixelBuffer(p.width, p.height), nil
}

// Put returns a buffer to the pool. Buffers of a different size are dropped.
func (p *PixelBufferPool) Put(pb *PixelBuffer) {
	if pb == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.outstanding > 0 {
		p.outstanding--
	}
	if pb.Width != p.width || pb.Height != p.height {
		return
	}
	p.free = append(p.free, pb)
}

// Outstanding returns the number of buffers currently handed out.
func (p *PixelBufferPool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}
