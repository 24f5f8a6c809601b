// Package filter implements the image filters applied by the render pipeline.
//
// This file defines the Filter capability and the ordered Chain that applies
// filters in sequence, keeping the previous image whenever a filter fails.
package filter

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"
)

// Filter is an opaque image transform.
type Filter interface {
	// Apply processes an image and returns a new one. Implementations must
	// not modify src. A nil image or a non-nil error means the filter produced
	// no output.
	Apply(src *image.RGBA) (*image.RGBA, error)
	// GetName returns the filter name for identification
	GetName() string
}

// FailureError reports a filter that produced no output.
type FailureError struct {
	Index int
	Name  string
	Err   error
}

func (e *FailureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("filter %d (%s) produced no output", e.Index, e.Name)
	}
	return fmt.Sprintf("filter %d (%s) failed: %v", e.Index, e.Name, e.Err)
}

// Unwrap lets errors.Is match ErrFilterFailure and the cause.
func (e *FailureError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFilterFailure}
	}
	return []error{ErrFilterFailure, e.Err}
}

// Chain manages multiple filters applied in sequence. It is safe to mutate
// from one goroutine while another renders through it.
type Chain struct {
	mu      sync.RWMutex
	filters []Filter
}

// NewChain creates a chain with the given filters.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: append([]Filter(nil), filters...)}
}

// Add appends a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = append(c.filters, f)
}

// Set replaces every filter in the chain.
func (c *Chain) Set(filters ...Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = append([]Filter(nil), filters...)
}

// Filters returns a snapshot of the chain.
func (c *Chain) Filters() []Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Filter(nil), c.filters...)
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}

// Clear removes all filters from the chain.
func (c *Chain) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = nil
}

// Apply runs src through every filter in order. The returned image is always
// usable: a failing filter is skipped and its input passed on. Failures are
// reported together as a joined error of *FailureError values.
func (c *Chain) Apply(src *image.RGBA) (*image.RGBA, error) {
	return ApplyAll(c.Filters(), src)
}

// ApplyAll runs src through filters in order with the same best-effort
// semantics as Chain.Apply.
func ApplyAll(filters []Filter, src *image.RGBA) (*image.RGBA, error) {
	current := src
	var failures []error

	for i, f := range filters {
		out, err := f.Apply(current)
		if err != nil || out == nil {
			failure := &FailureError{Index: i, Name: f.GetName(), Err: err}
			logrus.WithFields(logrus.Fields{
				"function": "ApplyAll",
				"index":    i,
				"filter":   f.GetName(),
				"error":    failure.Error(),
			}).Warn("Filter produced no output, keeping previous image")
			failures = append(failures, failure)
			continue
		}
		current = out
	}

	return current, errors.Join(failures...)
}
