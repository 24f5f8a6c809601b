package filter

import (
	"math"

	"github.com/opd-ai/videopipeline/geom"
)

// GalleryEntry is one page of a filter gallery.
type GalleryEntry struct {
	Filter Filter
	Name   string
}

// VisibleEntry is a gallery page intersecting the viewport, with its
// rectangle in viewport coordinates.
type VisibleEntry struct {
	GalleryEntry
	Page int
	Rect geom.Rect
}

// Gallery maps the offset of a horizontally paged, endlessly wrapping filter
// picker to the filters on screen. Page i spans [i*width, (i+1)*width) in
// content coordinates and shows entry i modulo the number of entries.
type Gallery struct {
	Entries  []GalleryEntry
	PageSize geom.Size
}

// NewGallery creates a gallery whose pages are pageSize large.
func NewGallery(pageSize geom.Size, entries ...GalleryEntry) *Gallery {
	return &Gallery{Entries: entries, PageSize: pageSize}
}

// Entry returns the entry shown on a page, wrapping in both directions.
func (g *Gallery) Entry(page int) (GalleryEntry, bool) {
	n := len(g.Entries)
	if n == 0 {
		return GalleryEntry{}, false
	}
	i := page % n
	if i < 0 {
		i += n
	}
	return g.Entries[i], true
}

// Visible returns the pages intersecting the viewport at the given scroll
// offset, ordered left to right.
func (g *Gallery) Visible(offset float64) []VisibleEntry {
	if len(g.Entries) == 0 || g.PageSize.Width <= 0 {
		return nil
	}

	viewport := geom.R(0, 0, g.PageSize.Width, g.PageSize.Height)
	first := int(math.Floor(offset / g.PageSize.Width))

	var visible []VisibleEntry
	for page := first; page <= first+1; page++ {
		rect := geom.R(float64(page)*g.PageSize.Width-offset, 0, g.PageSize.Width, g.PageSize.Height)
		if !viewport.Intersects(rect) {
			continue
		}
		entry, _ := g.Entry(page)
		visible = append(visible, VisibleEntry{GalleryEntry: entry, Page: page, Rect: rect})
	}
	return visible
}

// Crossfade returns the two pages sharing the viewport and how far (0..1)
// the right page has scrolled in.
func (g *Gallery) Crossfade(offset float64) (left, right GalleryEntry, percent float64, ok bool) {
	if len(g.Entries) == 0 || g.PageSize.Width <= 0 {
		return GalleryEntry{}, GalleryEntry{}, 0, false
	}

	page := math.Floor(offset / g.PageSize.Width)
	percent = offset/g.PageSize.Width - page

	left, _ = g.Entry(int(page))
	right, _ = g.Entry(int(page) + 1)
	return left, right, percent, true
}

// Filter returns the crop-blend filter matching what the viewport shows at
// the given offset, or nil for an empty gallery.
func (g *Gallery) Filter(offset float64) Filter {
	left, right, percent, ok := g.Crossfade(offset)
	if !ok {
		return nil
	}
	if percent == 0 {
		return left.Filter
	}
	return NewPercentCrop(left.Filter, right.Filter, percent)
}
