package writer

import "errors"

var (
	// ErrPixelBufferPool is returned when the output pixel buffer pool cannot
	// be created for the pipeline size.
	ErrPixelBufferPool = errors.New("cannot create pixel buffer pool")
	// ErrNoRoutes is returned when a movie output is built without tracks.
	ErrNoRoutes = errors.New("movie output needs at least one route")
	// ErrDuplicateRoute is returned when two routes share an ID.
	ErrDuplicateRoute = errors.New("duplicate route")
)
