package render

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Per-pipeline frame counters.
	framesRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videopipeline",
		Subsystem: "render",
		Name:      "frames_rendered_total",
		Help:      "Frames that passed the admission gate and were fanned out",
	}, []string{"pipeline"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videopipeline",
		Subsystem: "render",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped because a render was already in flight",
	}, []string{"pipeline"})

	framesEncoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videopipeline",
		Subsystem: "render",
		Name:      "frames_encoded_total",
		Help:      "Frames rendered into caller supplied pixel buffers",
	}, []string{"pipeline"})

	filterFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videopipeline",
		Subsystem: "render",
		Name:      "filter_failures_total",
		Help:      "Filters that produced no output; the previous image was kept",
	}, []string{"pipeline"})

	surfaceFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "videopipeline",
		Subsystem: "render",
		Name:      "surface_frames_dropped_total",
		Help:      "Frames a surface skipped because its previous frame was still being presented",
	})
)
