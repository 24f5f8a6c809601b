package writer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videopipeline",
		Subsystem: "writer",
		Name:      "samples_appended_total",
		Help:      "Samples appended to the movie file",
	}, []string{"media"})

	// reason is one of not_ready, pool, render, append, unrouted.
	samplesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "videopipeline",
		Subsystem: "writer",
		Name:      "samples_dropped_total",
		Help:      "Samples dropped by the movie file output",
	}, []string{"media", "reason"})
)
