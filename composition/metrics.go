package composition

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesComposed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "videopipeline",
		Subsystem: "composition",
		Name:      "frames_composed_total",
		Help:      "Total number of output frames composed",
	})

	composeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "videopipeline",
		Subsystem: "composition",
		Name:      "compose_failures_total",
		Help:      "Total number of output frames that failed to compose",
	})

	composeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "videopipeline",
		Subsystem: "composition",
		Name:      "compose_duration_seconds",
		Help:      "Time spent composing one output frame",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)
