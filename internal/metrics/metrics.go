package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters. Low-confidence discards are a designed outcome, so
// they are counted here rather than surfaced as errors.
var (
	DetectionsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "platewatch",
		Name:      "detections_discarded_total",
		Help:      "Raw detections dropped below the confidence floor.",
	})
	DetectionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "platewatch",
		Name:      "detections_created_total",
		Help:      "Detection rows created.",
	})
	DetectionsRefined = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "platewatch",
		Name:      "detections_refined_total",
		Help:      "In-window detections refined by a higher-confidence observation.",
	})
	DetectionsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "platewatch",
		Name:      "detections_suppressed_total",
		Help:      "Raw detections dropped as duplicates inside the dedup window.",
	})
	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platewatch",
		Name:      "alerts_raised_total",
		Help:      "Alerts created, by type.",
	}, []string{"type"})
	AlertsUpdated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platewatch",
		Name:      "alerts_updated_total",
		Help:      "Open alerts relinked to a newer detection, by type.",
	}, []string{"type"})
)
