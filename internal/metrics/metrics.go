// Package metrics exposes Prometheus instrumentation for scan runs:
// per-device lifecycle phase durations and published point counts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PhaseDuration times every device lifecycle call made by the scan
	// loop (prepare, start, trigger, stop, reading, wait_ready).
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scangrid",
			Name:      "device_phase_duration_seconds",
			Help:      "Duration of acquisition device lifecycle phases.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"device", "phase"},
	)

	// PointsPublished counts points emitted per acquisition channel.
	PointsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scangrid",
			Name:      "points_published_total",
			Help:      "Acquisition points published per channel.",
		},
		[]string{"channel"},
	)

	// ScanErrors counts scans that ended in failure.
	ScanErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scangrid",
			Name:      "scan_errors_total",
			Help:      "Scans that terminated with an error.",
		},
	)
)

// ObservePhase starts timing one lifecycle phase; call the returned func
// when the phase ends.
func ObservePhase(device, phase string) func() {
	start := time.Now()
	return func() {
		PhaseDuration.WithLabelValues(device, phase).Observe(time.Since(start).Seconds())
	}
}
