// Package metrics exposes Prometheus instrumentation for the recorder.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SegmentsTotal counts tasks processed by the segment worker, by outcome
	// (saved, skipped, deferred, failed).
	SegmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsdump",
		Name:      "segments_total",
		Help:      "Segments processed by the primary worker by outcome",
	}, []string{"outcome"})

	// SegmentsMissed counts sequence numbers skipped by playlist gaps.
	SegmentsMissed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hlsdump",
		Name:      "segments_missed_total",
		Help:      "Segments lost to gaps between playlist windows",
	})

	// RetriesTotal counts retry attempts by outcome (saved, skipped, dropped).
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsdump",
		Name:      "retries_total",
		Help:      "Deferred segment retry attempts by outcome",
	}, []string{"outcome"})

	// SegmentBytes counts bytes written to disk.
	SegmentBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hlsdump",
		Name:      "segment_bytes_total",
		Help:      "Bytes of segment data written to disk",
	})

	// SegmentDuration tracks primary download latency.
	SegmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hlsdump",
		Name:      "segment_download_seconds",
		Help:      "Time to download and persist one segment",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20},
	})

	// PlaylistFetches counts manifest fetches by result (ok, error).
	PlaylistFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsdump",
		Name:      "playlist_fetches_total",
		Help:      "Playlist refreshes by result",
	}, []string{"result"})

	// OverflowEpoch reports the current overflow epoch.
	OverflowEpoch = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hlsdump",
		Name:      "overflow_epoch",
		Help:      "Number of server-side sequence resets observed",
	})

	// QueueDepth reports tasks waiting in each queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hlsdump",
		Name:      "queue_depth",
		Help:      "Tasks enqueued but not yet processed",
	}, []string{"queue"})
)

// Outcome labels shared by the workers.
const (
	OutcomeSaved    = "saved"
	OutcomeSkipped  = "skipped"
	OutcomeDeferred = "deferred"
	OutcomeFailed   = "failed"
	OutcomeDropped  = "dropped"
)

// ObserveSegment records the outcome of a primary download.
func ObserveSegment(outcome string) {
	SegmentsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry records the outcome of a retry attempt.
func ObserveRetry(outcome string) {
	RetriesTotal.WithLabelValues(outcome).Inc()
}

// ObservePlaylistFetch records a manifest fetch result.
func ObservePlaylistFetch(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	PlaylistFetches.WithLabelValues(result).Inc()
}

// SetQueueDepth records the depth of the named queue.
func SetQueueDepth(queue string, depth int) {
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}
