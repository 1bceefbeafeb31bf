// Package metrics provides Prometheus metrics for the peerbeam client.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Browser cache metrics
	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerbeam_cache_hits_total",
			Help: "Total cache hits by cache name",
		},
		[]string{"cache"},
	)

	cacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerbeam_cache_misses_total",
			Help: "Total cache misses by cache name",
		},
		[]string{"cache"},
	)

	cacheEntriesSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerbeam_cache_entries_swept_total",
			Help: "Total expired entries removed by sweeps",
		},
		[]string{"cache"},
	)

	// Preload metrics
	preloadQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peerbeam_preload_queue_depth",
			Help: "Number of paths waiting for preload",
		},
	)

	preloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerbeam_preloads_total",
			Help: "Total preload warm-ups",
		},
		[]string{"status"},
	)

	preloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peerbeam_preload_duration_seconds",
			Help:    "Preload warm-up duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	navigationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerbeam_navigations_total",
			Help: "Total browser navigations",
		},
		[]string{"result"},
	)

	// Index metrics
	indexQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peerbeam_index_query_duration_seconds",
			Help:    "Index repository query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	indexChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerbeam_index_changes_total",
			Help: "Total folder change events published",
		},
		[]string{"folder"},
	)

	// Scanner metrics
	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peerbeam_scan_duration_seconds",
			Help:    "Full directory scan duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	scanFilesIndexed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peerbeam_scan_files_indexed",
			Help: "Number of records found by the last scan",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCacheHit records a hit on the named cache.
func RecordCacheHit(cache string) {
	cacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a miss on the named cache.
func RecordCacheMiss(cache string) {
	cacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordCacheSweep records expired entries removed from the named cache.
func RecordCacheSweep(cache string, removed int) {
	if removed > 0 {
		cacheEntriesSwept.WithLabelValues(cache).Add(float64(removed))
	}
}

// SetPreloadQueueDepth sets the current preload queue depth.
func SetPreloadQueueDepth(depth int) {
	preloadQueueDepth.Set(float64(depth))
}

// RecordPreload records a completed preload warm-up.
func RecordPreload(duration time.Duration, success bool) {
	preloadDuration.Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	preloadsTotal.WithLabelValues(status).Inc()
}

// RecordNavigation records a browser navigation attempt.
func RecordNavigation(success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	navigationsTotal.WithLabelValues(result).Inc()
}

// RecordIndexQuery records an index repository query duration.
func RecordIndexQuery(query string, duration time.Duration) {
	indexQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// RecordIndexChange records a published folder change event.
func RecordIndexChange(folder string) {
	indexChangesTotal.WithLabelValues(folder).Inc()
}

// RecordScan records a completed directory scan.
func RecordScan(duration time.Duration, files int) {
	scanDuration.Observe(duration.Seconds())
	scanFilesIndexed.Set(float64(files))
}
