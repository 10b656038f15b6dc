package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripweather_upstream_calls_total",
			Help: "Total forecast provider calls",
		},
		[]string{"provider", "model", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripweather_upstream_latency_seconds",
			Help:    "Forecast provider call latency in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)

	FallbackMergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripweather_fallback_merges_total",
			Help: "Total fallback model merges into a primary forecast",
		},
		[]string{"model", "fallback_model"},
	)

	QualityFlagsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripweather_quality_flags_total",
			Help: "Total implausible upstream values dropped",
		},
		[]string{"provider", "flag"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripweather_cache_lookups_total",
			Help: "Total forecast cache lookups",
		},
		[]string{"result"},
	)

	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripweather_cache_evictions_total",
			Help: "Total forecast cache entries evicted for capacity",
		},
	)

	ChangesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripweather_changes_detected_total",
			Help: "Total forecast changes detected against baselines",
		},
		[]string{"severity"},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripweather_alerts_total",
			Help: "Total alert decisions by outcome",
		},
		[]string{"outcome"},
	)

	TripChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripweather_trip_checks_total",
			Help: "Total per-trip checks by outcome",
		},
		[]string{"outcome"},
	)

	TripsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripweather_trips_skipped_total",
			Help: "Total trips skipped because the trip definition was invalid",
		},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tripweather_batch_duration_seconds",
			Help:    "Duration of a full batch run over all trips",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)
