package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_cache",
		Name:      "hits_total",
		Help:      "Total cache hits by cache name (segments, thumbnail, sheet).",
	}, []string{"cache"})

	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_cache",
		Name:      "misses_total",
		Help:      "Total cache misses by cache name.",
	}, []string{"cache"})

	CacheGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "media_cache",
		Name:      "generation_duration_seconds",
		Help:      "Duration of artifact generation by cache name.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"cache"})

	CacheGenerationFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_cache",
		Name:      "generation_failures_total",
		Help:      "Total artifact generation failures by cache name.",
	}, []string{"cache"})

	CacheEvictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_cache",
		Name:      "evictions_total",
		Help:      "Total entries evicted by cache name.",
	}, []string{"cache"})

	CacheSizeBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "media_cache",
		Name:      "size_bytes",
		Help:      "Current total size of a cache's entries in bytes.",
	}, []string{"cache"})

	CacheEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "media_cache",
		Name:      "entries",
		Help:      "Current number of entries in a cache.",
	}, []string{"cache"})

	TaskPoolInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "media_cache",
		Name:      "task_pool_in_flight",
		Help:      "Number of generation jobs currently holding a task-pool permit.",
	})

	TaskPoolWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "media_cache",
		Name:      "task_pool_wait_duration_seconds",
		Help:      "Time spent waiting for a task-pool permit before generation starts.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})

	HardwareDevicesInUse = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "media_cache",
		Name:      "hardware_devices_in_use",
		Help:      "Number of hardware devices currently borrowed from a backend's device pool.",
	}, []string{"backend"})

	HardwareDevicesFree = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "media_cache",
		Name:      "hardware_devices_free",
		Help:      "Number of idle hardware devices sitting in a backend's device pool freelist.",
	}, []string{"backend"})

	HLSSegmentDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "media_cache",
		Name:      "hls_segment_transcode_duration_seconds",
		Help:      "Duration of HLS segment transcoding by ladder rung.",
		Buckets:   []float64{0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"rung"})

	ThumbnailExtractDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "media_cache",
		Name:      "thumbnail_extract_duration_seconds",
		Help:      "Duration of still-thumbnail extraction.",
		Buckets:   []float64{0.1, 0.3, 0.5, 1, 2, 5},
	})

	SpriteSheetGenerateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "media_cache",
		Name:      "sprite_sheet_generate_duration_seconds",
		Help:      "Duration of sprite-sheet generation.",
		Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120},
	})

	MetadataFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "media_cache",
		Name:      "metadata_fetch_duration_seconds",
		Help:      "Duration of a per-file metadata fetch by metadata kind (basic, advanced).",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"kind"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_cache",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route, and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "media_cache",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"method", "route"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		CacheHitsTotal,
		CacheMissesTotal,
		CacheGenerationDuration,
		CacheGenerationFailuresTotal,
		CacheEvictionsTotal,
		CacheSizeBytes,
		CacheEntries,
		TaskPoolInFlight,
		TaskPoolWaitDuration,
		HardwareDevicesInUse,
		HardwareDevicesFree,
		HLSSegmentDuration,
		ThumbnailExtractDuration,
		SpriteSheetGenerateDuration,
		MetadataFetchDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
