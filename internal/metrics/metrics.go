package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "blockprop"

	// Metrics names.
	MetricNameBuildInfo          = Namespace + "_build_info"
	MetricNameErrors             = Namespace + "_errors_total"
	MetricNamePartitionFetches   = Namespace + "_partition_fetches_total"
	MetricNameCacheHits          = Namespace + "_partition_cache_hits_total"
	MetricNameCacheCorruptions   = Namespace + "_partition_cache_corruptions_total"
	MetricNameDownloadDuration   = Namespace + "_partition_download_duration_seconds"
	MetricNameDownloadBytes      = Namespace + "_partition_download_bytes_total"
	MetricNameNormalizedRows     = Namespace + "_normalized_rows_total"
	MetricNameReportCacheLookups = Namespace + "_report_cache_lookups_total"

	// Labels.
	LabelVersion   = "version"
	LabelCommit    = "commit"
	LabelDate      = "date"
	LabelErrorType = "error_type"
	LabelNetwork   = "network"
	LabelStatus    = "status"
	LabelLayer     = "layer"
	LabelResult    = "result"

	// Error types.
	ErrorTypeDownload    = "download"
	ErrorTypeDecode      = "decode"
	ErrorTypeCacheWrite  = "cache_write"
	ErrorTypeCacheRemove = "cache_remove"
	ErrorTypeNormalize   = "normalize"

	// Cache layers.
	CacheLayerMemory = "memory"
	CacheLayerDisk   = "disk"

	// Report cache lookup results.
	LookupHit    = "hit"
	LookupMiss   = "miss"
	LookupBypass = "bypass"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricNameBuildInfo,
			Help: "Build information of blockprop",
		},
		[]string{LabelVersion, LabelCommit, LabelDate},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameErrors,
			Help: "Number of errors encountered",
		},
		[]string{LabelErrorType},
	)

	PartitionFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNamePartitionFetches,
			Help: "Number of partition fetches by outcome",
		},
		[]string{LabelNetwork, LabelStatus},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameCacheHits,
			Help: "Number of partition fetches served from a cache layer",
		},
		[]string{LabelLayer},
	)

	CacheCorruptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameCacheCorruptions,
			Help: "Number of unreadable or empty cache files removed",
		},
	)

	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricNameDownloadDuration,
			Help:    "Duration of partition downloads",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{LabelNetwork},
	)

	DownloadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameDownloadBytes,
			Help: "Number of partition bytes downloaded",
		},
		[]string{LabelNetwork},
	)

	NormalizedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameNormalizedRows,
			Help: "Number of observations normalized",
		},
		[]string{LabelNetwork},
	)

	ReportCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameReportCacheLookups,
			Help: "Number of processed report cache lookups by result",
		},
		[]string{LabelResult},
	)
)
