package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImportsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_importer_imports_started_total",
		Help: "Total number of imports started",
	})

	ImportsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_importer_imports_completed_total",
		Help: "Total number of imports completed successfully",
	})

	ImportsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_importer_imports_failed_total",
		Help: "Total number of imports that ended in failure",
	})

	ImportsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_importer_imports_cancelled_total",
		Help: "Total number of imports cancelled by the user",
	})

	ImportsResumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_importer_imports_resumed_total",
		Help: "Total number of imports resumed from a persisted job record",
	})

	PollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_importer_polls_total",
		Help: "Total number of job status polls",
	})

	PollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_importer_poll_errors_total",
		Help: "Total number of transient poll failures",
	})

	ImportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "media_importer_import_duration_seconds",
		Help:    "End-to-end import duration in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_importer_download_bytes_total",
		Help: "Total artifact bytes downloaded",
	})
)
