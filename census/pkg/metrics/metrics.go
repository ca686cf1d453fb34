package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "census_executor_calls_total",
			Help: "Total number of engine calls run by the executor",
		},
		[]string{"engine", "op", "status"},
	)

	ExecutorCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "census_executor_call_duration_seconds",
			Help:    "Duration of engine calls, excluding queue wait",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"engine", "op"},
	)

	ExecutorQueueWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "census_executor_queue_wait_seconds",
			Help:    "Time jobs spend queued before a worker picks them up",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	ExecutorInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "census_executor_in_flight",
			Help: "Number of engine calls currently running",
		},
	)

	LoaderTablesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "census_loader_tables_total",
			Help: "Total number of tables handled by the loader",
		},
		[]string{"status"}, // "created", "skipped", "failed"
	)

	LoaderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "census_loader_duration_seconds",
			Help:    "Duration of table initialization runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~410s
		},
	)

	CatalogReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "census_catalog_reloads_total",
			Help: "Total number of catalog reloads",
		},
		[]string{"status"},
	)

	StorageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "census_storage_fetches_total",
			Help: "Total number of data file fetches from object storage",
		},
		[]string{"status"}, // "downloaded", "cached", "error"
	)

	StorageFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "census_storage_fetch_duration_seconds",
			Help:    "Duration of data file downloads",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
)

// RecordExecutorCall records metrics for one engine call.
func RecordExecutorCall(engine, op string, duration time.Duration, err error) {
	ExecutorCallsTotal.WithLabelValues(engine, op, Status(err)).Inc()
	ExecutorCallDuration.WithLabelValues(engine, op).Observe(duration.Seconds())
}

// RecordCatalogReload records the outcome of a catalog reload.
func RecordCatalogReload(err error) {
	CatalogReloadsTotal.WithLabelValues(Status(err)).Inc()
}

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
