// Package metrics defines the Prometheus instrumentation for the indexer.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openrd_events_processed_total",
			Help: "Total number of contract events reduced into the materialized view",
		},
		[]string{"chain", "event_type"},
	)

	DuplicateEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openrd_duplicate_events_total",
			Help: "Total number of redelivered events skipped by the idempotency gate",
		},
		[]string{"chain"},
	)

	DecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openrd_decode_failures_total",
			Help: "Total number of logs rejected because their shape did not match the expected ABI",
		},
		[]string{"chain"},
	)

	ReducerWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openrd_reducer_warnings_total",
			Help: "Total number of referential anomalies recovered with a partial or no-op effect",
		},
		[]string{"event_type"},
	)

	LastSeenBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "openrd_last_seen_block",
			Help: "Highest block number seen by the live watcher per chain",
		},
		[]string{"chain"},
	)

	// Enrichment metrics
	EnrichmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openrd_enrichment_failures_total",
			Help: "Total number of best-effort enrichment calls that failed",
		},
		[]string{"kind"},
	)

	// Storage metrics
	storePersistDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openrd_store_persist_duration_seconds",
			Help:    "Duration of collection persistence writes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	StorePersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openrd_store_persist_failures_total",
			Help: "Total number of failed collection persistence writes",
		},
		[]string{"collection"},
	)

	// Backfill metrics
	BackfillLogsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openrd_backfill_logs_processed_total",
			Help: "Total number of logs replayed through history sync",
		},
		[]string{"chain"},
	)

	// System metrics
	goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "openrd_goroutines",
			Help: "Number of goroutines",
		},
	)

	memAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "openrd_memory_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)
)

// StorePersistTimer returns a timer observing into the persist duration
// histogram for one collection.
func StorePersistTimer(collection string) *prometheus.Timer {
	return prometheus.NewTimer(storePersistDuration.WithLabelValues(collection))
}

// UpdateSystemMetrics refreshes the process-level gauges.
func UpdateSystemMetrics() {
	goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memAllocBytes.Set(float64(m.Alloc))
}
