// Package metrics declares the Prometheus collectors shared by the ingestion
// and search paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gitglean"

var (
	// BlobFetchesInFlight is the number of raw blob downloads currently running.
	BlobFetchesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "github",
			Name:      "blob_fetches_in_flight",
			Help:      "Number of raw blob fetches currently in flight",
		},
	)

	// BlobFetchesTotal counts blob downloads.
	// Labels: result (success, retry, error)
	BlobFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "github",
			Name:      "blob_fetches_total",
			Help:      "Total number of raw blob fetch attempts by result",
		},
		[]string{"result"},
	)

	// EmbeddingBatchDuration tracks the latency of a single embeddings request.
	EmbeddingBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "batch_duration_seconds",
			Help:      "Duration of embedding API batch requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// EmbeddingBatchesTotal counts embedding batches.
	// Labels: result (success, error)
	EmbeddingBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "batches_total",
			Help:      "Total number of embedding batches by result",
		},
		[]string{"result"},
	)

	// IngestionsTotal counts repository ingestions.
	// Labels: result (success, error)
	IngestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "ingestions_total",
			Help:      "Total number of repository ingestions by result",
		},
		[]string{"result"},
	)

	// IngestionDuration tracks end-to-end ingestion latency.
	IngestionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "ingestion_duration_seconds",
			Help:      "Duration of repository ingestions in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// ChunksStored counts records written to the vector store.
	ChunksStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "records_written_total",
			Help:      "Total number of chunk records written to the vector store",
		},
	)

	// SearchesTotal counts search requests.
	// Labels: result (success, error)
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retriever",
			Name:      "searches_total",
			Help:      "Total number of semantic searches by result",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal counts API requests.
	// Labels: method, route, status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks API latency.
	// Labels: method, route
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"method", "route"},
	)
)

// Result returns the label value for an operation outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
