// Package metrics exposes Prometheus instrumentation for the ingest and
// layout pipelines. All metrics register through promauto at init time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsIngested counts items accepted into a graph, labeled by outcome
	// (ingested, duplicate, failed).
	ItemsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skein_items_ingested_total",
			Help: "Total number of items processed by the ingest pipeline",
		},
		[]string{"outcome"},
	)

	// IngestDuration measures the transactional part of ingest, excluding
	// embedding and classification round trips.
	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skein_ingest_duration_seconds",
			Help:    "Duration of the ingest transaction in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
	)

	// TopicsResolved counts batch topic resolutions by how each label landed.
	TopicsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skein_topics_resolved_total",
			Help: "Topic resolutions by outcome (exact, merged, minted)",
		},
		[]string{"outcome"},
	)

	// EdgesCreated counts typed edges inserted by the edge builder.
	EdgesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skein_edges_created_total",
			Help: "Topic edges created, labeled by edge type",
		},
		[]string{"edge_type"},
	)

	// ClassifierCalls counts relationship classifier invocations by result
	// (ok, malformed, error).
	ClassifierCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skein_classifier_calls_total",
			Help: "Relationship classifier calls by result",
		},
		[]string{"result"},
	)

	// ProjectionRuns counts background layout runs by result.
	ProjectionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skein_projection_runs_total",
			Help: "Graph projection runs by result (ok, error)",
		},
		[]string{"result"},
	)

	// ProjectionDuration measures a full PCA plus layout pass.
	ProjectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skein_projection_duration_seconds",
			Help:    "Duration of a full graph projection in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// GraphTopics tracks the number of topics per graph.
	GraphTopics = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skein_graph_topics",
			Help: "Number of topics currently in a graph",
		},
		[]string{"graph"},
	)
)
