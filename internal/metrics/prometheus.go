// Package metrics provides Prometheus metrics for the optimization pipeline
// and a fire-and-forget sink facade. The pipeline records through the sink
// and never awaits or fails on it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "costwise"

// LatencyBuckets defines histogram buckets for latency metrics in seconds.
// Generative backends routinely take multiple seconds, so the tail is long.
var LatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1.0, 1.5, 2.0, 3.0, 4.0, 5.0, 7.5, 10.0,
	15.0, 30.0, 60.0, 120.0,
}

var (
	// PipelineRequests counts requests by operation and terminal stage.
	PipelineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_requests_total",
			Help:      "Total requests processed, by operation and terminal stage",
		},
		[]string{"operation", "stage"},
	)

	// PipelineLatency tracks end-to-end pipeline latency.
	PipelineLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_latency_seconds",
			Help:      "End-to-end pipeline latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"operation"},
	)

	// CacheHits counts cache hits by operation and match kind.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache hits, by operation and match kind (exact or similarity)",
		},
		[]string{"operation", "kind"},
	)

	// CacheMisses counts cache misses by operation.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache misses, by operation",
		},
		[]string{"operation"},
	)

	// DedupHits counts deduplicated requests.
	DedupHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_duplicates_total",
			Help:      "Requests short-circuited as duplicates, by operation",
		},
		[]string{"operation", "rate_limited"},
	)

	// BatchFlushes counts batch flushes by operation.
	BatchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_flushes_total",
			Help:      "Batch slot flushes, by operation",
		},
		[]string{"operation"},
	)

	// RoutingDecisions counts routing decisions by strategy, tier, and
	// assessed complexity.
	RoutingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Routing decisions, by strategy, tier, and complexity",
		},
		[]string{"strategy", "tier", "complexity"},
	)

	// BackendLatency tracks backend call latency by tier.
	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_seconds",
			Help:      "Backend call latency in seconds, by tier",
			Buckets:   LatencyBuckets,
		},
		[]string{"tier"},
	)

	// CostSaved accumulates saved spend in USD by operation.
	CostSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_saved_usd_total",
			Help:      "Accumulated cost saved in USD, by operation",
		},
		[]string{"operation"},
	)

	// OptimizedCost accumulates actual spend in USD by operation.
	OptimizedCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimized_cost_usd_total",
			Help:      "Accumulated actual spend in USD, by operation",
		},
		[]string{"operation"},
	)

	// WarmingAttempts counts cache warming attempts by result.
	WarmingAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warming_attempts_total",
			Help:      "Cache warming attempts, by result",
		},
		[]string{"result"},
	)

	// DegradedFallbacks counts requests served via the degraded direct
	// path, by operation and the stage that failed.
	DegradedFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_fallbacks_total",
			Help:      "Requests served via the degraded direct path, by operation and failed stage",
		},
		[]string{"operation", "stage"},
	)
)
