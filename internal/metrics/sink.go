package metrics

// Event names accepted by Record.
const (
	EventRequest          = "pipeline_request"
	EventPipelineLatency  = "pipeline_latency_seconds"
	EventCacheHit         = "cache_hit"
	EventCacheMiss        = "cache_miss"
	EventDedupHit         = "dedup_hit"
	EventBatchFlush       = "batch_flush"
	EventRoutingDecision  = "routing_decision"
	EventBackendLatency   = "backend_latency_seconds"
	EventCostSaved        = "cost_saved_usd"
	EventOptimizedCost    = "optimized_cost_usd"
	EventWarmingAttempt   = "warming_attempt"
	EventDegradedFallback = "degraded_fallback"
)

// Sink receives measurement events from the pipeline. Implementations must
// be non-blocking and must never return errors to the caller; a failed
// recording is dropped.
type Sink interface {
	Record(name string, value float64, labels map[string]string)
}

// NopSink drops every event.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(string, float64, map[string]string) {}

// PromSink routes events to the package's Prometheus collectors. Unknown
// event names are dropped silently.
type PromSink struct{}

// NewPromSink returns a sink backed by the process-wide Prometheus
// registry.
func NewPromSink() *PromSink {
	return &PromSink{}
}

// Record implements Sink.
func (*PromSink) Record(name string, value float64, labels map[string]string) {
	switch name {
	case EventRequest:
		PipelineRequests.WithLabelValues(labels["operation"], labels["stage"]).Inc()
	case EventPipelineLatency:
		PipelineLatency.WithLabelValues(labels["operation"]).Observe(value)
	case EventCacheHit:
		CacheHits.WithLabelValues(labels["operation"], labels["kind"]).Inc()
	case EventCacheMiss:
		CacheMisses.WithLabelValues(labels["operation"]).Inc()
	case EventDedupHit:
		DedupHits.WithLabelValues(labels["operation"], labels["rate_limited"]).Inc()
	case EventBatchFlush:
		BatchFlushes.WithLabelValues(labels["operation"]).Inc()
	case EventRoutingDecision:
		RoutingDecisions.WithLabelValues(labels["strategy"], labels["tier"], labels["complexity"]).Inc()
	case EventBackendLatency:
		BackendLatency.WithLabelValues(labels["tier"]).Observe(value)
	case EventCostSaved:
		CostSaved.WithLabelValues(labels["operation"]).Add(value)
	case EventOptimizedCost:
		OptimizedCost.WithLabelValues(labels["operation"]).Add(value)
	case EventWarmingAttempt:
		WarmingAttempts.WithLabelValues(labels["result"]).Inc()
	case EventDegradedFallback:
		DegradedFallbacks.WithLabelValues(labels["operation"], labels["stage"]).Inc()
	}
}
