// Package types defines core data structures for the cost-optimization
// pipeline: optimization requests, backend responses, and pipeline results.
package types

import (
	"fmt"
	"time"
)

// OperationKind classifies the business operation a request belongs to.
// Each kind has its own batching behavior, cache population, and merge
// strategy.
type OperationKind string

const (
	OpProductAnalysis     OperationKind = "product_analysis"
	OpListingGeneration   OperationKind = "listing_generation"
	OpMarketResearch      OperationKind = "market_research"
	OpVisionAnalysis      OperationKind = "vision_analysis"
	OpContentOptimization OperationKind = "content_optimization"
)

// Priority indicates how urgently a request should be handled.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// RequestContext carries business context that influences caching, routing,
// and warming decisions. Only Marketplace and Category participate in key
// derivation.
type RequestContext struct {
	Marketplace        string   `json:"marketplace,omitempty"`
	Category           string   `json:"category,omitempty"`
	QualityRequirement float64  `json:"quality_requirement,omitempty"`
	Priority           Priority `json:"priority,omitempty"`
}

// OptimizationRequest is a single unit of work submitted to the pipeline.
// It is immutable once submitted.
type OptimizationRequest struct {
	ID        string         `json:"id"`
	Operation OperationKind  `json:"operation"`
	Content   string         `json:"content"`
	Context   RequestContext `json:"context"`
}

// Validate checks that the request is well formed.
func (r *OptimizationRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("request is nil")
	}
	if r.Operation == "" {
		return fmt.Errorf("operation is required")
	}
	if r.Content == "" {
		return fmt.Errorf("content is required")
	}
	if q := r.Context.QualityRequirement; q < 0 || q > 1 {
		return fmt.Errorf("quality_requirement %v out of range [0,1]", q)
	}
	return nil
}

// Usage contains token accounting reported by the backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// BackendResponse is the opaque result of one backend invocation.
type BackendResponse struct {
	Content string  `json:"content"`
	Usage   Usage   `json:"usage"`
	Cost    float64 `json:"cost"`
	Quality float64 `json:"quality"`
	Model   string  `json:"model,omitempty"`
	Latency time.Duration
}

// Stage names recorded in PipelineResult.AppliedStages. The orchestrator
// appends a stage name exactly when that stage influenced the outcome.
const (
	StageReceived         = "received"
	StageDedupCheck       = "dedup_check"
	StageCacheCheck       = "cache_check"
	StageCacheHit         = "cache_hit"
	StageBatch            = "batch"
	StageRoute            = "route"
	StageBackendCall      = "backend_call"
	StageStreamPlan       = "stream_plan"
	StageCacheStore       = "cache_store"
	StageDegradedFallback = "degraded_fallback"
)

// PipelineResult is the terminal outcome of one request's trip through the
// pipeline. OptimizedCost is never greater than OriginalCost.
type PipelineResult struct {
	RequestID     string        `json:"request_id"`
	Payload       string        `json:"payload"`
	QualityScore  float64       `json:"quality_score"`
	OriginalCost  float64       `json:"original_cost"`
	OptimizedCost float64       `json:"optimized_cost"`
	CostSaved     float64       `json:"cost_saved"`
	AppliedStages []string      `json:"applied_stages"`
	CacheHit      bool          `json:"cache_hit"`
	Batched       bool          `json:"batched"`
	Deduplicated  bool          `json:"deduplicated"`
	StreamPlan    *StreamPlan   `json:"stream_plan,omitempty"`
	Elapsed       time.Duration `json:"-"`
}

// StreamPlan describes how the payload should be delivered to the client.
// It is produced by the stream planner after a backend call.
type StreamPlan struct {
	Strategy  string `json:"strategy"` // direct, compressed, chunked, compressed_chunked
	Codec     string `json:"codec"`    // none, gzip, zstd
	ChunkSize int    `json:"chunk_size,omitempty"`
}
