// Package costwise provides a cost-optimization pipeline for AI-assisted
// e-commerce workloads as a Go library. Requests pass through content-aware
// caching, semantic deduplication, batch accumulation, and complexity-based
// tier routing before any model backend is invoked, so that repeated or
// similar work is served cheaply and only genuinely new work is paid for.
//
// Basic usage:
//
//	pipe, err := costwise.New(
//	    costwise.WithTier(costwise.Tier{
//	        Name:         "economy",
//	        BaseCost:     0.01,
//	        QualityScore: 0.72,
//	        AvgLatencyMs: 800,
//	        Suitability:  []costwise.Complexity{costwise.ComplexitySimple, costwise.ComplexityModerate},
//	        Backend:      economyBackend,
//	    }),
//	    costwise.WithTier(costwise.Tier{
//	        Name:         "premium",
//	        BaseCost:     0.10,
//	        QualityScore: 0.97,
//	        AvgLatencyMs: 2500,
//	        Suitability:  []costwise.Complexity{costwise.ComplexityComplex, costwise.ComplexityExpert},
//	        Default:      true,
//	        Backend:      premiumBackend,
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pipe.Close()
//
//	result, err := pipe.Process(ctx, &costwise.OptimizationRequest{
//	    ID:        uuid.NewString(),
//	    Operation: costwise.OpProductAnalysis,
//	    Content:   "Vintage Canon AE-1 Program 35mm film camera, tested, working meter",
//	    Context:   costwise.RequestContext{Marketplace: "ebay", Category: "cameras"},
//	})
package costwise

import (
	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/errors"
	"github.com/flipsync/costwise/pkg/router"
	"github.com/flipsync/costwise/pkg/types"
)

// Version is the current version of costwise.
const Version = "1.0.0"

// Re-export core request/response types for convenience.
// Users can use costwise.OptimizationRequest instead of types.OptimizationRequest.
type (
	// OptimizationRequest is a single unit of optimizable work.
	OptimizationRequest = types.OptimizationRequest

	// RequestContext carries marketplace metadata that biases routing and caching.
	RequestContext = types.RequestContext

	// PipelineResult is the terminal outcome of one request's pass through the pipeline.
	PipelineResult = types.PipelineResult

	// BackendResponse is the raw outcome of one model backend invocation.
	BackendResponse = types.BackendResponse

	// StreamPlan describes how a response payload should be delivered.
	StreamPlan = types.StreamPlan

	// Usage contains token usage statistics for a backend call.
	Usage = types.Usage

	// OperationKind identifies the kind of AI operation being requested.
	OperationKind = types.OperationKind
)

// Re-export the operation kinds.
const (
	OpProductAnalysis     = types.OpProductAnalysis
	OpListingGeneration   = types.OpListingGeneration
	OpMarketResearch      = types.OpMarketResearch
	OpVisionAnalysis      = types.OpVisionAnalysis
	OpContentOptimization = types.OpContentOptimization
)

// Re-export backend types.
type (
	// Backend executes prompts against a concrete model endpoint.
	Backend = backend.Backend

	// Tier is a priced capability class backed by a model endpoint.
	Tier = backend.Tier

	// Complexity is the assessed difficulty bucket of a request.
	Complexity = backend.Complexity

	// Estimator refines cost and quality projections after a backend call.
	Estimator = backend.Estimator

	// Estimate is an Estimator's adjustment to a backend response.
	Estimate = backend.Estimate
)

// Re-export the complexity buckets.
const (
	ComplexitySimple   = backend.ComplexitySimple
	ComplexityModerate = backend.ComplexityModerate
	ComplexityComplex  = backend.ComplexityComplex
	ComplexityExpert   = backend.ComplexityExpert
)

// Re-export router types.
type (
	// Router selects the cheapest acceptable tier for a request.
	Router = router.Router

	// Strategy identifies a routing strategy.
	Strategy = router.Strategy

	// Decision is the outcome of one routing choice.
	Decision = router.Decision

	// Outcome reports how a routed call actually went.
	Outcome = router.Outcome
)

// Re-export the routing strategies.
const (
	StrategyCostOptimized    = router.StrategyCostOptimized
	StrategyQualityFocused   = router.StrategyQualityFocused
	StrategyPerformanceBased = router.StrategyPerformanceBased
	StrategyAdaptive         = router.StrategyAdaptive
	StrategyBalanced         = router.StrategyBalanced
)

// Re-export error helpers so callers can classify pipeline failures
// without importing the errors package directly.
var (
	IsValidation = errors.IsValidation
	IsCapacity   = errors.IsCapacity
	IsTimeout    = errors.IsTimeout
	IsBackend    = errors.IsBackend
)
