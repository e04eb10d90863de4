// Package backend defines the public interface for generative-AI backends.
// The pipeline treats backends as opaque collaborators: it decides whether
// and where to send a request, never what the backend computes.
package backend

import (
	"context"

	"github.com/flipsync/costwise/pkg/types"
)

// Complexity is a coarse classification of request difficulty used to filter
// candidate tiers.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityExpert   Complexity = "expert"
)

// Backend executes a prompt against an external generative-AI service.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name returns the backend identifier (e.g. "gpt-4o-mini").
	Name() string

	// Invoke sends the prompt to the backend and returns its response.
	// The complexity hint lets multi-model backends pick an internal
	// configuration; single-model backends may ignore it.
	Invoke(ctx context.Context, prompt, systemPrompt string, complexity Complexity) (*types.BackendResponse, error)
}

// Tier describes one routable backend together with its declared cost,
// quality, and suitability characteristics.
type Tier struct {
	Name string `json:"name"`

	// BaseCost is the average cost in USD of one call to this tier.
	BaseCost float64 `json:"base_cost"`

	// QualityScore is the declared response adequacy of this tier in [0,1].
	QualityScore float64 `json:"quality_score"`

	// AvgLatencyMs is the declared average call latency.
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	// Suitability lists the complexity buckets this tier handles well.
	Suitability []Complexity `json:"suitability"`

	// Default marks the mid-tier fallback used when no tier's suitability
	// matches the assessed complexity.
	Default bool `json:"default,omitempty"`

	Backend Backend `json:"-"`
}

// Suitable reports whether the tier declares support for the given bucket.
func (t *Tier) Suitable(c Complexity) bool {
	for _, s := range t.Suitability {
		if s == c {
			return true
		}
	}
	return false
}

// Estimate is the output of a cost/quality multiplier provider.
type Estimate struct {
	CostMultiplier float64 `json:"cost_multiplier"`
	QualityDelta   float64 `json:"quality_delta"`
}

// Estimator adjusts cost and quality figures after a successful backend
// call. It stands in for prompt-optimization and fine-tuning-simulation
// modules, which the pipeline treats as pluggable multiplier providers.
// Estimates are applied only after a successful call, never before caching
// decisions.
type Estimator interface {
	Estimate(ctx context.Context, op types.OperationKind, content string, reqCtx types.RequestContext) Estimate
}
