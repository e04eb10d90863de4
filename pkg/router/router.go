// Package router provides the public routing contract. A router assesses
// request complexity, filters backend tiers by suitability, and selects one
// tier according to its strategy. Strategies include cost-optimized,
// quality-focused, performance-based, adaptive, and balanced selection.
package router

import (
	"context"
	"time"

	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/types"
)

// Strategy defines the tier selection strategy type.
type Strategy string

const (
	// StrategyCostOptimized selects the suitable tier with lowest base cost.
	StrategyCostOptimized Strategy = "cost_optimized"

	// StrategyQualityFocused selects the suitable tier with highest quality
	// score.
	StrategyQualityFocused Strategy = "quality_focused"

	// StrategyPerformanceBased selects the suitable tier with lowest
	// latency, preferring observed latency over the declared baseline.
	StrategyPerformanceBased Strategy = "performance_based"

	// StrategyAdaptive selects by trailing composite score built from
	// success rate, cost efficiency, and delivered quality. Tiers without
	// history fall back to their declared properties.
	StrategyAdaptive Strategy = "adaptive"

	// StrategyBalanced blends normalized cost, quality, and latency. The
	// quality weight grows when the request demands high quality.
	StrategyBalanced Strategy = "balanced"
)

// Request carries the routing inputs for one optimization request.
type Request struct {
	// Operation is the business operation being routed.
	Operation types.OperationKind

	// Content is the prompt payload, used for complexity scoring.
	Content string

	// Context is the optional business context of the request.
	Context *types.RequestContext

	// QualityRequirement is the minimum acceptable quality in [0, 1].
	QualityRequirement float64
}

// Decision is the outcome of one routing call. It is computed per request
// and not persisted beyond it.
type Decision struct {
	// Tier is the selected backend tier.
	Tier *backend.Tier

	// Complexity is the assessed complexity bucket.
	Complexity backend.Complexity

	// EstimatedCost is the expected spend for this request on the tier.
	EstimatedCost float64

	// EstimatedQuality is the expected delivered quality in [0, 1].
	EstimatedQuality float64

	// Confidence reflects trailing success rate and quality variance of
	// the chosen tier. Tiers without history get a default mid value.
	Confidence float64

	// Strategy is the strategy that produced this decision.
	Strategy Strategy
}

// Outcome reports what actually happened after a routed backend call.
// Feeding outcomes back keeps adaptive and balanced scoring current.
type Outcome struct {
	// Tier is the name of the tier that served the request.
	Tier string

	// Success is false when the backend call failed.
	Success bool

	// Cost is the actual spend.
	Cost float64

	// Quality is the delivered quality in [0, 1].
	Quality float64

	// Latency is the backend call duration.
	Latency time.Duration
}

// TierStats is a snapshot of the trailing performance history for one tier.
type TierStats struct {
	TotalRequests int64
	SuccessCount  int64
	FailureCount  int64

	SuccessRate     float64
	AvgLatencyMs    float64
	AvgCost         float64
	AvgQuality      float64
	QualityVariance float64

	LastRequestTime time.Time
}

// Router selects the best backend tier for a request.
type Router interface {
	// Route assesses complexity and selects a tier by strategy.
	Route(ctx context.Context, req *Request) (*Decision, error)

	// RecordOutcome records the actual result of a routed call.
	RecordOutcome(out *Outcome)

	// AddTier registers a backend tier.
	AddTier(tier *backend.Tier)

	// RemoveTier removes a tier by name.
	RemoveTier(name string)

	// Tiers returns all registered tiers.
	Tiers() []*backend.Tier

	// Stats returns the trailing stats for a tier, or nil if unknown.
	Stats(name string) *TierStats

	// Strategy returns the active selection strategy.
	Strategy() Strategy
}

// Config contains router configuration options.
type Config struct {
	// Strategy determines how tiers are selected.
	Strategy Strategy `yaml:"strategy"`

	// HistoryWindow is the number of trailing samples kept per tier.
	// Default: 50.
	HistoryWindow int `yaml:"history_window"`

	// DefaultConfidence is reported for tiers without history.
	// Default: 0.5.
	DefaultConfidence float64 `yaml:"default_confidence"`

	// HighQualityBar is the quality requirement above which the balanced
	// strategy shifts weight toward quality. Default: 0.9.
	HighQualityBar float64 `yaml:"high_quality_bar"`

	// EWMAAlpha is the smoothing factor for the latency moving average.
	// Default: 0.3.
	EWMAAlpha float64 `yaml:"ewma_alpha"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:          StrategyBalanced,
		HistoryWindow:     50,
		DefaultConfidence: 0.5,
		HighQualityBar:    0.9,
		EWMAAlpha:         0.3,
	}
}
