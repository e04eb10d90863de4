package routers

import (
	"context"

	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/router"
)

// Balanced blend weights. The high-quality set applies when the request's
// quality requirement exceeds the configured bar.
var (
	balancedWeights            = blendWeights{cost: 0.4, quality: 0.3, latency: 0.3}
	balancedHighQualityWeights = blendWeights{cost: 0.2, quality: 0.6, latency: 0.2}
)

type blendWeights struct {
	cost    float64
	quality float64
	latency float64
}

// BalancedRouter blends normalized cost, quality, and latency into a single
// score. Demanding requests shift the blend toward quality.
type BalancedRouter struct {
	*BaseRouter
}

// NewBalancedRouter creates a balanced router with default config.
func NewBalancedRouter() *BalancedRouter {
	config := router.DefaultConfig()
	config.Strategy = router.StrategyBalanced
	return &BalancedRouter{BaseRouter: NewBaseRouter(config)}
}

// NewBalancedRouterWithConfig creates a balanced router with custom config.
func NewBalancedRouterWithConfig(config router.Config) *BalancedRouter {
	config.Strategy = router.StrategyBalanced
	return &BalancedRouter{BaseRouter: NewBaseRouter(config)}
}

// Route selects the suitable tier with the best blended score.
func (r *BalancedRouter) Route(ctx context.Context, req *router.Request) (*router.Decision, error) {
	c := r.AssessComplexity(req)
	candidates, err := r.Candidates(c)
	if err != nil {
		return nil, err
	}

	w := balancedWeights
	if req.QualityRequirement > r.Config().HighQualityBar {
		w = balancedHighQualityWeights
	}

	var maxCost, maxLatency float64
	latencies := make([]float64, len(candidates))
	for i, t := range candidates {
		if t.BaseCost > maxCost {
			maxCost = t.BaseCost
		}
		latencies[i] = r.effectiveLatency(t)
		if latencies[i] > maxLatency {
			maxLatency = latencies[i]
		}
	}

	best := candidates[0]
	bestScore := -1.0
	for i, t := range candidates {
		costNorm := 0.0
		if maxCost > 0 {
			costNorm = t.BaseCost / maxCost
		}
		latNorm := 0.0
		if maxLatency > 0 {
			latNorm = latencies[i] / maxLatency
		}
		score := w.cost*(1-costNorm) + w.quality*t.QualityScore + w.latency*(1-latNorm)
		if score > bestScore {
			best, bestScore = t, score
		}
	}
	return r.Decide(best, c), nil
}

func (r *BalancedRouter) effectiveLatency(t *backend.Tier) float64 {
	if s := r.Stats(t.Name); s != nil && s.AvgLatencyMs > 0 {
		return s.AvgLatencyMs
	}
	return t.AvgLatencyMs
}
