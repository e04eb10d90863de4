package routers

import (
	"context"

	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/router"
)

// Adaptive composite weights.
const (
	adaptiveSuccessWeight    = 0.4
	adaptiveEfficiencyWeight = 0.3
	adaptiveQualityWeight    = 0.3
)

// AdaptiveRouter selects by a trailing composite of success rate, cost
// efficiency, and delivered quality. Tiers without recorded outcomes are
// scored from their declared properties, so a cold router behaves like a
// balanced one until feedback arrives.
type AdaptiveRouter struct {
	*BaseRouter
}

// NewAdaptiveRouter creates an adaptive router with default config.
func NewAdaptiveRouter() *AdaptiveRouter {
	config := router.DefaultConfig()
	config.Strategy = router.StrategyAdaptive
	return &AdaptiveRouter{BaseRouter: NewBaseRouter(config)}
}

// NewAdaptiveRouterWithConfig creates an adaptive router with custom config.
func NewAdaptiveRouterWithConfig(config router.Config) *AdaptiveRouter {
	config.Strategy = router.StrategyAdaptive
	return &AdaptiveRouter{BaseRouter: NewBaseRouter(config)}
}

// Route selects the suitable tier with the best composite score.
func (r *AdaptiveRouter) Route(ctx context.Context, req *router.Request) (*router.Decision, error) {
	c := r.AssessComplexity(req)
	candidates, err := r.Candidates(c)
	if err != nil {
		return nil, err
	}

	type scored struct {
		tier       *backend.Tier
		success    float64
		efficiency float64
		quality    float64
	}

	entries := make([]scored, 0, len(candidates))
	var maxEfficiency float64
	for _, t := range candidates {
		e := scored{tier: t}
		if s := r.Stats(t.Name); s != nil && s.TotalRequests > 0 {
			e.success = s.SuccessRate
			e.quality = s.AvgQuality
			e.efficiency = efficiency(s.AvgQuality, s.AvgCost)
		} else {
			e.success = r.Config().DefaultConfidence
			e.quality = t.QualityScore
			e.efficiency = efficiency(t.QualityScore, t.BaseCost)
		}
		if e.efficiency > maxEfficiency {
			maxEfficiency = e.efficiency
		}
		entries = append(entries, e)
	}

	best := entries[0].tier
	bestScore := -1.0
	for _, e := range entries {
		eff := e.efficiency
		if maxEfficiency > 0 {
			eff /= maxEfficiency
		}
		score := adaptiveSuccessWeight*e.success +
			adaptiveEfficiencyWeight*eff +
			adaptiveQualityWeight*e.quality
		if score > bestScore {
			best, bestScore = e.tier, score
		}
	}
	return r.Decide(best, c), nil
}

// efficiency is delivered quality per unit of spend.
func efficiency(quality, cost float64) float64 {
	if cost <= 0 {
		cost = 0.0001
	}
	return quality / cost
}
