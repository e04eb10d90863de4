package routers

import (
	"context"

	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/router"
)

// LatencyRouter selects the suitable tier with the lowest latency. Observed
// latency from recorded outcomes takes precedence over the tier's declared
// baseline.
type LatencyRouter struct {
	*BaseRouter
}

// NewLatencyRouter creates a latency router with default config.
func NewLatencyRouter() *LatencyRouter {
	config := router.DefaultConfig()
	config.Strategy = router.StrategyPerformanceBased
	return &LatencyRouter{BaseRouter: NewBaseRouter(config)}
}

// NewLatencyRouterWithConfig creates a latency router with custom config.
func NewLatencyRouterWithConfig(config router.Config) *LatencyRouter {
	config.Strategy = router.StrategyPerformanceBased
	return &LatencyRouter{BaseRouter: NewBaseRouter(config)}
}

// Route selects the fastest suitable tier.
func (r *LatencyRouter) Route(ctx context.Context, req *router.Request) (*router.Decision, error) {
	c := r.AssessComplexity(req)
	candidates, err := r.Candidates(c)
	if err != nil {
		return nil, err
	}

	best := candidates[0]
	bestLatency := r.effectiveLatency(best)
	for _, t := range candidates[1:] {
		if l := r.effectiveLatency(t); l < bestLatency {
			best, bestLatency = t, l
		}
	}
	return r.Decide(best, c), nil
}

func (r *LatencyRouter) effectiveLatency(t *backend.Tier) float64 {
	if s := r.Stats(t.Name); s != nil && s.AvgLatencyMs > 0 {
		return s.AvgLatencyMs
	}
	return t.AvgLatencyMs
}
