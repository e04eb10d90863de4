package routers

import (
	"context"

	"github.com/flipsync/costwise/pkg/router"
)

// CostRouter selects the suitable tier with the lowest base cost.
//
// This strategy is useful when spend matters more than marginal quality,
// e.g. bulk listing generation during catalog imports.
type CostRouter struct {
	*BaseRouter
}

// NewCostRouter creates a cost router with default config.
func NewCostRouter() *CostRouter {
	config := router.DefaultConfig()
	config.Strategy = router.StrategyCostOptimized
	return &CostRouter{BaseRouter: NewBaseRouter(config)}
}

// NewCostRouterWithConfig creates a cost router with custom config.
func NewCostRouterWithConfig(config router.Config) *CostRouter {
	config.Strategy = router.StrategyCostOptimized
	return &CostRouter{BaseRouter: NewBaseRouter(config)}
}

// Route selects the cheapest suitable tier.
func (r *CostRouter) Route(ctx context.Context, req *router.Request) (*router.Decision, error) {
	c := r.AssessComplexity(req)
	candidates, err := r.Candidates(c)
	if err != nil {
		return nil, err
	}

	best := candidates[0]
	for _, t := range candidates[1:] {
		if t.BaseCost < best.BaseCost {
			best = t
		}
	}
	return r.Decide(best, c), nil
}
