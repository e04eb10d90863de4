package routers

import (
	"context"

	"github.com/flipsync/costwise/pkg/router"
)

// QualityRouter selects the suitable tier with the highest declared quality
// score, regardless of cost.
type QualityRouter struct {
	*BaseRouter
}

// NewQualityRouter creates a quality router with default config.
func NewQualityRouter() *QualityRouter {
	config := router.DefaultConfig()
	config.Strategy = router.StrategyQualityFocused
	return &QualityRouter{BaseRouter: NewBaseRouter(config)}
}

// NewQualityRouterWithConfig creates a quality router with custom config.
func NewQualityRouterWithConfig(config router.Config) *QualityRouter {
	config.Strategy = router.StrategyQualityFocused
	return &QualityRouter{BaseRouter: NewBaseRouter(config)}
}

// Route selects the highest-quality suitable tier.
func (r *QualityRouter) Route(ctx context.Context, req *router.Request) (*router.Decision, error) {
	c := r.AssessComplexity(req)
	candidates, err := r.Candidates(c)
	if err != nil {
		return nil, err
	}

	best := candidates[0]
	for _, t := range candidates[1:] {
		if t.QualityScore > best.QualityScore {
			best = t
		}
	}
	return r.Decide(best, c), nil
}
