package routers

import (
	"fmt"

	"github.com/flipsync/costwise/pkg/router"
)

// New creates a router for the configured strategy. An empty strategy
// defaults to balanced. Returns an error for unrecognized strategies.
func New(config router.Config) (router.Router, error) {
	switch config.Strategy {
	case router.StrategyCostOptimized:
		return NewCostRouterWithConfig(config), nil
	case router.StrategyQualityFocused:
		return NewQualityRouterWithConfig(config), nil
	case router.StrategyPerformanceBased:
		return NewLatencyRouterWithConfig(config), nil
	case router.StrategyAdaptive:
		return NewAdaptiveRouterWithConfig(config), nil
	case router.StrategyBalanced, "":
		return NewBalancedRouterWithConfig(config), nil
	default:
		return nil, fmt.Errorf("unknown routing strategy: %s", config.Strategy)
	}
}

// MustNew creates a router and panics if the strategy is invalid.
func MustNew(config router.Config) router.Router {
	r, err := New(config)
	if err != nil {
		panic(err)
	}
	return r
}

// AvailableStrategies returns all supported selection strategies.
func AvailableStrategies() []router.Strategy {
	return []router.Strategy{
		router.StrategyCostOptimized,
		router.StrategyQualityFocused,
		router.StrategyPerformanceBased,
		router.StrategyAdaptive,
		router.StrategyBalanced,
	}
}

// IsValidStrategy checks if a strategy string is supported.
func IsValidStrategy(s string) bool {
	for _, strategy := range AvailableStrategies() {
		if string(strategy) == s {
			return true
		}
	}
	return false
}
