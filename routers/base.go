// Package routers implements the tier selection strategies. Each strategy
// embeds BaseRouter for tier bookkeeping, complexity assessment, and
// trailing outcome history, and overrides only the selection step.
package routers

import (
	"errors"
	"sync"
	"time"

	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/router"
	"github.com/flipsync/costwise/pkg/types"
)

// ErrNoAvailableTier is returned when no tier is registered or no tier can
// serve the assessed complexity and no default tier exists.
var ErrNoAvailableTier = errors.New("no available backend tier")

// complexityCostMultiplier scales a tier's base cost by assessed bucket.
var complexityCostMultiplier = map[backend.Complexity]float64{
	backend.ComplexitySimple:   1.0,
	backend.ComplexityModerate: 1.5,
	backend.ComplexityComplex:  2.5,
	backend.ComplexityExpert:   4.0,
}

// statsEntry tracks the trailing performance history for one tier.
type statsEntry struct {
	TotalRequests int64
	SuccessCount  int64
	FailureCount  int64

	CostHistory    []float64
	QualityHistory []float64
	Latency        *EWMA

	LastRequestTime time.Time
}

func (s *statsEntry) successRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.TotalRequests)
}

func (s *statsEntry) avg(history []float64) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, v := range history {
		sum += v
	}
	return sum / float64(len(history))
}

func (s *statsEntry) qualityVariance() float64 {
	if len(s.QualityHistory) < 2 {
		return 0
	}
	mean := s.avg(s.QualityHistory)
	var sum float64
	for _, v := range s.QualityHistory {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(s.QualityHistory))
}

// BaseRouter provides common functionality for all strategies: tier
// registry, complexity assessment, suitability filtering, confidence, and
// the outcome feedback loop.
type BaseRouter struct {
	mu       sync.RWMutex
	tiers    []*backend.Tier
	stats    map[string]*statsEntry
	config   router.Config
	strategy router.Strategy
}

// NewBaseRouter creates a base router with the given configuration.
func NewBaseRouter(config router.Config) *BaseRouter {
	d := router.DefaultConfig()
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = d.HistoryWindow
	}
	if config.DefaultConfidence <= 0 {
		config.DefaultConfidence = d.DefaultConfidence
	}
	if config.HighQualityBar <= 0 {
		config.HighQualityBar = d.HighQualityBar
	}
	if config.EWMAAlpha <= 0 {
		config.EWMAAlpha = d.EWMAAlpha
	}
	return &BaseRouter{
		stats:    make(map[string]*statsEntry),
		config:   config,
		strategy: config.Strategy,
	}
}

// Strategy returns the active selection strategy.
func (r *BaseRouter) Strategy() router.Strategy {
	return r.strategy
}

// AddTier registers a backend tier.
func (r *BaseRouter) AddTier(tier *backend.Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tiers = append(r.tiers, tier)
	if _, ok := r.stats[tier.Name]; !ok {
		r.stats[tier.Name] = &statsEntry{
			CostHistory:    make([]float64, 0, r.config.HistoryWindow),
			QualityHistory: make([]float64, 0, r.config.HistoryWindow),
			Latency:        NewEWMA(r.config.EWMAAlpha),
		}
	}
}

// RemoveTier removes a tier by name.
func (r *BaseRouter) RemoveTier(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, t := range r.tiers {
		if t.Name == name {
			r.tiers = append(r.tiers[:i], r.tiers[i+1:]...)
			break
		}
	}
	delete(r.stats, name)
}

// Tiers returns all registered tiers.
func (r *BaseRouter) Tiers() []*backend.Tier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*backend.Tier, len(r.tiers))
	copy(out, r.tiers)
	return out
}

// Stats returns a snapshot of the trailing stats for a tier.
func (r *BaseRouter) Stats(name string) *router.TierStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stats[name]
	if !ok {
		return nil
	}
	return &router.TierStats{
		TotalRequests:   s.TotalRequests,
		SuccessCount:    s.SuccessCount,
		FailureCount:    s.FailureCount,
		SuccessRate:     s.successRate(),
		AvgLatencyMs:    s.Latency.Value(),
		AvgCost:         s.avg(s.CostHistory),
		AvgQuality:      s.avg(s.QualityHistory),
		QualityVariance: s.qualityVariance(),
		LastRequestTime: s.LastRequestTime,
	}
}

// RecordOutcome records the actual result of a routed call. Outcomes for
// unknown tiers are dropped.
func (r *BaseRouter) RecordOutcome(out *router.Outcome) {
	if out == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[out.Tier]
	if !ok {
		return
	}

	s.TotalRequests++
	s.LastRequestTime = time.Now()
	if !out.Success {
		s.FailureCount++
		return
	}

	s.SuccessCount++
	s.CostHistory = appendBounded(s.CostHistory, out.Cost, r.config.HistoryWindow)
	s.QualityHistory = appendBounded(s.QualityHistory, out.Quality, r.config.HistoryWindow)
	s.Latency.Add(float64(out.Latency.Milliseconds()))
}

func appendBounded(history []float64, v float64, max int) []float64 {
	history = append(history, v)
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}

// AssessComplexity buckets a request by content length, operation kind,
// context breadth, and requested quality.
func (r *BaseRouter) AssessComplexity(req *router.Request) backend.Complexity {
	var score float64

	switch n := len(req.Content); {
	case n > 4000:
		score += 0.40
	case n > 1500:
		score += 0.30
	case n > 500:
		score += 0.20
	default:
		score += 0.10
	}

	switch req.Operation {
	case types.OpVisionAnalysis:
		score += 0.30
	case types.OpMarketResearch:
		score += 0.25
	case types.OpProductAnalysis:
		score += 0.20
	case types.OpListingGeneration:
		score += 0.15
	default:
		score += 0.10
	}

	if req.Context != nil {
		if req.Context.Marketplace != "" {
			score += 0.05
		}
		if req.Context.Category != "" {
			score += 0.05
		}
	}

	score += req.QualityRequirement * 0.20

	switch {
	case score >= 0.80:
		return backend.ComplexityExpert
	case score >= 0.60:
		return backend.ComplexityComplex
	case score >= 0.40:
		return backend.ComplexityModerate
	default:
		return backend.ComplexitySimple
	}
}

// Candidates returns the tiers whose declared suitability covers the
// assessed bucket. When none match it falls back to the default tier.
func (r *BaseRouter) Candidates(c backend.Complexity) ([]*backend.Tier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tiers) == 0 {
		return nil, ErrNoAvailableTier
	}

	var suitable []*backend.Tier
	for _, t := range r.tiers {
		if t.Suitable(c) {
			suitable = append(suitable, t)
		}
	}
	if len(suitable) > 0 {
		return suitable, nil
	}

	for _, t := range r.tiers {
		if t.Default {
			return []*backend.Tier{t}, nil
		}
	}
	return nil, ErrNoAvailableTier
}

// Confidence derives decision confidence from the chosen tier's trailing
// success rate, penalized by quality variance. Tiers without history get
// the configured default mid confidence.
func (r *BaseRouter) Confidence(tierName string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stats[tierName]
	if !ok || s.TotalRequests == 0 {
		return r.config.DefaultConfidence
	}

	c := s.successRate() - s.qualityVariance()
	if c < 0.05 {
		c = 0.05
	}
	if c > 0.99 {
		c = 0.99
	}
	return c
}

// EstimateCost scales a tier's base cost by the assessed complexity bucket.
func EstimateCost(t *backend.Tier, c backend.Complexity) float64 {
	return t.BaseCost * complexityCostMultiplier[c]
}

// Decide builds the decision envelope for a chosen tier.
func (r *BaseRouter) Decide(tier *backend.Tier, c backend.Complexity) *router.Decision {
	return &router.Decision{
		Tier:             tier,
		Complexity:       c,
		EstimatedCost:    EstimateCost(tier, c),
		EstimatedQuality: tier.QualityScore,
		Confidence:       r.Confidence(tier.Name),
		Strategy:         r.strategy,
	}
}

// Config returns the router configuration.
func (r *BaseRouter) Config() router.Config {
	return r.config
}
