package routers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/router"
	"github.com/flipsync/costwise/pkg/types"
)

// moderateRequest lands in the moderate bucket, where economy and standard
// are both suitable.
func moderateRequest() *router.Request {
	return &router.Request{
		Operation:          types.OpProductAnalysis,
		Content:            makeContent(600),
		QualityRequirement: 0.5,
	}
}

// complexRequest lands in the complex bucket, where standard and premium
// are both suitable.
func complexRequest(qualityReq float64) *router.Request {
	return &router.Request{
		Operation:          types.OpMarketResearch,
		Content:            makeContent(2000),
		QualityRequirement: qualityReq,
	}
}

func TestCostRouter_PicksCheapestSuitable(t *testing.T) {
	r := NewCostRouter()
	economy, standard, premium := testTiers()
	r.AddTier(economy)
	r.AddTier(standard)
	r.AddTier(premium)

	d, err := r.Route(context.Background(), moderateRequest())
	require.NoError(t, err)
	assert.Equal(t, "economy", d.Tier.Name)
	assert.Equal(t, backend.ComplexityModerate, d.Complexity)
	assert.Equal(t, router.StrategyCostOptimized, d.Strategy)
	assert.InDelta(t, 0.01*1.5, d.EstimatedCost, 1e-9)
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
}

func TestQualityRouter_NeverPicksLowerQualityCandidate(t *testing.T) {
	r := NewQualityRouter()
	economy, standard, premium := testTiers()
	r.AddTier(economy)
	r.AddTier(standard)
	r.AddTier(premium)

	d, err := r.Route(context.Background(), complexRequest(0.95))
	require.NoError(t, err)

	candidates, err := r.Candidates(d.Complexity)
	require.NoError(t, err)
	for _, c := range candidates {
		assert.GreaterOrEqual(t, d.Tier.QualityScore, c.QualityScore)
	}
	assert.Equal(t, "premium", d.Tier.Name)
}

func TestLatencyRouter_ObservedLatencyBeatsDeclared(t *testing.T) {
	r := NewLatencyRouter()
	economy, standard, _ := testTiers()
	r.AddTier(economy)
	r.AddTier(standard)

	// On declared latency alone economy (800ms) wins.
	d, err := r.Route(context.Background(), moderateRequest())
	require.NoError(t, err)
	assert.Equal(t, "economy", d.Tier.Name)

	// Observed degradation flips the choice to standard.
	for i := 0; i < 5; i++ {
		r.RecordOutcome(&router.Outcome{
			Tier: "economy", Success: true, Cost: 0.01, Quality: 0.7, Latency: 5 * time.Second,
		})
	}
	d, err = r.Route(context.Background(), moderateRequest())
	require.NoError(t, err)
	assert.Equal(t, "standard", d.Tier.Name)
}

func TestAdaptiveRouter_LearnsFromOutcomes(t *testing.T) {
	r := NewAdaptiveRouter()
	economy, standard, _ := testTiers()
	r.AddTier(economy)
	r.AddTier(standard)

	// Economy keeps failing while standard delivers.
	r.RecordOutcome(&router.Outcome{
		Tier: "economy", Success: true, Cost: 0.01, Quality: 0.7, Latency: time.Second,
	})
	for i := 0; i < 4; i++ {
		r.RecordOutcome(&router.Outcome{Tier: "economy", Success: false})
	}
	for i := 0; i < 5; i++ {
		r.RecordOutcome(&router.Outcome{
			Tier: "standard", Success: true, Cost: 0.03, Quality: 0.85, Latency: time.Second,
		})
	}

	d, err := r.Route(context.Background(), moderateRequest())
	require.NoError(t, err)
	assert.Equal(t, "standard", d.Tier.Name)
	assert.Greater(t, d.Confidence, 0.9)
}

func TestBalancedRouter_QualityDemandShiftsBlend(t *testing.T) {
	cheap := &backend.Tier{
		Name:         "cheap",
		BaseCost:     0.01,
		QualityScore: 0.50,
		AvgLatencyMs: 500,
		Suitability:  []backend.Complexity{backend.ComplexityModerate},
	}
	better := &backend.Tier{
		Name:         "better",
		BaseCost:     0.03,
		QualityScore: 0.90,
		AvgLatencyMs: 500,
		Suitability:  []backend.Complexity{backend.ComplexityModerate},
	}

	r := NewBalancedRouter()
	r.AddTier(cheap)
	r.AddTier(better)

	// With a relaxed quality requirement the cost term dominates.
	d, err := r.Route(context.Background(), moderateRequest())
	require.NoError(t, err)
	assert.Equal(t, "cheap", d.Tier.Name)

	// Above the high quality bar the blend shifts toward quality.
	req := moderateRequest()
	req.QualityRequirement = 0.95
	d, err = r.Route(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "better", d.Tier.Name)
}

func TestRoute_NoTiers(t *testing.T) {
	r := NewBalancedRouter()
	_, err := r.Route(context.Background(), moderateRequest())
	assert.ErrorIs(t, err, ErrNoAvailableTier)
}

func TestFactory(t *testing.T) {
	for _, s := range AvailableStrategies() {
		cfg := router.DefaultConfig()
		cfg.Strategy = s
		r, err := New(cfg)
		require.NoError(t, err)
		assert.Equal(t, s, r.Strategy())
	}

	// Empty strategy defaults to balanced.
	r, err := New(router.Config{})
	require.NoError(t, err)
	assert.Equal(t, router.StrategyBalanced, r.Strategy())

	_, err = New(router.Config{Strategy: "teleport"})
	assert.Error(t, err)

	assert.True(t, IsValidStrategy("adaptive"))
	assert.False(t, IsValidStrategy("teleport"))
}
