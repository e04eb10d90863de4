package routers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/router"
	"github.com/flipsync/costwise/pkg/types"
)

func testTiers() (economy, standard, premium *backend.Tier) {
	economy = &backend.Tier{
		Name:         "economy",
		BaseCost:     0.01,
		QualityScore: 0.70,
		AvgLatencyMs: 800,
		Suitability:  []backend.Complexity{backend.ComplexitySimple, backend.ComplexityModerate},
	}
	standard = &backend.Tier{
		Name:         "standard",
		BaseCost:     0.03,
		QualityScore: 0.85,
		AvgLatencyMs: 1200,
		Suitability:  []backend.Complexity{backend.ComplexityModerate, backend.ComplexityComplex},
		Default:      true,
	}
	premium = &backend.Tier{
		Name:         "premium",
		BaseCost:     0.10,
		QualityScore: 0.97,
		AvgLatencyMs: 2500,
		Suitability:  []backend.Complexity{backend.ComplexityComplex, backend.ComplexityExpert},
	}
	return economy, standard, premium
}

func TestAssessComplexity_Buckets(t *testing.T) {
	r := NewBaseRouter(router.DefaultConfig())

	tests := []struct {
		name string
		req  *router.Request
		want backend.Complexity
	}{
		{
			name: "short content, light operation",
			req: &router.Request{
				Operation: types.OpContentOptimization,
				Content:   "polish this title",
			},
			want: backend.ComplexitySimple,
		},
		{
			name: "medium content with quality demand",
			req: &router.Request{
				Operation:          types.OpProductAnalysis,
				Content:            makeContent(600),
				QualityRequirement: 0.5,
			},
			want: backend.ComplexityModerate,
		},
		{
			name: "long market research with context",
			req: &router.Request{
				Operation: types.OpMarketResearch,
				Content:   makeContent(2000),
				Context: &types.RequestContext{
					Marketplace: "ebay",
					Category:    "cameras",
				},
				QualityRequirement: 0.7,
			},
			want: backend.ComplexityComplex,
		},
		{
			name: "huge vision request demanding top quality",
			req: &router.Request{
				Operation: types.OpVisionAnalysis,
				Content:   makeContent(5000),
				Context: &types.RequestContext{
					Marketplace: "ebay",
					Category:    "cameras",
				},
				QualityRequirement: 1.0,
			},
			want: backend.ComplexityExpert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.AssessComplexity(tt.req))
		})
	}
}

func TestCandidates_SuitabilityAndFallback(t *testing.T) {
	r := NewBaseRouter(router.DefaultConfig())
	economy, standard, _ := testTiers()
	r.AddTier(economy)
	r.AddTier(standard)

	got, err := r.Candidates(backend.ComplexityModerate)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Neither tier declares expert, so the default tier steps in.
	got, err = r.Candidates(backend.ComplexityExpert)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "standard", got[0].Name)
}

func TestCandidates_NoTiers(t *testing.T) {
	r := NewBaseRouter(router.DefaultConfig())
	_, err := r.Candidates(backend.ComplexitySimple)
	assert.ErrorIs(t, err, ErrNoAvailableTier)
}

func TestCandidates_NoMatchNoDefault(t *testing.T) {
	r := NewBaseRouter(router.DefaultConfig())
	economy, _, _ := testTiers()
	r.AddTier(economy)

	_, err := r.Candidates(backend.ComplexityExpert)
	assert.ErrorIs(t, err, ErrNoAvailableTier)
}

func TestRecordOutcome_UpdatesStats(t *testing.T) {
	r := NewBaseRouter(router.DefaultConfig())
	economy, _, _ := testTiers()
	r.AddTier(economy)

	r.RecordOutcome(&router.Outcome{
		Tier: "economy", Success: true, Cost: 0.01, Quality: 0.7, Latency: 800 * time.Millisecond,
	})
	r.RecordOutcome(&router.Outcome{
		Tier: "economy", Success: true, Cost: 0.03, Quality: 0.9, Latency: 400 * time.Millisecond,
	})
	r.RecordOutcome(&router.Outcome{Tier: "economy", Success: false})

	s := r.Stats("economy")
	require.NotNil(t, s)
	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(2), s.SuccessCount)
	assert.Equal(t, int64(1), s.FailureCount)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate, 1e-9)
	assert.InDelta(t, 0.02, s.AvgCost, 1e-9)
	assert.InDelta(t, 0.8, s.AvgQuality, 1e-9)
	assert.Greater(t, s.QualityVariance, 0.0)

	// Outcomes for unknown tiers are dropped, not tracked.
	r.RecordOutcome(&router.Outcome{Tier: "ghost", Success: true})
	assert.Nil(t, r.Stats("ghost"))
}

func TestRecordOutcome_HistoryWindowBounded(t *testing.T) {
	cfg := router.DefaultConfig()
	cfg.HistoryWindow = 5
	r := NewBaseRouter(cfg)
	economy, _, _ := testTiers()
	r.AddTier(economy)

	for i := 0; i < 20; i++ {
		quality := 0.5
		if i >= 15 {
			quality = 1.0
		}
		r.RecordOutcome(&router.Outcome{
			Tier: "economy", Success: true, Cost: 0.01, Quality: quality, Latency: time.Second,
		})
	}

	// Only the last 5 samples remain, all at quality 1.0.
	s := r.Stats("economy")
	require.NotNil(t, s)
	assert.InDelta(t, 1.0, s.AvgQuality, 1e-9)
	assert.InDelta(t, 0.0, s.QualityVariance, 1e-9)
}

func TestConfidence(t *testing.T) {
	r := NewBaseRouter(router.DefaultConfig())
	economy, _, _ := testTiers()
	r.AddTier(economy)

	t.Run("no history yields default mid confidence", func(t *testing.T) {
		assert.InDelta(t, 0.5, r.Confidence("economy"), 1e-9)
		assert.InDelta(t, 0.5, r.Confidence("unknown"), 1e-9)
	})

	t.Run("steady success with stable quality caps out", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			r.RecordOutcome(&router.Outcome{
				Tier: "economy", Success: true, Cost: 0.01, Quality: 0.8, Latency: time.Second,
			})
		}
		assert.InDelta(t, 0.99, r.Confidence("economy"), 1e-9)
	})

	t.Run("failures drag confidence down", func(t *testing.T) {
		for i := 0; i < 30; i++ {
			r.RecordOutcome(&router.Outcome{Tier: "economy", Success: false})
		}
		assert.Less(t, r.Confidence("economy"), 0.5)
	})
}

func TestRemoveTier(t *testing.T) {
	r := NewBaseRouter(router.DefaultConfig())
	economy, standard, _ := testTiers()
	r.AddTier(economy)
	r.AddTier(standard)

	r.RemoveTier("economy")
	assert.Len(t, r.Tiers(), 1)
	assert.Nil(t, r.Stats("economy"))
}

func TestEWMA(t *testing.T) {
	e := NewEWMA(0.5)
	assert.False(t, e.Initialized())
	assert.Zero(t, e.Value())

	e.Add(100)
	assert.InDelta(t, 100, e.Value(), 1e-9)

	e.Add(200)
	assert.InDelta(t, 150, e.Value(), 1e-9)

	e.Add(200)
	assert.InDelta(t, 175, e.Value(), 1e-9)
}

func makeContent(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		if i%8 == 7 {
			buf[i] = ' '
			continue
		}
		buf[i] = 'a' + byte(i%26)
	}
	return string(buf)
}
