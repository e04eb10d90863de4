package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipsync/costwise/pkg/types"
)

func newTestCache(t *testing.T, maxEntries int) *ContentCache {
	t.Helper()
	return New(Config{
		MaxEntries:          maxEntries,
		DefaultTTL:          time.Minute,
		QualityThreshold:    0.8,
		SimilarityThreshold: 0.85,
	}, nil)
}

func TestContentCache_RoundTrip(t *testing.T) {
	c := newTestCache(t, 10)

	c.Store("k1", types.OpProductAnalysis, "canon ae-1 camera", "analysis payload", 0.92, 0.05, 0)

	hit, ok := c.Lookup("k1", types.OpProductAnalysis, "canon ae-1 camera", 0.9)
	require.True(t, ok)
	assert.Equal(t, "analysis payload", hit.Payload)
	assert.Equal(t, 0.92, hit.Quality)
	assert.Equal(t, 1.0, hit.Similarity)
	assert.GreaterOrEqual(t, hit.Quality, 0.9)
}

func TestContentCache_TTLExpiry(t *testing.T) {
	c := newTestCache(t, 10)

	c.Store("k1", types.OpProductAnalysis, "canon ae-1 camera", "payload", 0.9, 0.05, 20*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	// No explicit purge call: the lookup itself must refuse expired entries.
	_, ok := c.Lookup("k1", types.OpProductAnalysis, "canon ae-1 camera", 0.5)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestContentCache_QualityRejection(t *testing.T) {
	c := newTestCache(t, 10)

	c.Store("k1", types.OpProductAnalysis, "canon ae-1 camera", "low quality", 0.5, 0.05, 0)
	assert.Equal(t, 0, c.Len())

	// Idempotent: repeated rejection leaves no trace.
	c.Store("k1", types.OpProductAnalysis, "canon ae-1 camera", "low quality", 0.79, 0.05, 0)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(2), c.Stats().Rejections)
}

func TestContentCache_LRUEviction(t *testing.T) {
	c := newTestCache(t, 2)

	c.Store("a", types.OpProductAnalysis, "alpha one", "A", 0.9, 0.01, 0)
	c.Store("b", types.OpProductAnalysis, "bravo two", "B", 0.9, 0.01, 0)
	c.Store("c", types.OpProductAnalysis, "charlie three", "C", 0.9, 0.01, 0)

	// A was least recently used and must be the one evicted.
	_, ok := c.Lookup("a", types.OpProductAnalysis, "alpha one", 0.5)
	assert.False(t, ok)

	hitB, okB := c.Lookup("b", types.OpProductAnalysis, "bravo two", 0.5)
	require.True(t, okB)
	assert.Equal(t, "B", hitB.Payload)

	hitC, okC := c.Lookup("c", types.OpProductAnalysis, "charlie three", 0.5)
	require.True(t, okC)
	assert.Equal(t, "C", hitC.Payload)
}

func TestContentCache_EvictsExactlyLRU(t *testing.T) {
	c := newTestCache(t, 3)

	for i := 0; i < 3; i++ {
		c.Store(fmt.Sprintf("k%d", i), types.OpProductAnalysis, fmt.Sprintf("content number %d", i), "p", 0.9, 0.01, 0)
	}

	// Touch k0 so k1 becomes the eviction candidate.
	_, ok := c.Lookup("k0", types.OpProductAnalysis, "content number 0", 0.5)
	require.True(t, ok)

	c.Store("k3", types.OpProductAnalysis, "content number 3", "p", 0.9, 0.01, 0)

	_, ok = c.Lookup("k1", types.OpProductAnalysis, "content number 1", 0.5)
	assert.False(t, ok, "k1 was least recently used and should be gone")
	_, ok = c.Lookup("k0", types.OpProductAnalysis, "content number 0", 0.5)
	assert.True(t, ok)
	assert.Equal(t, 3, c.Len())
}

func TestContentCache_CapacityNeverExceeded(t *testing.T) {
	c := newTestCache(t, 5)

	for i := 0; i < 50; i++ {
		c.Store(fmt.Sprintf("k%d", i), types.OpProductAnalysis, fmt.Sprintf("unique content %d", i), "p", 0.9, 0.01, 0)
		assert.LessOrEqual(t, c.Len(), 5)
	}
}

func TestContentCache_SimilarityFallback(t *testing.T) {
	c := newTestCache(t, 10)

	c.Store("k1", types.OpProductAnalysis,
		"canon ae-1 35mm film camera with 50mm lens excellent condition",
		"cached analysis", 0.95, 0.05, 0)

	// Near-identical content under a different key: one extra token keeps
	// the overlap at 10/11, above the 0.85 threshold.
	hit, ok := c.Lookup("other-key", types.OpProductAnalysis,
		"canon ae-1 35mm film camera with 50mm lens excellent condition today", 0.9)
	require.True(t, ok)
	assert.Equal(t, "cached analysis", hit.Payload)
	assert.GreaterOrEqual(t, hit.Similarity, 0.85)
	assert.Less(t, hit.Similarity, 1.0)
}

func TestContentCache_SimilarityRespectsOperationAndQuality(t *testing.T) {
	c := newTestCache(t, 10)

	c.Store("k1", types.OpProductAnalysis,
		"canon ae-1 35mm film camera with 50mm lens", "payload", 0.85, 0.05, 0)

	// Different operation kind never matches.
	_, ok := c.Lookup("x", types.OpListingGeneration,
		"canon ae-1 35mm film camera with 50mm lens", 0.5)
	assert.False(t, ok)

	// Quality below the requirement never matches, even at similarity 1.0.
	_, ok = c.Lookup("x", types.OpProductAnalysis,
		"canon ae-1 35mm film camera with 50mm lens", 0.9)
	assert.False(t, ok)
}

func TestContentCache_DissimilarContentMisses(t *testing.T) {
	c := newTestCache(t, 10)

	c.Store("k1", types.OpProductAnalysis, "canon ae-1 camera", "payload", 0.95, 0.05, 0)

	_, ok := c.Lookup("x", types.OpProductAnalysis, "vintage rolex submariner watch", 0.5)
	assert.False(t, ok)
}

func TestContentCache_HitBookkeeping(t *testing.T) {
	c := newTestCache(t, 10)

	c.Store("k1", types.OpProductAnalysis, "canon ae-1 camera", "payload", 0.9, 0.05, 0)

	for i := 0; i < 3; i++ {
		_, ok := c.Lookup("k1", types.OpProductAnalysis, "canon ae-1 camera", 0.5)
		require.True(t, ok)
	}

	stats := c.Stats()
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(1), stats.Stores)
	assert.Equal(t, 1.0, stats.HitRate)
}

func TestContentCache_SnapshotRoundTrip(t *testing.T) {
	c := newTestCache(t, 10)
	c.Store("k1", types.OpProductAnalysis, "canon ae-1 camera", "payload one", 0.9, 0.05, time.Hour)
	c.Store("k2", types.OpVisionAnalysis, "product photo front", "payload two", 0.95, 0.10, time.Hour)

	data, err := c.EncodeSnapshot()
	require.NoError(t, err)

	restored := newTestCache(t, 10)
	require.NoError(t, restored.RestoreSnapshot(data))
	assert.Equal(t, 2, restored.Len())

	hit, ok := restored.Lookup("k1", types.OpProductAnalysis, "canon ae-1 camera", 0.5)
	require.True(t, ok)
	assert.Equal(t, "payload one", hit.Payload)

	// Token sets survive the round trip, so similarity lookups still work.
	hit, ok = restored.Lookup("zzz", types.OpVisionAnalysis, "product photo front", 0.5)
	require.True(t, ok)
	assert.Equal(t, "payload two", hit.Payload)
}

func TestContentCache_RestoreCorruptSnapshot(t *testing.T) {
	c := newTestCache(t, 10)
	err := c.RestoreSnapshot([]byte("{not json"))
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestTokenOverlap_Score(t *testing.T) {
	sim := TokenOverlap{}

	set := func(words ...string) map[string]struct{} {
		m := make(map[string]struct{})
		for _, w := range words {
			m[w] = struct{}{}
		}
		return m
	}

	assert.Equal(t, 1.0, sim.Score(set("a", "b"), set("a", "b")))
	assert.Equal(t, 0.0, sim.Score(set("a"), set("b")))
	assert.Equal(t, 0.0, sim.Score(set(), set("a")))
	assert.InDelta(t, 1.0/3.0, sim.Score(set("a", "b"), set("b", "c")), 1e-9)
}
