package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flipsync/costwise/pkg/types"
)

func req(op types.OperationKind, content, marketplace string) *types.OptimizationRequest {
	return &types.OptimizationRequest{
		Operation: op,
		Content:   content,
		Context:   types.RequestContext{Marketplace: marketplace},
	}
}

func TestNormalizedKey_Deterministic(t *testing.T) {
	g := NewGenerator("costwise")

	a := g.NormalizedKey(req(types.OpProductAnalysis, "Canon AE-1 camera", "ebay"))
	b := g.NormalizedKey(req(types.OpProductAnalysis, "Canon AE-1 camera", "ebay"))
	assert.Equal(t, a, b)
	assert.Contains(t, a, "costwise:")
}

func TestNormalizedKey_WhitespaceAndCaseInsensitive(t *testing.T) {
	g := NewGenerator("")

	a := g.NormalizedKey(req(types.OpProductAnalysis, "Canon  AE-1\tcamera", "ebay"))
	b := g.NormalizedKey(req(types.OpProductAnalysis, "canon ae-1 camera", "EBAY"))
	assert.Equal(t, a, b)
}

func TestNormalizedKey_DiscriminatesIdentityFields(t *testing.T) {
	g := NewGenerator("")
	base := g.NormalizedKey(req(types.OpProductAnalysis, "Canon AE-1 camera", "ebay"))

	assert.NotEqual(t, base, g.NormalizedKey(req(types.OpListingGeneration, "Canon AE-1 camera", "ebay")))
	assert.NotEqual(t, base, g.NormalizedKey(req(types.OpProductAnalysis, "Nikon F3 camera", "ebay")))
	assert.NotEqual(t, base, g.NormalizedKey(req(types.OpProductAnalysis, "Canon AE-1 camera", "amazon")))
}

func TestNormalizedKey_IgnoresQualityAndPriority(t *testing.T) {
	g := NewGenerator("")

	a := req(types.OpProductAnalysis, "Canon AE-1 camera", "ebay")
	b := req(types.OpProductAnalysis, "Canon AE-1 camera", "ebay")
	b.Context.QualityRequirement = 0.95
	b.Context.Priority = types.PriorityHigh

	assert.Equal(t, g.NormalizedKey(a), g.NormalizedKey(b))
}

func TestContentHash(t *testing.T) {
	g := NewGenerator("")

	assert.Equal(t, g.ContentHash("Canon  AE-1 camera"), g.ContentHash("canon ae-1 camera"))
	assert.NotEqual(t, g.ContentHash("canon ae-1 camera"), g.ContentHash("nikon f3 camera"))
	assert.Len(t, g.ContentHash("anything"), 16)
}

func TestTokens(t *testing.T) {
	set := Tokens("Canon AE-1 Camera camera")
	assert.Len(t, set, 3)
	_, ok := set["camera"]
	assert.True(t, ok)
}
