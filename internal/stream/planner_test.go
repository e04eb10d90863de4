package stream

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipsync/costwise/pkg/types"
)

// compressiblePayload repeats listing-like text, which gzip shrinks well.
func compressiblePayload(n int) []byte {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString("vintage canon ae-1 film camera excellent condition with original strap ")
	}
	return []byte(b.String()[:n])
}

// incompressiblePayload is deterministic pseudo-random noise.
func incompressiblePayload(n int) []byte {
	buf := make([]byte, n)
	rng := rand.New(rand.NewSource(42))
	rng.Read(buf)
	return buf
}

func TestPlan_SmallPayloadBypassesEverything(t *testing.T) {
	p := NewPlanner(Config{}, nil)

	plan := p.Plan([]byte("tiny"), types.OpProductAnalysis, ClientHints{})
	assert.Equal(t, StrategyDirect, plan.Strategy)
	assert.Equal(t, CodecNone, plan.Codec)
	assert.Zero(t, plan.ChunkSize)

	// Bandwidth hints do not resurrect compression for tiny payloads.
	plan = p.Plan([]byte("tiny"), types.OpProductAnalysis, ClientHints{LowBandwidth: true})
	assert.Equal(t, StrategyDirect, plan.Strategy)
}

func TestPlan_LargePayloadForcesChunking(t *testing.T) {
	p := NewPlanner(Config{}, nil)

	plan := p.Plan(compressiblePayload(200<<10), types.OpMarketResearch, ClientHints{})
	assert.Equal(t, StrategyCompressedChunked, plan.Strategy)
	assert.Equal(t, CodecZstd, plan.Codec)
	assert.GreaterOrEqual(t, plan.ChunkSize, 8<<10)
	assert.LessOrEqual(t, plan.ChunkSize, 64<<10)

	plan = p.Plan(incompressiblePayload(200<<10), types.OpMarketResearch, ClientHints{})
	assert.Equal(t, StrategyChunked, plan.Strategy)
	assert.Equal(t, CodecNone, plan.Codec)
	assert.NotZero(t, plan.ChunkSize)
}

func TestPlan_MediumPayloadSamplesRatio(t *testing.T) {
	p := NewPlanner(Config{}, nil)

	plan := p.Plan(compressiblePayload(10<<10), types.OpListingGeneration, ClientHints{})
	assert.Equal(t, StrategyCompressed, plan.Strategy)
	assert.Equal(t, CodecZstd, plan.Codec)
	assert.Zero(t, plan.ChunkSize)

	plan = p.Plan(incompressiblePayload(10<<10), types.OpListingGeneration, ClientHints{})
	assert.Equal(t, StrategyDirect, plan.Strategy)
	assert.Equal(t, CodecNone, plan.Codec)
}

func TestPlan_ClientHints(t *testing.T) {
	p := NewPlanner(Config{}, nil)

	// Low CPU suppresses compression even for compressible content.
	plan := p.Plan(compressiblePayload(10<<10), types.OpListingGeneration, ClientHints{LowCPU: true})
	assert.Equal(t, CodecNone, plan.Codec)

	// Low bandwidth forces compression even for noise.
	plan = p.Plan(incompressiblePayload(10<<10), types.OpListingGeneration, ClientHints{LowBandwidth: true})
	assert.Equal(t, CodecZstd, plan.Codec)

	// Bandwidth pressure wins when both are set.
	plan = p.Plan(incompressiblePayload(10<<10), types.OpListingGeneration, ClientHints{LowCPU: true, LowBandwidth: true})
	assert.Equal(t, CodecZstd, plan.Codec)
}

func TestChunkSize_AdaptsToStreamHistory(t *testing.T) {
	p := NewPlanner(Config{}, nil)
	payload := compressiblePayload(400 << 10)

	before := p.Plan(payload, types.OpVisionAnalysis, ClientHints{})
	require.NotZero(t, before.ChunkSize)

	// A kind that streams far slower than target gets smaller chunks.
	for i := 0; i < 10; i++ {
		p.RecordStreamTime(types.OpVisionAnalysis, 10*time.Second)
	}
	after := p.Plan(payload, types.OpVisionAnalysis, ClientHints{})
	assert.Less(t, after.ChunkSize, before.ChunkSize)

	// Other kinds are unaffected.
	other := p.Plan(payload, types.OpMarketResearch, ClientHints{})
	assert.Equal(t, before.ChunkSize, other.ChunkSize)
}

func TestCodec_RoundTrip(t *testing.T) {
	payload := compressiblePayload(32 << 10)

	for _, codec := range []string{CodecNone, CodecGzip, CodecZstd} {
		t.Run(codec, func(t *testing.T) {
			compressed, err := Compress(payload, codec)
			require.NoError(t, err)
			if codec != CodecNone {
				assert.Less(t, len(compressed), len(payload))
			}

			restored, err := Decompress(compressed, codec)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(payload, restored))
		})
	}

	_, err := Compress(payload, "brotli")
	assert.Error(t, err)
}

func TestSampleRatio(t *testing.T) {
	ratio, err := SampleRatio(compressiblePayload(1 << 10))
	require.NoError(t, err)
	assert.Less(t, ratio, 0.8)

	ratio, err = SampleRatio(incompressiblePayload(1 << 10))
	require.NoError(t, err)
	assert.Greater(t, ratio, 0.95)

	ratio, err = SampleRatio(nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio)
}
