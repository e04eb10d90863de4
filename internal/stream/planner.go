// Package stream plans response delivery: whether to compress, with which
// codec, and whether to chunk. The planner never touches the synchronous
// decision with payload-sized work beyond a small compression sample.
package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/flipsync/costwise/pkg/types"
	"github.com/flipsync/costwise/routers"
)

// Delivery strategies.
const (
	StrategyDirect            = "direct"
	StrategyCompressed        = "compressed"
	StrategyChunked           = "chunked"
	StrategyCompressedChunked = "compressed_chunked"
)

// ClientHints carry client capability signals that bias the plan.
type ClientHints struct {
	// LowCPU indicates the client cannot afford decompression work.
	LowCPU bool

	// LowBandwidth indicates transfer size matters more than CPU.
	LowBandwidth bool
}

// Config holds stream planner configuration.
type Config struct {
	// DirectThreshold is the payload size in bytes below which delivery
	// bypasses compression and chunking entirely. Default: 1 KiB.
	DirectThreshold int `yaml:"direct_threshold"`

	// ChunkThreshold is the payload size above which chunked delivery is
	// forced. Default: 100 KiB.
	ChunkThreshold int `yaml:"chunk_threshold"`

	// SampleSize is how many leading bytes are compressed to estimate the
	// payload's compression ratio. Default: 1 KiB.
	SampleSize int `yaml:"sample_size"`

	// MinChunkSize and MaxChunkSize bound the adaptive chunk size.
	// Defaults: 8 KiB and 64 KiB.
	MinChunkSize int `yaml:"min_chunk_size"`
	MaxChunkSize int `yaml:"max_chunk_size"`

	// TargetStreamMs is the streaming time the chunk sizing aims for.
	// Kinds that historically stream slower get smaller chunks.
	// Default: 2000.
	TargetStreamMs float64 `yaml:"target_stream_ms"`

	// EWMAAlpha is the smoothing factor for per-kind stream times.
	// Default: 0.3.
	EWMAAlpha float64 `yaml:"ewma_alpha"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DirectThreshold: 1 << 10,
		ChunkThreshold:  100 << 10,
		SampleSize:      1 << 10,
		MinChunkSize:    8 << 10,
		MaxChunkSize:    64 << 10,
		TargetStreamMs:  2000,
		EWMAAlpha:       0.3,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.DirectThreshold <= 0 {
		c.DirectThreshold = d.DirectThreshold
	}
	if c.ChunkThreshold <= 0 {
		c.ChunkThreshold = d.ChunkThreshold
	}
	if c.SampleSize <= 0 {
		c.SampleSize = d.SampleSize
	}
	if c.MinChunkSize <= 0 {
		c.MinChunkSize = d.MinChunkSize
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = d.MaxChunkSize
	}
	if c.TargetStreamMs <= 0 {
		c.TargetStreamMs = d.TargetStreamMs
	}
	if c.EWMAAlpha <= 0 {
		c.EWMAAlpha = d.EWMAAlpha
	}
}

// Planner decides the delivery plan for one response payload.
type Planner struct {
	config Config
	logger *slog.Logger

	mu          sync.RWMutex
	streamTimes map[types.OperationKind]*routers.EWMA
}

// NewPlanner creates a planner. A nil logger falls back to slog.Default.
func NewPlanner(cfg Config, logger *slog.Logger) *Planner {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		config:      cfg,
		logger:      logger,
		streamTimes: make(map[types.OperationKind]*routers.EWMA),
	}
}

// Plan decides how the payload should be delivered. Small payloads go out
// direct; oversized payloads are always chunked; everything in between is
// sampled for compressibility. Client hints override the sample: a low-CPU
// client never gets compression, a low-bandwidth client always does.
func (p *Planner) Plan(payload []byte, kind types.OperationKind, hints ClientHints) *types.StreamPlan {
	size := len(payload)
	if size < p.config.DirectThreshold {
		return &types.StreamPlan{Strategy: StrategyDirect, Codec: CodecNone}
	}

	codec := p.chooseCodec(payload, hints)
	chunked := size > p.config.ChunkThreshold

	plan := &types.StreamPlan{Codec: codec}
	switch {
	case chunked && codec != CodecNone:
		plan.Strategy = StrategyCompressedChunked
	case chunked:
		plan.Strategy = StrategyChunked
	case codec != CodecNone:
		plan.Strategy = StrategyCompressed
	default:
		plan.Strategy = StrategyDirect
	}
	if chunked {
		plan.ChunkSize = p.chunkSize(size, kind)
	}
	return plan
}

func (p *Planner) chooseCodec(payload []byte, hints ClientHints) string {
	// Bandwidth pressure wins over CPU pressure when both are set.
	if hints.LowBandwidth {
		return CodecZstd
	}
	if hints.LowCPU {
		return CodecNone
	}

	sample := payload
	if len(sample) > p.config.SampleSize {
		sample = sample[:p.config.SampleSize]
	}
	ratio, err := SampleRatio(sample)
	if err != nil {
		p.logger.Warn("compression sampling failed", "error", err)
		return CodecNone
	}

	switch {
	case ratio < 0.8:
		return CodecZstd
	case ratio > 0.95:
		return CodecNone
	default:
		return CodecGzip
	}
}

// chunkSize derives the chunk size from payload size, then scales it by how
// the kind's historical streaming time compares to the target. Kinds that
// stream slower than target get smaller chunks so the client sees progress.
func (p *Planner) chunkSize(size int, kind types.OperationKind) int {
	chunk := size / 16

	p.mu.RLock()
	e := p.streamTimes[kind]
	p.mu.RUnlock()
	if e != nil && e.Initialized() && e.Value() > 0 {
		factor := p.config.TargetStreamMs / e.Value()
		if factor < 0.5 {
			factor = 0.5
		}
		if factor > 2.0 {
			factor = 2.0
		}
		chunk = int(float64(chunk) * factor)
	}

	if chunk < p.config.MinChunkSize {
		chunk = p.config.MinChunkSize
	}
	if chunk > p.config.MaxChunkSize {
		chunk = p.config.MaxChunkSize
	}
	return chunk
}

// RecordStreamTime feeds the observed streaming duration for one kind back
// into chunk sizing.
func (p *Planner) RecordStreamTime(kind types.OperationKind, d time.Duration) {
	ms := float64(d.Milliseconds())
	if ms <= 0 {
		return
	}

	p.mu.Lock()
	e, ok := p.streamTimes[kind]
	if !ok {
		e = routers.NewEWMA(p.config.EWMAAlpha)
		p.streamTimes[kind] = e
	}
	p.mu.Unlock()

	e.Add(ms)
}
