package costwise

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/flipsync/costwise/internal/batch"
	"github.com/flipsync/costwise/internal/cache"
	"github.com/flipsync/costwise/internal/config"
	"github.com/flipsync/costwise/internal/dedup"
	"github.com/flipsync/costwise/internal/healthcheck"
	"github.com/flipsync/costwise/internal/metrics"
	"github.com/flipsync/costwise/internal/persist"
	"github.com/flipsync/costwise/internal/stream"
	"github.com/flipsync/costwise/internal/warmer"
	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/router"
	"github.com/flipsync/costwise/pkg/types"
)

// ClientHints describe the consumer of streamed payloads and bias codec
// selection in the stream planner.
type ClientHints = stream.ClientHints

// PipelineConfig holds all configuration for the pipeline.
type PipelineConfig struct {
	// Tiers are the priced backend tiers available for routing.
	Tiers []Tier

	// Routing
	RouterConfig router.Config
	Router       Router // Custom router (overrides RouterConfig.Strategy)

	// Estimator refines cost and quality after each backend call.
	Estimator Estimator

	// Stage configuration
	Cache  cache.Config
	Dedup  dedup.Config
	Batch  batch.Config
	Warmer warmer.Config
	Stream stream.Config

	// BatchingEnabled gates the batch accumulation stage.
	BatchingEnabled bool

	// BatchableOperations are the operation kinds eligible for batching.
	BatchableOperations []OperationKind

	// DirectTimeout bounds direct backend calls and batch result waits.
	DirectTimeout time.Duration

	// Hints are the default client hints applied to stream planning.
	Hints ClientHints

	// Sink receives pipeline telemetry events.
	Sink metrics.Sink

	// SnapshotStore enables periodic snapshots of cache, dedup, and
	// warmer state when non-nil.
	SnapshotStore    persist.Store
	SnapshotInterval time.Duration

	// WarmingLoop runs the warmer's periodic analyze-and-warm cycle.
	WarmingLoop bool

	// Health controls proactive backend tier probing.
	Health healthcheck.Config

	// Logger for pipeline operations.
	Logger *slog.Logger

	// fileConfig holds tier definitions loaded from a config file whose
	// backends are bound by name via WithBackend.
	fileConfig *config.Config
	backends   map[string]Backend
}

// DefaultPipelineConfig returns the default pipeline configuration.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		RouterConfig: router.DefaultConfig(),
		Cache:        cache.DefaultConfig(),
		Dedup:        dedup.DefaultConfig(),
		Batch:        batch.DefaultConfig(),
		Warmer:       warmer.DefaultConfig(),
		Stream:       stream.DefaultConfig(),

		BatchingEnabled: true,
		BatchableOperations: []OperationKind{
			types.OpVisionAnalysis,
			types.OpListingGeneration,
			types.OpContentOptimization,
		},

		DirectTimeout: 30 * time.Second,
		Sink:          metrics.NopSink{},

		backends: make(map[string]Backend),
	}
}

// Option configures the pipeline.
type Option func(*PipelineConfig)

// WithTier registers a backend tier.
func WithTier(t Tier) Option {
	return func(c *PipelineConfig) {
		c.Tiers = append(c.Tiers, t)
	}
}

// WithTiers registers multiple backend tiers.
func WithTiers(tiers ...Tier) Option {
	return func(c *PipelineConfig) {
		c.Tiers = append(c.Tiers, tiers...)
	}
}

// WithRouter sets a custom router, overriding the configured strategy.
func WithRouter(r Router) Option {
	return func(c *PipelineConfig) {
		c.Router = r
	}
}

// WithRoutingStrategy selects the tier-selection strategy.
func WithRoutingStrategy(s Strategy) Option {
	return func(c *PipelineConfig) {
		c.RouterConfig.Strategy = s
	}
}

// WithRouterConfig replaces the full router configuration.
func WithRouterConfig(cfg router.Config) Option {
	return func(c *PipelineConfig) {
		c.RouterConfig = cfg
	}
}

// WithEstimator sets the post-call cost and quality estimator.
func WithEstimator(e Estimator) Option {
	return func(c *PipelineConfig) {
		c.Estimator = e
	}
}

// WithCacheConfig replaces the content cache configuration.
func WithCacheConfig(cfg cache.Config) Option {
	return func(c *PipelineConfig) {
		c.Cache = cfg
	}
}

// WithDedupConfig replaces the deduplicator configuration.
func WithDedupConfig(cfg dedup.Config) Option {
	return func(c *PipelineConfig) {
		c.Dedup = cfg
	}
}

// WithBatchConfig replaces the batch accumulator configuration.
func WithBatchConfig(cfg batch.Config) Option {
	return func(c *PipelineConfig) {
		c.Batch = cfg
	}
}

// WithWarmerConfig replaces the predictive warmer configuration.
func WithWarmerConfig(cfg warmer.Config) Option {
	return func(c *PipelineConfig) {
		c.Warmer = cfg
	}
}

// WithStreamConfig replaces the stream planner configuration.
func WithStreamConfig(cfg stream.Config) Option {
	return func(c *PipelineConfig) {
		c.Stream = cfg
	}
}

// WithBatching enables or disables batch accumulation. When operations
// are given they replace the batchable set.
func WithBatching(enabled bool, ops ...OperationKind) Option {
	return func(c *PipelineConfig) {
		c.BatchingEnabled = enabled
		if len(ops) > 0 {
			c.BatchableOperations = ops
		}
	}
}

// WithDirectTimeout bounds direct backend calls and batch result waits.
func WithDirectTimeout(d time.Duration) Option {
	return func(c *PipelineConfig) {
		c.DirectTimeout = d
	}
}

// WithClientHints sets the default hints for stream planning.
func WithClientHints(h ClientHints) Option {
	return func(c *PipelineConfig) {
		c.Hints = h
	}
}

// WithMetricsSink sets the telemetry sink.
func WithMetricsSink(s metrics.Sink) Option {
	return func(c *PipelineConfig) {
		c.Sink = s
	}
}

// WithPrometheusMetrics routes telemetry to the process-wide Prometheus
// registry.
func WithPrometheusMetrics() Option {
	return func(c *PipelineConfig) {
		c.Sink = metrics.NewPromSink()
	}
}

// WithSnapshots enables periodic state snapshots to the given store.
// A zero interval uses the snapshotter default.
func WithSnapshots(store persist.Store, interval time.Duration) Option {
	return func(c *PipelineConfig) {
		c.SnapshotStore = store
		c.SnapshotInterval = interval
	}
}

// WithWarmingLoop runs the warmer's periodic analyze-and-warm cycle in
// the background for the lifetime of the pipeline.
func WithWarmingLoop(enabled bool) Option {
	return func(c *PipelineConfig) {
		c.WarmingLoop = enabled
	}
}

// WithHealthProbe enables proactive tier probing with the given settings.
func WithHealthProbe(cfg healthcheck.Config) Option {
	return func(c *PipelineConfig) {
		cfg.Enabled = true
		c.Health = cfg
	}
}

// WithLogger sets the logger for pipeline operations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *PipelineConfig) {
		c.Logger = logger
	}
}

// WithConfig applies a file-loaded configuration. Tier entries are bound
// to backends registered via WithBackend; component sections replace
// their option-level counterparts.
func WithConfig(cfg *config.Config) Option {
	return func(c *PipelineConfig) {
		c.fileConfig = cfg
		c.Cache = cfg.Cache
		c.Dedup = cfg.Dedup
		c.Batch = cfg.Batch
		c.RouterConfig = cfg.Router
		c.Warmer = cfg.Warmer
		c.Stream = cfg.Stream
		c.Health = cfg.Health
		c.BatchingEnabled = cfg.Pipeline.BatchingEnabled
		if len(cfg.Pipeline.BatchableOperations) > 0 {
			ops := make([]OperationKind, 0, len(cfg.Pipeline.BatchableOperations))
			for _, op := range cfg.Pipeline.BatchableOperations {
				ops = append(ops, OperationKind(op))
			}
			c.BatchableOperations = ops
		}
		if cfg.Pipeline.DirectTimeout > 0 {
			c.DirectTimeout = cfg.Pipeline.DirectTimeout
		}
	}
}

// WithBackend binds a backend to a tier name declared in a file-loaded
// configuration.
func WithBackend(tierName string, b Backend) Option {
	return func(c *PipelineConfig) {
		c.backends[tierName] = b
	}
}

// resolveTiers merges option-level tiers with file-configured tiers
// bound to registered backends.
func (c *PipelineConfig) resolveTiers() ([]Tier, error) {
	tiers := make([]Tier, len(c.Tiers))
	copy(tiers, c.Tiers)
	if c.fileConfig == nil {
		return tiers, nil
	}
	for _, tc := range c.fileConfig.Tiers {
		b, ok := c.backends[tc.Name]
		if !ok {
			return nil, fmt.Errorf("no backend registered for tier %q", tc.Name)
		}
		suitability := make([]Complexity, 0, len(tc.Suitability))
		for _, s := range tc.Suitability {
			suitability = append(suitability, backend.Complexity(s))
		}
		tiers = append(tiers, Tier{
			Name:         tc.Name,
			BaseCost:     tc.BaseCost,
			QualityScore: tc.QualityScore,
			AvgLatencyMs: tc.AvgLatencyMs,
			Suitability:  suitability,
			Default:      tc.Default,
			Backend:      b,
		})
	}
	return tiers, nil
}
