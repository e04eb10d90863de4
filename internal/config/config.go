// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for
// zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flipsync/costwise/internal/batch"
	"github.com/flipsync/costwise/internal/cache"
	"github.com/flipsync/costwise/internal/dedup"
	"github.com/flipsync/costwise/internal/healthcheck"
	"github.com/flipsync/costwise/internal/stream"
	"github.com/flipsync/costwise/internal/warmer"
	"github.com/flipsync/costwise/pkg/router"
	"github.com/flipsync/costwise/routers"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Pipeline PipelineConfig     `yaml:"pipeline"`
	Cache    cache.Config       `yaml:"cache"`
	Dedup    dedup.Config       `yaml:"dedup"`
	Batch    batch.Config       `yaml:"batch"`
	Router   router.Config      `yaml:"router"`
	Warmer   warmer.Config      `yaml:"warmer"`
	Stream   stream.Config      `yaml:"stream"`
	Health   healthcheck.Config `yaml:"health"`
	Tiers    []TierConfig       `yaml:"tiers"`
	Persist  PersistConfig      `yaml:"persist"`
	Metrics  MetricsConfig      `yaml:"metrics"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// PipelineConfig contains orchestrator-level settings.
type PipelineConfig struct {
	// BatchingEnabled gates the batch accumulator path.
	BatchingEnabled bool `yaml:"batching_enabled"`

	// BatchableOperations lists the operation kinds that may be batched.
	BatchableOperations []string `yaml:"batchable_operations"`

	// DirectTimeout bounds degraded direct backend calls.
	DirectTimeout time.Duration `yaml:"direct_timeout"`
}

// TierConfig declares one routable backend tier.
type TierConfig struct {
	Name         string   `yaml:"name"`
	BaseCost     float64  `yaml:"base_cost"`
	QualityScore float64  `yaml:"quality_score"`
	AvgLatencyMs float64  `yaml:"avg_latency_ms"`
	Suitability  []string `yaml:"suitability"`
	Default      bool     `yaml:"default"`
}

// PersistConfig controls best-effort snapshot durability.
type PersistConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Backend  string        `yaml:"backend"` // file, redis
	Dir      string        `yaml:"dir"`
	Redis    string        `yaml:"redis"` // host:port
	Interval time.Duration `yaml:"interval"`
	TTL      time.Duration `yaml:"ttl"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			BatchingEnabled: true,
			BatchableOperations: []string{
				"vision_analysis", "listing_generation", "content_optimization",
			},
			DirectTimeout: 30 * time.Second,
		},
		Cache:  cache.DefaultConfig(),
		Dedup:  dedup.DefaultConfig(),
		Batch:  batch.DefaultConfig(),
		Router: router.DefaultConfig(),
		Warmer: warmer.DefaultConfig(),
		Stream: stream.DefaultConfig(),
		Persist: PersistConfig{
			Enabled:  false,
			Backend:  "file",
			Dir:      "snapshots",
			Interval: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Addr:    ":9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile reads, parses, and validates a YAML configuration file.
// Fields absent from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Router.Strategy != "" && !routers.IsValidStrategy(string(c.Router.Strategy)) {
		return fmt.Errorf("unknown routing strategy: %s", c.Router.Strategy)
	}

	defaults := 0
	for _, t := range c.Tiers {
		if t.Name == "" {
			return fmt.Errorf("tier without a name")
		}
		if t.QualityScore < 0 || t.QualityScore > 1 {
			return fmt.Errorf("tier %s: quality_score must be in [0, 1]", t.Name)
		}
		if t.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("at most one tier may be marked default, found %d", defaults)
	}

	switch c.Persist.Backend {
	case "", "file", "redis":
	default:
		return fmt.Errorf("unknown persist backend: %s", c.Persist.Backend)
	}
	if c.Persist.Enabled && c.Persist.Backend == "redis" && c.Persist.Redis == "" {
		return fmt.Errorf("persist backend redis requires an address")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Logging.Level)
	}
	return nil
}
