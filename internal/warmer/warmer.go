// Package warmer predicts which cache entries will be needed soon and
// primes them ahead of demand. It observes request traffic to build usage
// patterns, runs interchangeable prediction strategies over them, and warms
// the content cache in the background. It never answers requests directly
// and never blocks the synchronous request path.
package warmer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/flipsync/costwise/internal/keys"
	"github.com/flipsync/costwise/pkg/types"
)

// Strategy names a prediction strategy.
type Strategy string

const (
	// StrategyUsageFrequency favors the most accessed keys.
	StrategyUsageFrequency Strategy = "usage_frequency"

	// StrategyTemporalRegularity favors keys accessed at consistent
	// intervals whose next access falls inside the prediction horizon.
	StrategyTemporalRegularity Strategy = "temporal_regularity"

	// StrategyContentSimilarity favors keys whose content resembles
	// recently accessed content.
	StrategyContentSimilarity Strategy = "content_similarity"

	// StrategyMarketplaceAffinity favors keys from the marketplace and
	// category the prediction context names.
	StrategyMarketplaceAffinity Strategy = "marketplace_affinity"
)

// AllStrategies returns every prediction strategy.
func AllStrategies() []Strategy {
	return []Strategy{
		StrategyUsageFrequency,
		StrategyTemporalRegularity,
		StrategyContentSimilarity,
		StrategyMarketplaceAffinity,
	}
}

// maxAccessTimes bounds the per-pattern access history.
const maxAccessTimes = 20

// UsagePattern is the observed access history for one cache key.
type UsagePattern struct {
	Key         string
	Operation   types.OperationKind
	Content     string
	Marketplace string
	Category    string

	AccessCount int64
	AccessTimes []time.Time
	LastAccess  time.Time

	tokens map[string]struct{}
}

// Candidate is one predicted key with its confidence.
type Candidate struct {
	Key         string
	Operation   types.OperationKind
	Content     string
	Confidence  float64
	Strategy    Strategy
	Marketplace string
	Category    string
}

// Prediction is the merged output of one prediction pass.
type Prediction struct {
	Candidates         []Candidate
	WarmingRecommended bool
	GeneratedAt        time.Time
}

// PredictionContext scopes a prediction pass.
type PredictionContext struct {
	Marketplace string
	Category    string

	// Horizon is how far ahead the prediction looks. Zero uses the
	// configured default.
	Horizon time.Duration
}

// WarmFunc primes the content cache for one candidate. It runs off the
// synchronous path and each invocation is independently pass/fail.
type WarmFunc func(ctx context.Context, c Candidate) error

// Config holds warmer configuration.
type Config struct {
	// Enabled gates all warming. Predictions still run when disabled so
	// callers can inspect them, but Warm becomes a no-op.
	Enabled bool `yaml:"enabled"`

	// PatternTTL evicts usage patterns not refreshed within it.
	// Default: 24h.
	PatternTTL time.Duration `yaml:"pattern_ttl"`

	// AnalyzeInterval is the period of the background analyze/warm cycle.
	// Default: 10m.
	AnalyzeInterval time.Duration `yaml:"analyze_interval"`

	// Horizon is the default prediction lookahead. Default: 1h.
	Horizon time.Duration `yaml:"horizon"`

	// ConfidenceThreshold gates individual warming attempts. Default: 0.7.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// MaxCandidates caps merged predictions. Default: 20.
	MaxCandidates int `yaml:"max_candidates"`

	// WarmConcurrency bounds parallel warming attempts. Default: 4.
	WarmConcurrency int `yaml:"warm_concurrency"`

	// MinAccessCount is the minimum observations before a pattern is
	// considered by any strategy. Default: 2.
	MinAccessCount int64 `yaml:"min_access_count"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		PatternTTL:          24 * time.Hour,
		AnalyzeInterval:     10 * time.Minute,
		Horizon:             time.Hour,
		ConfidenceThreshold: 0.7,
		MaxCandidates:       20,
		WarmConcurrency:     4,
		MinAccessCount:      2,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.PatternTTL <= 0 {
		c.PatternTTL = d.PatternTTL
	}
	if c.AnalyzeInterval <= 0 {
		c.AnalyzeInterval = d.AnalyzeInterval
	}
	if c.Horizon <= 0 {
		c.Horizon = d.Horizon
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.WarmConcurrency <= 0 {
		c.WarmConcurrency = d.WarmConcurrency
	}
	if c.MinAccessCount <= 0 {
		c.MinAccessCount = d.MinAccessCount
	}
}

// Stats is a snapshot of warming counters.
type Stats struct {
	PatternCount int     `json:"pattern_count"`
	Attempted    int64   `json:"attempted"`
	Succeeded    int64   `json:"succeeded"`
	Efficiency   float64 `json:"efficiency"`
}

// Warmer observes request traffic and primes the cache ahead of demand.
type Warmer struct {
	config Config
	warmFn WarmFunc
	logger *slog.Logger

	mu       sync.Mutex // guards pattern mutation
	patterns *gocache.Cache

	attempted atomic.Int64
	succeeded atomic.Int64
}

// New creates a warmer. warmFn primes one cache entry; a nil logger falls
// back to slog.Default.
func New(cfg Config, warmFn WarmFunc, logger *slog.Logger) *Warmer {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Warmer{
		config:   cfg,
		warmFn:   warmFn,
		logger:   logger,
		patterns: gocache.New(cfg.PatternTTL, cfg.PatternTTL/4),
	}
}

// RecordAccess folds one served request into the usage pattern table.
func (w *Warmer) RecordAccess(key string, req *types.OptimizationRequest) {
	if req == nil {
		return
	}
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	var p *UsagePattern
	if v, ok := w.patterns.Get(key); ok {
		p = v.(*UsagePattern)
	} else {
		p = &UsagePattern{
			Key:         key,
			Operation:   req.Operation,
			Content:     req.Content,
			Marketplace: req.Context.Marketplace,
			Category:    req.Context.Category,
			tokens:      keys.Tokens(req.Content),
		}
	}

	p.AccessCount++
	p.LastAccess = now
	p.AccessTimes = append(p.AccessTimes, now)
	if len(p.AccessTimes) > maxAccessTimes {
		p.AccessTimes = p.AccessTimes[len(p.AccessTimes)-maxAccessTimes:]
	}
	w.patterns.Set(key, p, gocache.DefaultExpiration)
}

// Predict runs the given strategies over the pattern table and merges their
// candidates: max confidence per key, capped, sorted by confidence
// descending. An empty strategy list runs all of them.
func (w *Warmer) Predict(ctx context.Context, pctx PredictionContext, strategies ...Strategy) *Prediction {
	if len(strategies) == 0 {
		strategies = AllStrategies()
	}
	if pctx.Horizon <= 0 {
		pctx.Horizon = w.config.Horizon
	}

	patterns := w.snapshotPatterns()
	byKey := make(map[string]Candidate)
	for _, s := range strategies {
		for _, c := range w.runStrategy(s, patterns, pctx) {
			if prev, ok := byKey[c.Key]; !ok || c.Confidence > prev.Confidence {
				byKey[c.Key] = c
			}
		}
	}

	merged := make([]Candidate, 0, len(byKey))
	for _, c := range byKey {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Confidence != merged[j].Confidence {
			return merged[i].Confidence > merged[j].Confidence
		}
		return merged[i].Key < merged[j].Key
	})
	if len(merged) > w.config.MaxCandidates {
		merged = merged[:w.config.MaxCandidates]
	}

	return &Prediction{
		Candidates:         merged,
		WarmingRecommended: len(merged) > 0 && merged[0].Confidence >= w.config.ConfidenceThreshold,
		GeneratedAt:        time.Now(),
	}
}

// Warm attempts to prime the cache for every candidate at or above the
// confidence threshold. Attempts are independent; one failure never stops
// the rest. Returns the number of successful attempts.
func (w *Warmer) Warm(ctx context.Context, pred *Prediction) int {
	if !w.config.Enabled || w.warmFn == nil || pred == nil {
		return 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.WarmConcurrency)

	var succeeded atomic.Int64
	for _, c := range pred.Candidates {
		if c.Confidence < w.config.ConfidenceThreshold {
			continue
		}
		w.attempted.Add(1)
		c := c
		g.Go(func() error {
			if err := w.warmFn(gctx, c); err != nil {
				w.logger.Debug("warming attempt failed", "key", c.Key, "strategy", c.Strategy, "error", err)
				return nil
			}
			succeeded.Add(1)
			w.succeeded.Add(1)
			return nil
		})
	}
	g.Wait()
	return int(succeeded.Load())
}

// Run executes the periodic analyze/warm cycle until the context ends.
func (w *Warmer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.AnalyzeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pred := w.Predict(ctx, PredictionContext{})
			if pred.WarmingRecommended {
				n := w.Warm(ctx, pred)
				w.logger.Info("warming cycle complete",
					"candidates", len(pred.Candidates), "warmed", n)
			}
		}
	}
}

// Efficiency is the running share of warming attempts that succeeded.
func (w *Warmer) Efficiency() float64 {
	attempted := w.attempted.Load()
	if attempted == 0 {
		return 0
	}
	return float64(w.succeeded.Load()) / float64(attempted)
}

// Stats returns a snapshot of warming counters.
func (w *Warmer) Stats() Stats {
	return Stats{
		PatternCount: w.patterns.ItemCount(),
		Attempted:    w.attempted.Load(),
		Succeeded:    w.succeeded.Load(),
		Efficiency:   w.Efficiency(),
	}
}

func (w *Warmer) snapshotPatterns() []*UsagePattern {
	w.mu.Lock()
	defer w.mu.Unlock()

	items := w.patterns.Items()
	out := make([]*UsagePattern, 0, len(items))
	for _, item := range items {
		p := item.Object.(*UsagePattern)
		if p.AccessCount < w.config.MinAccessCount {
			continue
		}
		// Detached copy: RecordAccess keeps mutating the live pattern
		// while strategies read these outside the lock. The tokens map
		// is write-once at creation and safe to share.
		cp := *p
		cp.AccessTimes = append([]time.Time(nil), p.AccessTimes...)
		out = append(out, &cp)
	}
	return out
}
