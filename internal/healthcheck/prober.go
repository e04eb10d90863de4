// Package healthcheck provides proactive backend tier probing.
package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flipsync/costwise/pkg/backend"
	"github.com/flipsync/costwise/pkg/router"
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 10 * time.Second
	defaultFailureCutoff = 3
	canaryPrompt         = "ping"
)

// Config controls the proactive tier prober.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Interval between probe rounds. Default: 30s.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds each individual probe call. Default: 10s.
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold is how many consecutive probe failures remove a
	// tier from routing. Default: 3.
	FailureThreshold int `yaml:"failure_threshold"`
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = defaultProbeInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultProbeTimeout
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureCutoff
	}
}

// Prober periodically checks tier backends with a canary call. Tiers that
// fail repeatedly are pulled from routing and re-added once a probe
// succeeds again. The default tier is never removed: degraded fallback
// still needs somewhere to go.
type Prober struct {
	cfg    Config
	router router.Router
	logger *slog.Logger

	mu       sync.Mutex
	failures map[string]int
	removed  map[string]*backend.Tier

	started atomic.Bool
}

// NewProber creates a prober over the given router. A nil logger falls
// back to slog.Default.
func NewProber(cfg Config, rt router.Router, logger *slog.Logger) *Prober {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		cfg:      cfg,
		router:   rt,
		logger:   logger,
		failures: make(map[string]int),
		removed:  make(map[string]*backend.Tier),
	}
}

// Run probes on the configured interval until the context is cancelled.
// Calling Run twice is a no-op.
func (p *Prober) Run(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProbeAll(ctx)
		}
	}
}

// ProbeAll runs one probe round over live and removed tiers.
func (p *Prober) ProbeAll(ctx context.Context) {
	for _, tier := range p.router.Tiers() {
		p.probeLive(ctx, tier)
	}
	for _, tier := range p.removedSnapshot() {
		p.probeRemoved(ctx, tier)
	}
}

// Removed returns the names of tiers currently pulled from routing.
func (p *Prober) Removed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.removed))
	for name := range p.removed {
		names = append(names, name)
	}
	return names
}

func (p *Prober) probeLive(ctx context.Context, tier *backend.Tier) {
	if p.probe(ctx, tier) == nil {
		p.mu.Lock()
		p.failures[tier.Name] = 0
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	p.failures[tier.Name]++
	count := p.failures[tier.Name]
	remove := count >= p.cfg.FailureThreshold && !tier.Default
	if remove {
		p.removed[tier.Name] = tier
	}
	p.mu.Unlock()

	if remove {
		p.router.RemoveTier(tier.Name)
		p.logger.Warn("tier removed from routing after failed probes",
			"tier", tier.Name, "consecutive_failures", count)
	}
}

func (p *Prober) probeRemoved(ctx context.Context, tier *backend.Tier) {
	if p.probe(ctx, tier) != nil {
		return
	}

	p.mu.Lock()
	delete(p.removed, tier.Name)
	p.failures[tier.Name] = 0
	p.mu.Unlock()

	p.router.AddTier(tier)
	p.logger.Info("tier restored to routing", "tier", tier.Name)
}

func (p *Prober) probe(ctx context.Context, tier *backend.Tier) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	_, err := tier.Backend.Invoke(ctx, canaryPrompt, "", backend.ComplexitySimple)
	return err
}

func (p *Prober) removedSnapshot() []*backend.Tier {
	p.mu.Lock()
	defer p.mu.Unlock()
	tiers := make([]*backend.Tier, 0, len(p.removed))
	for _, t := range p.removed {
		tiers = append(tiers, t)
	}
	return tiers
}
