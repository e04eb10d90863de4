// Package dedup implements time-windowed request deduplication. A
// fingerprint registry tracks recently seen requests inside a sliding dedup
// window; a longer rate-limit window caps the number of distinct executions
// per key, bounding fan-out even when content varies slightly.
package dedup

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Fingerprint is the derived identity of a recently seen request. It is
// narrower-lived than a cache key: the table purges anything older than the
// rate-limit window.
type Fingerprint struct {
	Key         string    `json:"key"`
	ContentHash string    `json:"content_hash"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Occurrences int       `json:"occurrences"`
}

// Result describes the outcome of a duplicate check.
type Result struct {
	IsDuplicate bool
	Matched     *Fingerprint
	Age         time.Duration
}

// Config holds deduplicator configuration.
type Config struct {
	// DedupWindow is the sliding window inside which an identical key is a
	// duplicate. Default: 5m.
	DedupWindow time.Duration `yaml:"dedup_window"`

	// RateLimitWindow bounds distinct executions per key; fingerprints are
	// retained this long. Default: 1h.
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`

	// MaxExecutionsPerWindow caps distinct executions per key inside the
	// rate-limit window. Default: 10.
	MaxExecutionsPerWindow int `yaml:"max_executions_per_window"`

	// MaxEntries bounds the fingerprint table. When a purge cannot bring
	// the table under this limit, the whole table is cleared: a coarse
	// backpressure valve. Default: 10000.
	MaxEntries int `yaml:"max_entries"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DedupWindow:            5 * time.Minute,
		RateLimitWindow:        time.Hour,
		MaxExecutionsPerWindow: 10,
		MaxEntries:             10000,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.DedupWindow <= 0 {
		c.DedupWindow = d.DedupWindow
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = d.RateLimitWindow
	}
	if c.MaxExecutionsPerWindow <= 0 {
		c.MaxExecutionsPerWindow = d.MaxExecutionsPerWindow
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = d.MaxEntries
	}
}

// Stats holds deduplicator counters.
type Stats struct {
	Checks      int64 `json:"checks"`
	Duplicates  int64 `json:"duplicates"`
	RateLimited int64 `json:"rate_limited"`
	Clears      int64 `json:"clears"`
	Size        int   `json:"size"`
}

// Deduplicator is safe for concurrent use. The lock covers only table
// mutation, never a backend call.
type Deduplicator struct {
	mu           sync.Mutex
	fingerprints map[string]*Fingerprint
	limiters     map[string]*rate.Limiter
	matcher      Matcher
	config       Config
	logger       *slog.Logger

	checks      atomic.Int64
	duplicates  atomic.Int64
	rateLimited atomic.Int64
	clears      atomic.Int64
}

// New creates a deduplicator. A nil logger falls back to slog.Default.
func New(cfg Config, logger *slog.Logger) *Deduplicator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{
		fingerprints: make(map[string]*Fingerprint),
		limiters:     make(map[string]*rate.Limiter),
		matcher:      PrefixMatcher{Chars: 8},
		config:       cfg,
		logger:       logger,
	}
}

// SetMatcher replaces the content-hash matcher strategy. Must be called
// before the deduplicator is shared across goroutines.
func (d *Deduplicator) SetMatcher(m Matcher) {
	if m != nil {
		d.matcher = m
	}
}

// Check reports whether the request identified by key/contentHash is a
// duplicate. A request is a duplicate when an identical key exists with age
// below the dedup window, or when a similar content hash exists within the
// window and the key's distinct-execution budget is exhausted. Unique
// requests register a new fingerprint; duplicates refresh the existing one
// without new storage. Expired fingerprints are purged on every call.
func (d *Deduplicator) Check(key, contentHash string) Result {
	d.checks.Add(1)
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.purgeLocked(now)

	if fp, ok := d.fingerprints[key]; ok {
		age := now.Sub(fp.LastSeen)
		if age < d.config.DedupWindow {
			fp.Occurrences++
			fp.LastSeen = now
			d.duplicates.Add(1)
			return Result{IsDuplicate: true, Matched: fp, Age: age}
		}
	}

	// Near-duplicate content shares one execution budget per hash bucket,
	// so fan-out stays bounded even when content varies slightly. Below
	// the cap, variations are allowed through as distinct executions.
	if !d.allowExecutionLocked(d.matcher.Bucket(contentHash)) {
		if fp := d.matchSimilarLocked(key, contentHash, now); fp != nil {
			fp.Occurrences++
			fp.LastSeen = now
			d.duplicates.Add(1)
			d.rateLimited.Add(1)
			return Result{IsDuplicate: true, Matched: fp, Age: now.Sub(fp.FirstSeen)}
		}
	}

	d.registerLocked(key, contentHash, now)
	return Result{}
}

// Len returns the current fingerprint table size.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fingerprints)
}

// Stats returns a snapshot of deduplicator counters.
func (d *Deduplicator) Stats() Stats {
	return Stats{
		Checks:      d.checks.Load(),
		Duplicates:  d.duplicates.Load(),
		RateLimited: d.rateLimited.Load(),
		Clears:      d.clears.Load(),
		Size:        d.Len(),
	}
}

func (d *Deduplicator) registerLocked(key, contentHash string, now time.Time) {
	if fp, ok := d.fingerprints[key]; ok {
		fp.ContentHash = contentHash
		fp.LastSeen = now
		fp.Occurrences++
		return
	}
	d.fingerprints[key] = &Fingerprint{
		Key:         key,
		ContentHash: contentHash,
		FirstSeen:   now,
		LastSeen:    now,
		Occurrences: 1,
	}
}

// allowExecutionLocked consumes one distinct-execution token for the hash
// bucket. The token-bucket refill rate spreads MaxExecutionsPerWindow
// evenly across the rate-limit window.
func (d *Deduplicator) allowExecutionLocked(bucket string) bool {
	lim, ok := d.limiters[bucket]
	if !ok {
		per := rate.Every(d.config.RateLimitWindow / time.Duration(d.config.MaxExecutionsPerWindow))
		lim = rate.NewLimiter(per, d.config.MaxExecutionsPerWindow)
		d.limiters[bucket] = lim
	}
	return lim.Allow()
}

func (d *Deduplicator) matchSimilarLocked(key, contentHash string, now time.Time) *Fingerprint {
	for _, fp := range d.fingerprints {
		if fp.Key == key {
			continue
		}
		if now.Sub(fp.LastSeen) >= d.config.DedupWindow {
			continue
		}
		if d.matcher.Match(contentHash, fp.ContentHash) {
			return fp
		}
	}
	return nil
}

func (d *Deduplicator) purgeLocked(now time.Time) {
	for key, fp := range d.fingerprints {
		if now.Sub(fp.LastSeen) >= d.config.RateLimitWindow {
			delete(d.fingerprints, key)
		}
	}

	// Idle limiters refill on their own; the map only needs a size cap.
	if len(d.limiters) > d.config.MaxEntries {
		d.limiters = make(map[string]*rate.Limiter)
	}

	if len(d.fingerprints) > d.config.MaxEntries {
		d.logger.Warn("fingerprint table over capacity, clearing",
			"size", len(d.fingerprints), "max", d.config.MaxEntries)
		d.fingerprints = make(map[string]*Fingerprint)
		d.limiters = make(map[string]*rate.Limiter)
		d.clears.Add(1)
	}
}
