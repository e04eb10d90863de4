// Package cache implements the content-addressable response cache: a
// bounded in-memory store with LRU + TTL eviction and a token-overlap
// similarity fallback for near-identical requests.
package cache

import (
	"container/list"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flipsync/costwise/internal/keys"
	"github.com/flipsync/costwise/pkg/types"
)

// Entry is a single cached response. Entries are mutated only under the
// cache lock: a hit bumps HitCount and LastAccessed and promotes the entry
// to MRU.
type Entry struct {
	Key          string              `json:"key"`
	Operation    types.OperationKind `json:"operation"`
	Payload      string              `json:"payload"`
	Quality      float64             `json:"quality"`
	CostBasis    float64             `json:"cost_basis"`
	CreatedAt    time.Time           `json:"created_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
	HitCount     int                 `json:"hit_count"`
	LastAccessed time.Time           `json:"last_accessed"`

	tokens map[string]struct{}
}

// Hit is the result of a successful lookup.
type Hit struct {
	Payload   string
	Quality   float64
	CostBasis float64
	// Similarity is 1.0 for an exact key match, otherwise the token-overlap
	// score of the matched entry.
	Similarity float64
}

// Config holds configuration for the content cache.
type Config struct {
	// MaxEntries bounds the store; the least-recently-accessed entry is
	// evicted before an insert at capacity. Default: 1000.
	MaxEntries int `yaml:"max_entries"`

	// DefaultTTL applies when Store is called with ttl <= 0. Default: 1h.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// QualityThreshold rejects low-quality payloads at store time.
	// Default: 0.8.
	QualityThreshold float64 `yaml:"quality_threshold"`

	// SimilarityThreshold is the minimum token-overlap score for the
	// similarity fallback. Default: 0.85.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries:          1000,
		DefaultTTL:          time.Hour,
		QualityThreshold:    0.8,
		SimilarityThreshold: 0.85,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxEntries <= 0 {
		c.MaxEntries = d.MaxEntries
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = d.DefaultTTL
	}
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = d.QualityThreshold
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
}

// Stats holds cache counters for monitoring.
type Stats struct {
	Hits           int64   `json:"hits"`
	SimilarityHits int64   `json:"similarity_hits"`
	Misses         int64   `json:"misses"`
	Stores         int64   `json:"stores"`
	Rejections     int64   `json:"rejections"`
	Evictions      int64   `json:"evictions"`
	Expirations    int64   `json:"expirations"`
	Size           int     `json:"size"`
	HitRate        float64 `json:"hit_rate"`
}

// ContentCache is safe for concurrent use. The lock covers only map and
// list mutation; callers never hold it across a backend invocation.
type ContentCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element // key -> element whose Value is *Entry
	lru        *list.List               // front = MRU, back = LRU
	similarity Similarity
	config     Config
	logger     *slog.Logger

	hits           atomic.Int64
	similarityHits atomic.Int64
	misses         atomic.Int64
	stores         atomic.Int64
	rejections     atomic.Int64
	evictions      atomic.Int64
	expirations    atomic.Int64
}

// New creates a content cache. A nil logger falls back to slog.Default.
func New(cfg Config, logger *slog.Logger) *ContentCache {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentCache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		similarity: TokenOverlap{},
		config:     cfg,
		logger:     logger,
	}
}

// SetSimilarity replaces the similarity strategy. Must be called before the
// cache is shared across goroutines.
func (c *ContentCache) SetSimilarity(s Similarity) {
	if s != nil {
		c.similarity = s
	}
}

// Lookup tries the exact key first; on miss it scans entries of the same
// operation kind whose quality meets the requirement, returning the best
// match at or above the similarity threshold. Expired entries encountered
// along the way are purged.
func (c *ContentCache) Lookup(key string, op types.OperationKind, content string, qualityReq float64) (*Hit, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked(now)

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*Entry)
		if entry.Quality >= qualityReq {
			c.touchLocked(elem, entry, now)
			c.hits.Add(1)
			return &Hit{
				Payload:    entry.Payload,
				Quality:    entry.Quality,
				CostBasis:  entry.CostBasis,
				Similarity: 1.0,
			}, true
		}
		// Exact entry exists but cannot satisfy the requirement; fall
		// through to similarity in case a higher-quality neighbor can.
	}

	queryTokens := keys.Tokens(content)
	var best *list.Element
	bestScore := 0.0

	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*Entry)
		if entry.Operation != op || entry.Quality < qualityReq || entry.Key == key {
			continue
		}
		score := c.similarity.Score(queryTokens, entry.tokens)
		if score >= c.config.SimilarityThreshold && score > bestScore {
			best, bestScore = elem, score
		}
	}

	if best != nil {
		entry := best.Value.(*Entry)
		c.touchLocked(best, entry, now)
		c.similarityHits.Add(1)
		return &Hit{
			Payload:    entry.Payload,
			Quality:    entry.Quality,
			CostBasis:  entry.CostBasis,
			Similarity: bestScore,
		}, true
	}

	c.misses.Add(1)
	return nil, false
}

// Store inserts a response. Payloads below the quality threshold are never
// cached. At capacity the least-recently-accessed entry is evicted first.
func (c *ContentCache) Store(key string, op types.OperationKind, content, payload string, quality, cost float64, ttl time.Duration) {
	if quality < c.config.QualityThreshold {
		c.rejections.Add(1)
		c.logger.Debug("cache store rejected", "key", key, "quality", quality)
		return
	}
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	now := time.Now()
	entry := &Entry{
		Key:          key,
		Operation:    op,
		Payload:      payload,
		Quality:      quality,
		CostBasis:    cost,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
		tokens:       keys.Tokens(content),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked(now)

	if elem, ok := c.entries[key]; ok {
		elem.Value = entry
		c.lru.MoveToFront(elem)
		c.stores.Add(1)
		return
	}

	if c.lru.Len() >= c.config.MaxEntries {
		c.evictLocked()
	}

	c.entries[key] = c.lru.PushFront(entry)
	c.stores.Add(1)
}

// Delete removes a key if present.
func (c *ContentCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.lru.Remove(elem)
		delete(c.entries, key)
	}
}

// Len returns the current number of entries.
func (c *ContentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of cache counters.
func (c *ContentCache) Stats() Stats {
	hits := c.hits.Load() + c.similarityHits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:           c.hits.Load(),
		SimilarityHits: c.similarityHits.Load(),
		Misses:         misses,
		Stores:         c.stores.Load(),
		Rejections:     c.rejections.Load(),
		Evictions:      c.evictions.Load(),
		Expirations:    c.expirations.Load(),
		Size:           c.Len(),
		HitRate:        rate,
	}
}

func (c *ContentCache) touchLocked(elem *list.Element, entry *Entry, now time.Time) {
	entry.HitCount++
	entry.LastAccessed = now
	c.lru.MoveToFront(elem)
}

func (c *ContentCache) purgeExpiredLocked(now time.Time) {
	var next *list.Element
	for elem := c.lru.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*Entry)
		if now.After(entry.ExpiresAt) {
			c.lru.Remove(elem)
			delete(c.entries, entry.Key)
			c.expirations.Add(1)
		}
	}
}

func (c *ContentCache) evictLocked() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*Entry)
	c.lru.Remove(back)
	delete(c.entries, entry.Key)
	c.evictions.Add(1)
	c.logger.Debug("cache evicted lru entry", "key", entry.Key, "hit_count", entry.HitCount)
}
