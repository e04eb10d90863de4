package cache

import (
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// snapshotEntry is the persisted form of an Entry. The token set is
// flattened to a sorted slice so snapshots are deterministic.
type snapshotEntry struct {
	Entry
	Tokens []string `json:"tokens,omitempty"`
}

// EncodeSnapshot serializes all live entries in LRU order (least recent
// first) for best-effort persistence.
func (c *ContentCache) EncodeSnapshot() ([]byte, error) {
	now := time.Now()

	c.mu.Lock()
	snap := make([]snapshotEntry, 0, c.lru.Len())
	c.purgeExpiredLocked(now)
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*Entry)
		toks := make([]string, 0, len(entry.tokens))
		for t := range entry.tokens {
			toks = append(toks, t)
		}
		sort.Strings(toks)
		snap = append(snap, snapshotEntry{Entry: *entry, Tokens: toks})
	}
	c.mu.Unlock()

	return json.Marshal(snap)
}

// RestoreSnapshot loads entries from a serialized snapshot, skipping any
// that have expired. Entries are inserted in snapshot order, so the last
// one becomes MRU. A decode failure leaves the cache untouched: a corrupt
// snapshot is a cold start, not an error the caller must handle.
func (c *ContentCache) RestoreSnapshot(data []byte) error {
	var snap []snapshotEntry
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range snap {
		entry := snap[i].Entry
		if now.After(entry.ExpiresAt) {
			continue
		}
		if _, ok := c.entries[entry.Key]; ok {
			continue
		}
		if c.lru.Len() >= c.config.MaxEntries {
			c.evictLocked()
		}
		entry.tokens = make(map[string]struct{}, len(snap[i].Tokens))
		for _, t := range snap[i].Tokens {
			entry.tokens[t] = struct{}{}
		}
		c.entries[entry.Key] = c.lru.PushFront(&entry)
	}
	return nil
}
