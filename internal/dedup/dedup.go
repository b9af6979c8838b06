// Package dedup implements the in-memory deduplication cache that shadows
// storage for the ingestion server: source_path -> {content_hash,
// document_id, last_seen}. The cache is advisory only; storage is always
// authoritative, and any disagreement between the two is resolved in
// storage's favour and repaired back into the cache.
package dedup

import (
	"sync"
	"time"
)

// Outcome classifies a cache lookup.
type Outcome int

const (
	// NewPath means the path has no cache entry; storage must be consulted.
	NewPath Outcome = iota
	// Duplicate means the path is cached with a matching content hash.
	Duplicate
	// Changed means the path is cached but the content hash differs.
	Changed
)

// entry is one cached path's state.
type entry struct {
	contentHash string
	documentID  string
	lastSeen    time.Time
}

// Config controls cache sizing and entry lifetime.
type Config struct {
	// MaxEntries bounds the cache size. Default 10000.
	MaxEntries int
	// TTL is the entry lifetime. Default 24h.
	TTL time.Duration
}

// DefaultConfig returns the spec's default cache sizing.
func DefaultConfig() Config {
	return Config{MaxEntries: 10000, TTL: 24 * time.Hour}
}

// Cache is a bounded, TTL'd, LRU-by-last-seen in-memory map.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxSize int
	ttl     time.Duration
}

// New constructs a Cache from cfg, filling in defaults for zero fields.
func New(cfg Config) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Cache{
		entries: make(map[string]*entry),
		maxSize: cfg.MaxEntries,
		ttl:     cfg.TTL,
	}
}

// Lookup checks the cache for sourcePath and classifies it against
// contentHash. A cache hit refreshes the entry's last-seen time (TTL is
// refreshed on read), per the specification's chosen resolution of its
// open question about cache-hit TTL semantics.
func (c *Cache) Lookup(sourcePath, contentHash string) (Outcome, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[sourcePath]
	if !ok {
		return NewPath, ""
	}
	if time.Since(e.lastSeen) > c.ttl {
		delete(c.entries, sourcePath)
		return NewPath, ""
	}

	e.lastSeen = time.Now()

	if e.contentHash == contentHash {
		return Duplicate, e.documentID
	}
	return Changed, e.documentID
}

// Put records or refreshes the cached state for sourcePath, evicting the
// least-recently-seen entry first if the cache is at capacity.
func (c *Cache) Put(sourcePath, contentHash, documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[sourcePath]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[sourcePath] = &entry{
		contentHash: contentHash,
		documentID:  documentID,
		lastSeen:    time.Now(),
	}
}

// Evict removes a path's cache entry outright, so the next Lookup for it
// reports NewPath. The ingestion server does not call it; it refreshes
// entries with Put after each storage write or skip.
func (c *Cache) Evict(sourcePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sourcePath)
}

// evictOldest drops the entry with the oldest last-seen time. Caller must
// hold c.mu.
func (c *Cache) evictOldest() {
	var oldestPath string
	var oldestTime time.Time
	first := true
	for path, e := range c.entries {
		if first || e.lastSeen.Before(oldestTime) {
			oldestPath = path
			oldestTime = e.lastSeen
			first = false
		}
	}
	if oldestPath != "" {
		delete(c.entries, oldestPath)
	}
}

// Len reports the current number of cached entries, for metrics and tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
