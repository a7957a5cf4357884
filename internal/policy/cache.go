package policy

import (
	"sync"
	"time"
)

// resultCache is a fixed-capacity LRU cache of validation results keyed
// by raw input string. Correctness relies on Normalize and the rule
// tables being pure functions of the input; SetOverrides flushes it.
type resultCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	maxEntries int
	metrics    *Metrics
}

type cacheEntry struct {
	result       Result
	lastAccessed time.Time
}

func newResultCache(maxEntries int, metrics *Metrics) *resultCache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &resultCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		metrics:    metrics,
	}
}

func (c *resultCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		if c.metrics != nil {
			c.metrics.RecordCacheMiss()
		}
		return Result{}, false
	}
	entry.lastAccessed = time.Now()
	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
	return entry.result, true
}

func (c *resultCache) set(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLRU()
	}
	c.entries[key] = &cacheEntry{
		result:       result,
		lastAccessed: time.Now(),
	}
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLRU removes the least recently used entry. Caller holds the lock.
func (c *resultCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	first := true
	for key, entry := range c.entries {
		if first || entry.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessed
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
