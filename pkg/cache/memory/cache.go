// Package memory implements a capacity-bounded, content-addressed result
// cache with value-scored eviction.
package memory

import (
	"sync"
	"time"

	"github.com/gatewise-ai/gatewise/pkg/fingerprint"
	"github.com/gatewise-ai/gatewise/pkg/models"
)

// accessHistoryCap bounds the per-entry access ring buffer.
const accessHistoryCap = 32

// access is one recorded touch of a cache entry.
type access struct {
	at     time.Time
	action string // "hit" or "insert"
}

// entry holds a cached result and its usage pattern. The result is immutable
// after insertion; only the usage pattern is updated on later touches.
type entry struct {
	result       models.Result
	originalCost float64
	sizeBytes    int

	frequency  int64
	lastAccess time.Time
	history    []access // ring buffer, capped at accessHistoryCap
	historyPos int

	insertSeq uint64
}

func (e *entry) touch(now time.Time, action string) {
	e.frequency++
	e.lastAccess = now
	a := access{at: now, action: action}
	if len(e.history) < accessHistoryCap {
		e.history = append(e.history, a)
	} else {
		e.history[e.historyPos] = a
		e.historyPos = (e.historyPos + 1) % accessHistoryCap
	}
}

// Cache is an in-memory fingerprint-keyed cache. Eviction prefers large,
// stale, rarely used entries: each candidate is scored
// (frequency*0.4 + 1/(secondsSinceAccess+1)*0.6) / sizeBytes and the minimum
// score is evicted, breaking ties by oldest insertion.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	seq        uint64

	hits      int64
	misses    int64
	evictions int64

	now func() time.Time
}

// New creates a Cache holding at most maxEntries entries. A non-positive
// maxEntries falls back to 1000.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cache{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached result for key. On a hit the entry's usage pattern
// is updated; the result itself is never mutated.
func (c *Cache) Get(key string) (models.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return models.Result{}, false
	}
	c.hits++
	e.touch(c.now(), "hit")
	return e.result, true
}

// OriginalCost returns the cost recorded when key was inserted.
func (c *Cache) OriginalCost(key string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	return e.originalCost, true
}

// Put inserts a result under key, evicting exactly one entry first if the
// cache is at capacity. Re-inserting an existing key refreshes its usage
// pattern without consuming capacity.
func (c *Cache) Put(key string, result models.Result, originalCost float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		e.touch(now, "insert")
		return
	}

	if len(c.entries) >= c.maxEntries {
		c.evictLeastValuable(now)
	}

	size := fingerprint.Size(result)
	if size <= 0 {
		size = 1
	}
	c.seq++
	e := &entry{
		result:       result,
		originalCost: originalCost,
		sizeBytes:    size,
		insertSeq:    c.seq,
	}
	e.touch(now, "insert")
	c.entries[key] = e
}

// evictLeastValuable removes the single entry with the minimum value score.
// Caller holds c.mu.
func (c *Cache) evictLeastValuable(now time.Time) {
	if len(c.entries) == 0 {
		return
	}

	var victim string
	var victimScore float64
	var victimSeq uint64
	first := true
	for key, e := range c.entries {
		staleness := now.Sub(e.lastAccess).Seconds()
		if staleness < 0 {
			staleness = 0
		}
		score := (float64(e.frequency)*0.4 + 1/(staleness+1)*0.6) / float64(e.sizeBytes)
		if first || score < victimScore || (score == victimScore && e.insertSeq < victimSeq) {
			victim = key
			victimScore = score
			victimSeq = e.insertSeq
			first = false
		}
	}
	delete(c.entries, victim)
	c.evictions++
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache performance counters.
func (c *Cache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CacheStats{
		Entries:   int64(len(c.entries)),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
