// Package imagecache is the bounded in-memory byte cache of the viewing
// engine. Eviction protects a sliding window of entries around the index the
// user is currently looking at.
package imagecache

import (
	"sort"
	"sync"

	"zipview/pkg/metrics"
	"zipview/pkg/viewer"
)

type record struct {
	data    []byte
	ordinal int
}

// Cache maps entry identity to raw image bytes, bounded by capacity.
type Cache struct {
	mets     *metrics.Collector
	capacity int
	radius   int

	mu      sync.RWMutex
	records map[string]record
	active  int
}

// New creates a cache holding at most capacity entries, protecting the
// window of radius entries on each side of the active index from eviction.
func New(capacity, radius int, mets *metrics.Collector) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		mets:     mets,
		capacity: capacity,
		radius:   radius,
		records:  make(map[string]record),
	}
}

// Get returns the cached bytes for key, if present.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	rec, ok := c.records[key]
	c.mu.RUnlock()
	if ok {
		c.mets.CacheHits.Add(1)
		return rec.data, true
	}
	c.mets.CacheMisses.Add(1)
	return nil, false
}

// Contains reports presence without touching the hit/miss counters.
func (c *Cache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.records[key]
	return ok
}

// SetActive records the ordinal of the most recently requested entry, which
// anchors the protected window for subsequent evictions.
func (c *Cache) SetActive(index int) {
	c.mu.Lock()
	c.active = index
	c.mu.Unlock()
}

// Put inserts the bytes for entry, evicting entries outside the protected
// window first when the cache is full.
func (c *Cache) Put(entry viewer.ImageEntry, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := entry.Key()
	if _, ok := c.records[key]; !ok && len(c.records) >= c.capacity {
		c.evictLocked()
	}
	c.records[key] = record{data: data, ordinal: entry.Ordinal}
}

// evictLocked removes entries until the cache is below capacity. Entries
// outside [active-radius, active+radius] go first, furthest ordinal distance
// first (higher ordinal wins the tie). If the window itself overflows the
// capacity, the furthest non-active windowed entries are dropped too.
func (c *Cache) evictLocked() {
	type candidate struct {
		key      string
		ordinal  int
		distance int
	}

	var outside, inside []candidate
	for key, rec := range c.records {
		d := rec.ordinal - c.active
		if d < 0 {
			d = -d
		}
		cand := candidate{key: key, ordinal: rec.ordinal, distance: d}
		if d > c.radius {
			outside = append(outside, cand)
		} else if d > 0 {
			inside = append(inside, cand)
		}
	}

	byDistance := func(cands []candidate) {
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].distance != cands[j].distance {
				return cands[i].distance > cands[j].distance
			}
			return cands[i].ordinal > cands[j].ordinal
		})
	}
	byDistance(outside)
	byDistance(inside)

	for _, cand := range append(outside, inside...) {
		if len(c.records) < c.capacity {
			return
		}
		delete(c.records, cand.key)
		c.mets.Evictions.Add(1)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Clear wipes the whole cache (source switch, explicit reset).
func (c *Cache) Clear() {
	c.mu.Lock()
	c.records = make(map[string]record)
	c.mu.Unlock()
}
