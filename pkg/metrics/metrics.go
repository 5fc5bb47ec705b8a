// Package metrics collects counters for the viewing engine. Everything is
// atomic so the hot paths never take a lock.
package metrics

import (
	"sync/atomic"
	"time"

	"zipview/pkg/logger"
)

// Collector aggregates engine counters.
type Collector struct {
	CatalogScans        atomic.Int64
	CatalogScanFailures atomic.Int64
	CatalogCacheHits    atomic.Int64

	CacheHits   atomic.Int64
	CacheMisses atomic.Int64
	Evictions   atomic.Int64

	FastReads       atomic.Int64
	SequentialReads atomic.Int64

	PreloadLoads    atomic.Int64
	PreloadSkips    atomic.Int64
	PreloadFailures atomic.Int64
	preloadNanos    atomic.Int64

	PositionWrites atomic.Int64

	stop chan struct{}
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{stop: make(chan struct{})}
}

// RecordPreloadLatency accumulates the duration of one completed preload.
func (c *Collector) RecordPreloadLatency(d time.Duration) {
	c.PreloadLoads.Add(1)
	c.preloadNanos.Add(int64(d))
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	CatalogScans        int64   `json:"catalog_scans"`
	CatalogScanFailures int64   `json:"catalog_scan_failures"`
	CatalogCacheHits    int64   `json:"catalog_cache_hits"`
	CacheHits           int64   `json:"cache_hits"`
	CacheMisses         int64   `json:"cache_misses"`
	Evictions           int64   `json:"evictions"`
	FastReads           int64   `json:"fast_reads"`
	SequentialReads     int64   `json:"sequential_reads"`
	PreloadLoads        int64   `json:"preload_loads"`
	PreloadSkips        int64   `json:"preload_skips"`
	PreloadFailures     int64   `json:"preload_failures"`
	AvgPreloadMillis    float64 `json:"avg_preload_ms"`
	PositionWrites      int64   `json:"position_writes"`
}

// Snapshot returns the current counter values.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		CatalogScans:        c.CatalogScans.Load(),
		CatalogScanFailures: c.CatalogScanFailures.Load(),
		CatalogCacheHits:    c.CatalogCacheHits.Load(),
		CacheHits:           c.CacheHits.Load(),
		CacheMisses:         c.CacheMisses.Load(),
		Evictions:           c.Evictions.Load(),
		FastReads:           c.FastReads.Load(),
		SequentialReads:     c.SequentialReads.Load(),
		PreloadLoads:        c.PreloadLoads.Load(),
		PreloadSkips:        c.PreloadSkips.Load(),
		PreloadFailures:     c.PreloadFailures.Load(),
		PositionWrites:      c.PositionWrites.Load(),
	}
	if s.PreloadLoads > 0 {
		s.AvgPreloadMillis = float64(c.preloadNanos.Load()) / float64(s.PreloadLoads) / float64(time.Millisecond)
	}
	return s
}

// StartReporter logs a snapshot at every interval until StopReporter is
// called. A zero interval disables the loop.
func (c *Collector) StartReporter(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s := c.Snapshot()
				logger.Debug("Engine metrics",
					"scans", s.CatalogScans,
					"cache_hits", s.CacheHits,
					"cache_misses", s.CacheMisses,
					"evictions", s.Evictions,
					"fast_reads", s.FastReads,
					"sequential_reads", s.SequentialReads,
					"preloads", s.PreloadLoads,
					"preload_skips", s.PreloadSkips,
					"avg_preload_ms", s.AvgPreloadMillis,
					"position_writes", s.PositionWrites,
				)
			case <-c.stop:
				return
			}
		}
	}()
}

// StopReporter stops the reporter loop.
func (c *Collector) StopReporter() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}
