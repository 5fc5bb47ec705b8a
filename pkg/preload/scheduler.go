// Package preload warms the byte cache with entries near the one the user is
// viewing. A single consumer goroutine drains a request queue in the
// background so foreground reads never wait on it.
package preload

import (
	"sync"
	"sync/atomic"
	"time"

	"zipview/pkg/imagecache"
	"zipview/pkg/logger"
	"zipview/pkg/metrics"
	"zipview/pkg/viewer"
)

// LoadFunc loads one entry and inserts it into the byte cache. The engine
// supplies it so foreground and background loads share one deduplicated path.
type LoadFunc func(entry viewer.ImageEntry) error

// Request asks the scheduler to warm one entry.
type Request struct {
	Entry    viewer.ImageEntry
	Priority int // radius - |ordinal distance from active index|

	epoch uint64
}

// Scheduler consumes preload requests in the background.
type Scheduler struct {
	loadFn   LoadFunc
	cache    *imagecache.Cache
	mets     *metrics.Collector
	radius   int
	cooldown time.Duration
	spacing  time.Duration

	queue chan Request
	epoch atomic.Uint64
	stop  chan struct{}
	done  chan struct{}

	mu       sync.Mutex
	inflight map[string]struct{}
	started  bool
}

// NewScheduler creates a stopped scheduler; call Start to begin consuming.
func NewScheduler(loadFn LoadFunc, cache *imagecache.Cache, mets *metrics.Collector, radius int, cooldown, spacing time.Duration) *Scheduler {
	return &Scheduler{
		loadFn:   loadFn,
		cache:    cache,
		mets:     mets,
		radius:   radius,
		cooldown: cooldown,
		spacing:  spacing,
		queue:    make(chan Request, 4*(radius+1)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		inflight: make(map[string]struct{}),
	}
}

// Start launches the consumer loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	go s.consume()
}

// Stop terminates the consumer. Queued requests are dropped.
func (s *Scheduler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// Invalidate discards all queued and not-yet-applied work, used on source
// switch. Requests enqueued before the call never reach the cache after it.
func (s *Scheduler) Invalidate() {
	s.epoch.Add(1)
}

// InFlight reports whether key is queued or currently loading.
func (s *Scheduler) InFlight(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[key]
	return ok
}

// Warm schedules the not-yet-cached entries whose ordinal lies within the
// preload radius of activeOrdinal (excluding activeOrdinal itself). It
// returns immediately; enqueuing happens after a short cooldown with a small
// delay between requests to bound CPU bursts.
func (s *Scheduler) Warm(entries []viewer.ImageEntry, activeOrdinal int) {
	if s.radius <= 0 || len(entries) == 0 {
		return
	}

	byOrdinal := make(map[int]viewer.ImageEntry, len(entries))
	for _, e := range entries {
		byOrdinal[e.Ordinal] = e
	}

	epoch := s.epoch.Load()
	go func() {
		if !s.sleep(s.cooldown, epoch) {
			return
		}
		for d := 1; d <= s.radius; d++ {
			for _, ordinal := range [2]int{activeOrdinal + d, activeOrdinal - d} {
				entry, ok := byOrdinal[ordinal]
				if !ok {
					continue
				}
				if s.enqueue(Request{Entry: entry, Priority: s.radius - d, epoch: epoch}) {
					if !s.sleep(s.spacing, epoch) {
						return
					}
				}
			}
		}
	}()
}

// sleep waits d unless the scheduler stops or the epoch rolls.
func (s *Scheduler) sleep(d time.Duration, epoch uint64) bool {
	if d <= 0 {
		return s.epoch.Load() == epoch
	}
	select {
	case <-time.After(d):
		return s.epoch.Load() == epoch
	case <-s.stop:
		return false
	}
}

// enqueue adds the request unless its entry is cached, already queued, or the
// queue is full. Returns whether the request was accepted.
func (s *Scheduler) enqueue(req Request) bool {
	key := req.Entry.Key()
	if s.cache.Contains(key) {
		s.mets.PreloadSkips.Add(1)
		return false
	}

	s.mu.Lock()
	if _, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		s.mets.PreloadSkips.Add(1)
		return false
	}
	s.inflight[key] = struct{}{}
	s.mu.Unlock()

	select {
	case s.queue <- req:
		return true
	default:
		s.clearInFlight(key)
		s.mets.PreloadSkips.Add(1)
		return false
	}
}

func (s *Scheduler) clearInFlight(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

func (s *Scheduler) consume() {
	defer close(s.done)
	for {
		select {
		case req := <-s.queue:
			s.process(req)
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) process(req Request) {
	key := req.Entry.Key()
	defer s.clearInFlight(key)

	if req.epoch != s.epoch.Load() {
		s.mets.PreloadSkips.Add(1)
		return
	}
	if s.cache.Contains(key) {
		s.mets.PreloadSkips.Add(1)
		return
	}

	start := time.Now()
	if err := s.loadFn(req.Entry); err != nil {
		// Preload failures never reach the foreground.
		s.mets.PreloadFailures.Add(1)
		logger.Debug("Preload failed", "entry", req.Entry.Path, "err", err)
		return
	}
	s.mets.RecordPreloadLatency(time.Since(start))
}
