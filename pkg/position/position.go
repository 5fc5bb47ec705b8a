// Package position persists the last viewed index per source. Updates are
// debounced and batched; only the most recent position inside a debounce
// window reaches disk. An immediate path exists for teardown, where losing
// the final position would be user-visible.
package position

import (
	"sync"
	"time"

	"zipview/pkg/logger"
	"zipview/pkg/metrics"
	"zipview/pkg/persistence"
	"zipview/pkg/storage"
	"zipview/pkg/viewer"
)

const (
	keyPrefix = "position:"
	legacyKey = "last_position"
)

// Record is the durable per-source position. A record whose signature no
// longer matches the live source is treated as absent, never as stale data.
type Record struct {
	Index     int              `json:"index"`
	Signature viewer.Signature `json:"signature"`
}

// legacyRecord is the old single-slot format, consulted only when the
// per-source record is missing.
type legacyRecord struct {
	Source    string           `json:"source"`
	Index     int              `json:"index"`
	Signature viewer.Signature `json:"signature"`
}

type pendingWrite struct {
	source string
	index  int
	timer  *time.Timer
}

// Store is the debounced position writer.
type Store struct {
	state  *persistence.StateManager
	store  *storage.Storage
	mets   *metrics.Collector
	window time.Duration

	mu      sync.Mutex
	pending map[string]*pendingWrite
	flushWG sync.WaitGroup
}

// NewStore creates a position store flushing batched updates after window of
// idle time.
func NewStore(state *persistence.StateManager, store *storage.Storage, mets *metrics.Collector, window time.Duration) *Store {
	return &Store{
		state:   state,
		store:   store,
		mets:    mets,
		window:  window,
		pending: make(map[string]*pendingWrite),
	}
}

// NotifyChanged records index as the latest pending position for source and
// restarts its debounce timer. Fire-and-forget; the write happens once the
// window elapses without a newer update.
func (s *Store) NotifyChanged(source string, index int) {
	key := storage.Normalize(source)

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[key]; ok {
		p.index = index
		p.timer.Reset(s.window)
		return
	}

	p := &pendingWrite{source: source, index: index}
	p.timer = time.AfterFunc(s.window, func() { s.flushTimed(key) })
	s.pending[key] = p
}

// flushTimed is the debounce-timer callback.
func (s *Store) flushTimed(key string) {
	s.mu.Lock()
	p, ok := s.pending[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.flushWG.Add(1)
	s.mu.Unlock()

	defer s.flushWG.Done()
	s.write(p.source, p.index)
}

// SaveImmediate bypasses batching and writes synchronously. Any pending
// batched write for the source is superseded.
func (s *Store) SaveImmediate(source string, index int) {
	key := storage.Normalize(source)

	s.mu.Lock()
	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()

	s.write(source, index)
}

// Flush waits for in-flight timer-triggered flushes, then writes anything
// still pending.
func (s *Store) Flush() {
	s.mu.Lock()
	remaining := make([]*pendingWrite, 0, len(s.pending))
	for key, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, key)
		remaining = append(remaining, p)
	}
	s.mu.Unlock()

	s.flushWG.Wait()
	for _, p := range remaining {
		s.write(p.source, p.index)
	}
}

// write persists one durable record stamped with the source's current
// signature. A source that vanished underneath us drops the write.
func (s *Store) write(source string, index int) {
	sig, err := s.store.Signature(source)
	if err != nil {
		logger.Warn("Dropping position write, source unavailable", "source", source, "err", err)
		return
	}

	key := keyPrefix + storage.Normalize(source)
	if err := s.state.Set(key, Record{Index: index, Signature: sig}); err != nil {
		logger.Error("Position write failed", "source", source, "err", err)
		return
	}
	s.mets.PositionWrites.Add(1)
	logger.Debug("Saved position", "source", source, "index", index)
}

// Saved returns the persisted index for source. The record is only valid
// while the stored signature matches the live one; a mismatch reads as
// absent. The legacy single-slot record is consulted when the per-source
// record does not exist.
func (s *Store) Saved(source string) (int, bool) {
	sig, err := s.store.Signature(source)
	if err != nil {
		return 0, false
	}

	key := keyPrefix + storage.Normalize(source)
	var rec Record
	found, err := s.state.Get(key, &rec)
	if err != nil {
		logger.Warn("Position read failed", "source", source, "err", err)
		return 0, false
	}
	if found {
		if rec.Signature.Equal(sig) {
			return rec.Index, true
		}
		return 0, false
	}

	var legacy legacyRecord
	found, err = s.state.Get(legacyKey, &legacy)
	if err != nil || !found {
		return 0, false
	}
	if legacy.Source == storage.Normalize(source) && legacy.Signature.Equal(sig) {
		return legacy.Index, true
	}
	return 0, false
}

// Forget removes the persisted record for source (called when the source is
// deleted).
func (s *Store) Forget(source string) {
	key := storage.Normalize(source)

	s.mu.Lock()
	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if err := s.state.Delete(keyPrefix + key); err != nil {
		logger.Warn("Forgetting position failed", "source", source, "err", err)
	}
}
