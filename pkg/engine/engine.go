// Package engine wires the catalog, archive handle, byte cache, preload
// scheduler, position store and load state machine into the viewing engine
// consumed by the UI layer. The engine owns the single archive handle; it is
// constructed per viewing session and torn down explicitly.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"zipview/pkg/archive"
	"zipview/pkg/catalog"
	"zipview/pkg/config"
	"zipview/pkg/imagecache"
	"zipview/pkg/loadstate"
	"zipview/pkg/logger"
	"zipview/pkg/metrics"
	"zipview/pkg/persistence"
	"zipview/pkg/position"
	"zipview/pkg/preload"
	"zipview/pkg/storage"
	"zipview/pkg/viewer"
)

// Errors re-exported for callers of the engine surface.
var (
	ErrEntryNotFound     = archive.ErrEntryNotFound
	ErrArchiveUnreadable = archive.ErrArchiveUnreadable
	ErrStateConflict     = loadstate.ErrStateConflict
)

// ViewerState is the payload of a successful load, handed to the UI.
type ViewerState struct {
	Source     string
	Entries    []viewer.ImageEntry
	StartIndex int    // ordinal to resume at
	PrevSource string // neighboring archive in the same directory, "" if none
	NextSource string
}

// Engine is the ZIP image cache/preload engine.
type Engine struct {
	cfg       *config.Config
	store     *storage.Storage
	catalog   *catalog.Catalog
	handle    *archive.Handle
	cache     *imagecache.Cache
	preloader *preload.Scheduler
	positions *position.Store
	machine   *loadstate.Machine
	mets      *metrics.Collector

	// group collapses concurrent loads of the same entry so a foreground
	// request and a preload never decompress the same entry twice.
	group singleflight.Group

	// generation invalidates outstanding load preparations on Reset.
	generation atomic.Uint64

	mu           sync.Mutex
	activeSource string

	// loadEpoch is bumped by ClearCache and CloseSource so a read that was
	// already in flight when a switch cleaned up cannot land afterwards.
	loadEpoch uint64
}

// New builds an engine on fs with durable state under dataDir.
func New(cfg *config.Config, fs afero.Fs, dataDir string) (*Engine, error) {
	mets := metrics.NewCollector()
	store := storage.New(fs)

	state, err := persistence.NewManager(fs, dataDir)
	if err != nil {
		return nil, fmt.Errorf("init persistence: %w", err)
	}

	cat, err := catalog.New(store, mets, cfg.CatalogCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		store:     store,
		catalog:   cat,
		handle:    archive.NewHandle(store, mets),
		cache:     imagecache.New(cfg.CacheCapacity, cfg.PreloadRadius, mets),
		positions: position.NewStore(state, store, mets, cfg.DebounceWindow()),
		machine:   loadstate.NewMachine(),
		mets:      mets,
	}
	e.preloader = preload.NewScheduler(e.loadEntry, e.cache, mets, cfg.PreloadRadius, cfg.PreloadCooldown(), cfg.PreloadSpacing())
	e.preloader.Start()
	mets.StartReporter(cfg.MetricsInterval())
	return e, nil
}

// Metrics exposes the engine's counters.
func (e *Engine) Metrics() *metrics.Collector {
	return e.mets
}

// RequestEntries returns the image entries of source, sorted by display
// name. Possibly empty; never an error.
func (e *Engine) RequestEntries(source string) []viewer.ImageEntry {
	return e.catalog.Entries(source)
}

// RequestImageBytes returns the raw bytes of entry, from cache when warm.
// A completed foreground load schedules warm-up of the neighboring entries.
func (e *Engine) RequestImageBytes(entry viewer.ImageEntry) ([]byte, error) {
	e.cache.SetActive(entry.Ordinal)

	if data, ok := e.cache.Get(entry.Key()); ok {
		return data, nil
	}

	if err := e.loadEntry(entry); err != nil {
		return nil, err
	}
	data, ok := e.cache.Get(entry.Key())
	if !ok {
		// Load succeeded but the result was discarded by a source switch.
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entry.Path)
	}

	e.preloader.Warm(e.catalog.Entries(entry.Source), entry.Ordinal)
	return data, nil
}

// loadEntry reads one entry through the shared handle and inserts it into
// the byte cache. Concurrent loads of the same entry collapse into one read;
// a cache hit short-circuits without touching the archive. Results belonging
// to a superseded source are discarded and the handle is re-closed, since the
// read may have reopened a source the switch already released.
func (e *Engine) loadEntry(entry viewer.ImageEntry) error {
	key := entry.Key()
	_, err, _ := e.group.Do(key, func() (any, error) {
		if e.cache.Contains(key) {
			return nil, nil
		}

		e.mu.Lock()
		epoch := e.loadEpoch
		e.mu.Unlock()

		data, err := e.handle.ReadEntry(entry.Source, entry.Path)
		if err != nil {
			return nil, err
		}

		pending := e.machine.Current().Pending
		e.mu.Lock()
		stale := epoch != e.loadEpoch ||
			(e.activeSource != "" && e.activeSource != entry.Source) ||
			(pending != "" && pending != entry.Source)
		if !stale {
			e.cache.Put(entry, data)
		}
		e.mu.Unlock()

		if stale {
			e.handle.Close()
			logger.Debug("Discarding load for switched-away source", "source", entry.Source, "entry", entry.Path)
		}
		return nil, nil
	})
	return err
}

// RequestSavedPosition returns the persisted position for source, valid only
// while the stored signature matches the live one.
func (e *Engine) RequestSavedPosition(source string) (int, bool) {
	return e.positions.Saved(source)
}

// NotifyPositionChanged records a position update, debounced.
func (e *Engine) NotifyPositionChanged(source string, index int) {
	e.positions.NotifyChanged(source, index)
}

// SavePositionNow writes the position synchronously (teardown, source switch).
func (e *Engine) SavePositionNow(source string, index int) {
	e.positions.SaveImmediate(source, index)
}

// FlushPendingPositions awaits durability of pending batched writes.
func (e *Engine) FlushPendingPositions() {
	e.positions.Flush()
}

// ForgetPosition drops the persisted record for a deleted source.
func (e *Engine) ForgetPosition(source string) {
	e.positions.Forget(source)
}

// CloseSource releases the archive handle. Idempotent.
func (e *Engine) CloseSource() {
	e.mu.Lock()
	e.loadEpoch++
	e.activeSource = ""
	e.mu.Unlock()
	e.handle.Close()
}

// ClearCache wipes the byte cache and the catalog cache and invalidates
// queued preloads. In-flight entry reads are invalidated so their results
// cannot land in the freshly cleared cache.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	e.loadEpoch++
	e.mu.Unlock()
	e.preloader.Invalidate()
	e.cache.Clear()
	e.catalog.Reset()
}

// Submit applies an action to the load state machine.
func (e *Engine) Submit(action loadstate.Action) error {
	return e.machine.Submit(action)
}

// State returns the observable machine state (phase labels for the UI).
func (e *Engine) State() loadstate.State {
	return e.machine.Current()
}

// Close tears the engine down: flushes positions, stops the background
// loops and releases the handle.
func (e *Engine) Close() {
	e.positions.Flush()
	e.preloader.Stop()
	e.mets.StopReporter()
	e.CloseSource()
}
