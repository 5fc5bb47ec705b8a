package engine

import (
	"fmt"

	"zipview/pkg/loadstate"
	"zipview/pkg/logger"
	"zipview/pkg/storage"
)

// StartLoad requests a switch to source. Accepted only when the machine is
// idle; a second call before the first resolves returns ErrStateConflict and
// is dropped, never queued. The phases run on a background goroutine and
// report completion through the machine.
func (e *Engine) StartLoad(source string) error {
	if err := e.machine.Submit(loadstate.StartLoading{Source: source}); err != nil {
		logger.Debug("StartLoad rejected", "source", source, "phase", e.machine.Current().Phase.String())
		return err
	}

	gen := e.generation.Load()
	go e.runLoad(source, gen)
	return nil
}

// Reset supersedes any outstanding preparation and returns the machine to
// idle. In-flight phase work notices the bumped generation and abandons its
// result.
func (e *Engine) Reset() {
	e.generation.Add(1)
	e.machine.Submit(loadstate.Reset{})
}

// runLoad drives one accepted load through the machine.
func (e *Engine) runLoad(source string, gen uint64) {
	// StoppingUI has no asynchronous work at this layer; the UI collaborator
	// halted rendering when it called StartLoad.
	if !e.advance(gen, loadstate.UIStoppedComplete{}) {
		return
	}

	// CleaningResources: drop every byte belonging to the previous source
	// and close its handle before anything new is opened.
	e.ClearCache()
	e.CloseSource()
	if !e.advance(gen, loadstate.ResourcesClearedComplete{}) {
		return
	}

	state, err := e.prepare(source)
	if gen != e.generation.Load() {
		// Superseded by Reset while preparing; the handle may have been
		// reopened for the stale source.
		e.handle.Close()
		logger.Debug("Load superseded during preparation", "source", source)
		return
	}
	if err != nil {
		e.handle.Close()
		e.machine.Submit(loadstate.FilePreparationFailed{Err: err})
		logger.Warn("Load failed", "source", source, "err", err)
		return
	}

	e.machine.Submit(loadstate.FilePreparationComplete{Viewer: state})
	logger.Info("Source ready", "source", source, "entries", len(state.Entries), "start", state.StartIndex)
}

// advance submits a phase-completion action unless the load was superseded.
func (e *Engine) advance(gen uint64, action loadstate.Action) bool {
	if gen != e.generation.Load() {
		return false
	}
	return e.machine.Submit(action) == nil
}

// prepare performs the catalog, saved-position and neighbor lookups for the
// pending source.
func (e *Engine) prepare(source string) (*ViewerState, error) {
	entries := e.catalog.Entries(source)
	if len(entries) == 0 {
		return nil, fmt.Errorf("no supported images in %s", source)
	}

	start := 0
	if saved, ok := e.positions.Saved(source); ok {
		for _, entry := range entries {
			if entry.Ordinal == saved {
				start = saved
				break
			}
		}
	}

	prev, next := e.neighbors(source)

	e.mu.Lock()
	e.activeSource = source
	e.mu.Unlock()

	return &ViewerState{
		Source:     source,
		Entries:    entries,
		StartIndex: start,
		PrevSource: prev,
		NextSource: next,
	}, nil
}

// neighbors resolves the previous and next archive among the source's
// name-sorted directory siblings.
func (e *Engine) neighbors(source string) (prev, next string) {
	siblings, err := e.store.Siblings(source)
	if err != nil {
		logger.Debug("Neighbor lookup failed", "source", source, "err", err)
		return "", ""
	}

	norm := storage.Normalize(source)
	for i, sibling := range siblings {
		if storage.Normalize(sibling) != norm {
			continue
		}
		if i > 0 {
			prev = siblings[i-1]
		}
		if i < len(siblings)-1 {
			next = siblings[i+1]
		}
		return prev, next
	}
	return "", ""
}
