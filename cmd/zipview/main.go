package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"zipview/pkg/config"
	"zipview/pkg/engine"
	"zipview/pkg/env"
	"zipview/pkg/loadstate"
	"zipview/pkg/logger"
	"zipview/pkg/paths"
)

func main() {
	// Load environment variables for logger and bootstrap
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	logger.Init(env.LogLevel())
	defer logger.Close()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", "err", err)
	}
	logger.SetLevel(cfg.LogLevel)

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <archive.zip> [entry-index]\n", os.Args[0])
		os.Exit(2)
	}
	source := os.Args[1]

	eng, err := engine.New(cfg, afero.NewOsFs(), paths.GetDataDir())
	if err != nil {
		logger.Fatal("Failed to initialize engine", "err", err)
	}
	defer eng.Close()

	if err := eng.StartLoad(source); err != nil {
		logger.Fatal("Load rejected", "err", err)
	}

	state := waitForLoad(eng)
	if state.Phase == loadstate.PhaseError {
		logger.Fatal("Load failed", "err", state.Err)
	}

	vs := state.Viewer.(*engine.ViewerState)
	fmt.Printf("%s: %d images (resume at %d)\n", vs.Source, len(vs.Entries), vs.StartIndex)
	for i, entry := range vs.Entries {
		fmt.Printf("%4d  %-40s %8d bytes (ordinal %d)\n", i, entry.Name, entry.Size, entry.Ordinal)
	}
	if vs.PrevSource != "" {
		fmt.Printf("prev: %s\n", vs.PrevSource)
	}
	if vs.NextSource != "" {
		fmt.Printf("next: %s\n", vs.NextSource)
	}

	if len(os.Args) > 2 {
		idx, err := strconv.Atoi(os.Args[2])
		if err != nil || idx < 0 || idx >= len(vs.Entries) {
			logger.Fatal("Invalid entry index", "arg", os.Args[2])
		}
		entry := vs.Entries[idx]
		data, err := eng.RequestImageBytes(entry)
		if err != nil {
			logger.Fatal("Read failed", "entry", entry.Path, "err", err)
		}
		fmt.Printf("read %s: %d bytes\n", entry.Path, len(data))
		eng.NotifyPositionChanged(source, entry.Ordinal)
		eng.FlushPendingPositions()
	}

	stats, _ := json.MarshalIndent(eng.Metrics().Snapshot(), "", "  ")
	fmt.Printf("metrics: %s\n", stats)
}

// waitForLoad polls the machine until the load resolves.
func waitForLoad(eng *engine.Engine) loadstate.State {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		state := eng.State()
		switch state.Phase {
		case loadstate.PhaseReady, loadstate.PhaseError:
			return state
		}
		time.Sleep(10 * time.Millisecond)
	}
	return eng.State()
}
