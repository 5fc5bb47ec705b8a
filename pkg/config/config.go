package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"zipview/pkg/env"
	"zipview/pkg/logger"
	"zipview/pkg/paths"
)

// Config holds the viewing engine settings.
type Config struct {
	LogLevel string `json:"log_level"`

	// Byte cache
	CacheCapacity int `json:"cache_capacity"`

	// Preload pipeline
	PreloadRadius     int `json:"preload_radius"`
	PreloadCooldownMS int `json:"preload_cooldown_ms"`
	PreloadSpacingMS  int `json:"preload_spacing_ms"`

	// Position persistence
	DebounceWindowMS int `json:"position_debounce_ms"`

	// Catalog cache (number of sources whose entry lists stay cached)
	CatalogCacheSize int `json:"catalog_cache_size"`

	// Metrics reporter interval; 0 disables the reporter loop
	MetricsIntervalSec int `json:"metrics_interval_seconds"`
}

// Default returns a config with the built-in defaults.
func Default() *Config {
	return &Config{
		LogLevel:           "INFO",
		CacheCapacity:      50,
		PreloadRadius:      5,
		PreloadCooldownMS:  150,
		PreloadSpacingMS:   20,
		DebounceWindowMS:   500,
		CatalogCacheSize:   8,
		MetricsIntervalSec: 0,
	}
}

// PreloadCooldown returns the cooldown before neighbor warm-up starts.
func (c *Config) PreloadCooldown() time.Duration {
	return time.Duration(c.PreloadCooldownMS) * time.Millisecond
}

// PreloadSpacing returns the delay between consecutive preload enqueues.
func (c *Config) PreloadSpacing() time.Duration {
	return time.Duration(c.PreloadSpacingMS) * time.Millisecond
}

// DebounceWindow returns the idle time before a batched position write commits.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceWindowMS) * time.Millisecond
}

// MetricsInterval returns the metrics reporter period.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalSec) * time.Second
}

func configPath() string {
	return filepath.Join(paths.GetDataDir(), "config.json")
}

// Load reads config.json from the data directory, fills in defaults, and
// applies environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrides, keys := env.ReadConfigOverrides()
	applyOverrides(cfg, overrides)
	if len(keys) > 0 {
		logger.Info("Applied environment overrides", "keys", keys)
	}

	cfg.sanitize()
	return cfg, nil
}

// Save writes the config back to config.json. Values with environment
// overrides set still lose to the environment on the next start, so the
// masked keys are flagged.
func (c *Config) Save() error {
	if keys := env.OverrideKeys(); len(keys) > 0 {
		logger.Warn("Saved config values masked by environment overrides", "keys", keys)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(paths.GetDataDir(), 0755); err != nil {
		return err
	}
	return os.WriteFile(configPath(), data, 0644)
}

func applyOverrides(cfg *Config, o env.ConfigOverrides) {
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.CacheCapacity > 0 {
		cfg.CacheCapacity = o.CacheCapacity
	}
	if o.PreloadRadius > 0 {
		cfg.PreloadRadius = o.PreloadRadius
	}
	if o.PreloadCooldownMS > 0 {
		cfg.PreloadCooldownMS = o.PreloadCooldownMS
	}
	if o.PreloadSpacingMS > 0 {
		cfg.PreloadSpacingMS = o.PreloadSpacingMS
	}
	if o.DebounceWindowMS > 0 {
		cfg.DebounceWindowMS = o.DebounceWindowMS
	}
	if o.CatalogCacheSize > 0 {
		cfg.CatalogCacheSize = o.CatalogCacheSize
	}
	if o.MetricsIntervalSec > 0 {
		cfg.MetricsIntervalSec = o.MetricsIntervalSec
	}
}

// sanitize clamps values that would break the engine.
func (c *Config) sanitize() {
	if c.CacheCapacity < 1 {
		c.CacheCapacity = 1
	}
	if c.PreloadRadius < 0 {
		c.PreloadRadius = 0
	}
	if c.CatalogCacheSize < 1 {
		c.CatalogCacheSize = 1
	}
	if c.DebounceWindowMS < 1 {
		c.DebounceWindowMS = 1
	}
}
