// Package env consolidates all environment variable reading for the application.
// Config overrides are applied only at startup (see config.Load).
package env

import (
	"os"
	"strconv"
)

// Environment variable names (single source of truth)
const (
	LOGLevel           = "LOG_LEVEL"
	DataDir            = "ZIPVIEW_DATA_DIR"
	CacheCapacity      = "CACHE_CAPACITY"
	PreloadRadius      = "PRELOAD_RADIUS"
	PreloadCooldownMS  = "PRELOAD_COOLDOWN_MS"
	PreloadSpacingMS   = "PRELOAD_SPACING_MS"
	DebounceWindowMS   = "POSITION_DEBOUNCE_MS"
	CatalogCacheSize   = "CATALOG_CACHE_SIZE"
	MetricsIntervalSec = "METRICS_INTERVAL_SECONDS"
)

// Config JSON keys returned by OverrideKeys (for UI warnings)
const (
	KeyLogLevel        = "log_level"
	KeyCacheCapacity   = "cache_capacity"
	KeyPreloadRadius   = "preload_radius"
	KeyPreloadCooldown = "preload_cooldown_ms"
	KeyPreloadSpacing  = "preload_spacing_ms"
	KeyDebounceWindow  = "position_debounce_ms"
	KeyCatalogCache    = "catalog_cache_size"
	KeyMetricsInterval = "metrics_interval_seconds"
)

// LogLevel returns LOG_LEVEL with default "INFO" (for early logger init before config).
func LogLevel() string {
	if v := os.Getenv(LOGLevel); v != "" {
		return v
	}
	return "INFO"
}

// ConfigOverrides holds all config values that can be set via environment variables.
// Used at startup by config.Load to apply overrides.
type ConfigOverrides struct {
	LogLevel           string
	CacheCapacity      int
	PreloadRadius      int
	PreloadCooldownMS  int
	PreloadSpacingMS   int
	DebounceWindowMS   int
	CatalogCacheSize   int
	MetricsIntervalSec int
}

// ReadConfigOverrides reads all relevant environment variables once and returns
// overrides to apply to config plus the list of config JSON keys that were set
// (for "overwritten on restart" warnings).
func ReadConfigOverrides() (ConfigOverrides, []string) {
	var o ConfigOverrides
	var keys []string

	if v := os.Getenv(LOGLevel); v != "" {
		o.LogLevel = v
		keys = append(keys, KeyLogLevel)
	}
	if n, ok := readInt(CacheCapacity); ok {
		o.CacheCapacity = n
		keys = append(keys, KeyCacheCapacity)
	}
	if n, ok := readInt(PreloadRadius); ok {
		o.PreloadRadius = n
		keys = append(keys, KeyPreloadRadius)
	}
	if n, ok := readInt(PreloadCooldownMS); ok {
		o.PreloadCooldownMS = n
		keys = append(keys, KeyPreloadCooldown)
	}
	if n, ok := readInt(PreloadSpacingMS); ok {
		o.PreloadSpacingMS = n
		keys = append(keys, KeyPreloadSpacing)
	}
	if n, ok := readInt(DebounceWindowMS); ok {
		o.DebounceWindowMS = n
		keys = append(keys, KeyDebounceWindow)
	}
	if n, ok := readInt(CatalogCacheSize); ok {
		o.CatalogCacheSize = n
		keys = append(keys, KeyCatalogCache)
	}
	if n, ok := readInt(MetricsIntervalSec); ok {
		o.MetricsIntervalSec = n
		keys = append(keys, KeyMetricsInterval)
	}

	return o, keys
}

// OverrideKeys returns the config JSON keys that have environment overrides set.
func OverrideKeys() []string {
	_, keys := ReadConfigOverrides()
	return keys
}

func readInt(key string) (int, bool) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}
