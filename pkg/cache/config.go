package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the caching layer.
type Config struct {
	// Enabled controls whether caching is active. When false, FromConfig
	// returns a nil cache and all upstream calls pass through uncached.
	Enabled bool

	// DefaultTTL is applied to entries stored without an explicit TTL.
	DefaultTTL time.Duration

	// MaxSize is the maximum number of entries held at once.
	MaxSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:    true,
		DefaultTTL: 120 * time.Second,
		MaxSize:    2000,
	}
}

// ConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - REPORTER_CACHE_ENABLED: "true" or "false" (default: "true")
//   - REPORTER_CACHE_TTL_SECONDS: default TTL in seconds (default: 120)
//   - REPORTER_CACHE_MAX_SIZE: max entries (default: 2000)
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("REPORTER_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("REPORTER_CACHE_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.DefaultTTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("REPORTER_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	return cfg
}
