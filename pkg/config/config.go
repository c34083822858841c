// Package config loads the reporter's YAML configuration file and converts
// it into the typed configs the individual packages consume. Credentials and
// connection strings can always be supplied through the environment so they
// stay out of checked-in config files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/cache"
	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/jobs"
	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/testrail"
)

// Config is the full server configuration as declared in the YAML file.
// Durations are declared in primitive units (seconds, ms) so the file stays
// readable; the typed accessors convert them.
type Config struct {
	Listen    string `yaml:"listen"`
	OutputDir string `yaml:"output_dir"`

	Database DatabaseSection `yaml:"database"`
	TestRail TestRailSection `yaml:"testrail"`
	Cache    CacheSection    `yaml:"cache"`
	Jobs     JobsSection     `yaml:"jobs"`
	History  HistorySection  `yaml:"history"`
}

// DatabaseSection selects where report history is persisted.
type DatabaseSection struct {
	Type string `yaml:"type"` // sqlite, postgres or mysql
	DSN  string `yaml:"dsn"`
}

// TestRailSection configures the upstream test-management connection.
type TestRailSection struct {
	BaseURL        string `yaml:"base_url"`
	Username       string `yaml:"username"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxAttempts    int    `yaml:"max_attempts"`
	BackoffBaseMs  int    `yaml:"backoff_base_ms"`
	CacheTTLSecs   int    `yaml:"cache_ttl_seconds"`
}

// CacheSection configures the response cache.
type CacheSection struct {
	Enabled    *bool `yaml:"enabled"`
	TTLSeconds int   `yaml:"ttl_seconds"`
	MaxSize    int   `yaml:"max_size"`
}

// JobsSection configures the queue and worker.
type JobsSection struct {
	Workers           int   `yaml:"workers"`
	PollIntervalMs    int   `yaml:"poll_interval_ms"`
	HistoryLimit      int   `yaml:"history_limit"`
	MaxQueueDepth     int   `yaml:"max_queue_depth"`
	TimeoutMinutes    int   `yaml:"timeout_minutes"`
	FastPathSingleRun bool  `yaml:"fast_path_single_run"`
	DefaultProjectID  int   `yaml:"default_project"`
	Enabled           *bool `yaml:"enabled"`
}

// HistorySection configures report-history retention.
type HistorySection struct {
	RetentionDays int `yaml:"retention_days"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:    ":8080",
		OutputDir: "reports",
		Database:  DatabaseSection{Type: "sqlite", DSN: "reporter.db"},
		History:   HistorySection{RetentionDays: 90},
	}
}

// Load reads the YAML file at path. A missing file yields the defaults, as
// the whole configuration can be supplied through flags and environment.
// Environment overrides are applied last, on top of the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays connection settings and credentials from the
// environment. Tuning knobs keep their own env handling in their packages.
func (c *Config) applyEnv() {
	if v := os.Getenv("REPORTER_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("REPORTER_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("DATABASE_TYPE"); v != "" {
		c.Database.Type = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("TESTRAIL_BASE_URL"); v != "" {
		c.TestRail.BaseURL = v
	}
	if v := os.Getenv("TESTRAIL_USERNAME"); v != "" {
		c.TestRail.Username = v
	}
	if v := os.Getenv("TESTRAIL_API_KEY"); v != "" {
		c.TestRail.APIKey = v
	}
}

// Validate checks the settings that have no workable default.
func (c *Config) Validate() error {
	if c.TestRail.BaseURL == "" {
		return fmt.Errorf("testrail base_url is required (config file or TESTRAIL_BASE_URL)")
	}
	if c.TestRail.Username == "" || c.TestRail.APIKey == "" {
		return fmt.Errorf("testrail credentials are required (config file or TESTRAIL_USERNAME / TESTRAIL_API_KEY)")
	}
	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unknown database type %q (expected sqlite, postgres or mysql)", c.Database.Type)
	}
	return nil
}

// ClientConfig converts the testrail section into the client's typed config.
func (c *Config) ClientConfig() *testrail.Config {
	cfg := testrail.DefaultConfig()
	cfg.BaseURL = c.TestRail.BaseURL
	cfg.Username = c.TestRail.Username
	cfg.APIKey = c.TestRail.APIKey
	if c.TestRail.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(c.TestRail.TimeoutSeconds) * time.Second
	}
	if c.TestRail.MaxAttempts > 0 {
		cfg.MaxAttempts = c.TestRail.MaxAttempts
	}
	if c.TestRail.BackoffBaseMs > 0 {
		cfg.BackoffBase = time.Duration(c.TestRail.BackoffBaseMs) * time.Millisecond
	}
	if c.TestRail.CacheTTLSecs > 0 {
		cfg.CacheTTL = time.Duration(c.TestRail.CacheTTLSecs) * time.Second
	}
	return cfg
}

// CacheConfig converts the cache section, starting from the environment so
// REPORTER_CACHE_* variables still work without a config file.
func (c *Config) CacheConfig() *cache.Config {
	cfg := cache.ConfigFromEnv()
	if c.Cache.Enabled != nil {
		cfg.Enabled = *c.Cache.Enabled
	}
	if c.Cache.TTLSeconds > 0 {
		cfg.DefaultTTL = time.Duration(c.Cache.TTLSeconds) * time.Second
	}
	if c.Cache.MaxSize > 0 {
		cfg.MaxSize = c.Cache.MaxSize
	}
	return cfg
}

// JobConfig converts the jobs section, starting from the environment so
// REPORTER_JOB_* variables still work without a config file.
func (c *Config) JobConfig() *jobs.JobConfig {
	cfg := jobs.JobConfigFromEnv()
	if c.Jobs.Workers > 0 {
		cfg.Workers = c.Jobs.Workers
	}
	if c.Jobs.PollIntervalMs > 0 {
		cfg.PollInterval = time.Duration(c.Jobs.PollIntervalMs) * time.Millisecond
	}
	if c.Jobs.HistoryLimit > 0 {
		cfg.HistoryLimit = c.Jobs.HistoryLimit
	}
	if c.Jobs.MaxQueueDepth > 0 {
		cfg.MaxQueueDepth = c.Jobs.MaxQueueDepth
	}
	if c.Jobs.TimeoutMinutes > 0 {
		cfg.JobTimeout = time.Duration(c.Jobs.TimeoutMinutes) * time.Minute
	}
	if c.Jobs.FastPathSingleRun {
		cfg.FastPathSingleRun = true
	}
	if c.Jobs.DefaultProjectID > 0 {
		cfg.DefaultProjectID = c.Jobs.DefaultProjectID
	}
	if c.Jobs.Enabled != nil {
		cfg.Enabled = *c.Jobs.Enabled
	}
	return cfg
}

// RetentionAge returns how long report-history records are kept.
func (c *Config) RetentionAge() time.Duration {
	days := c.History.RetentionDays
	if days <= 0 {
		days = 90
	}
	return time.Duration(days) * 24 * time.Hour
}
