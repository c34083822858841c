package jobs

import (
	"os"
	"strconv"
	"time"
)

// JobConfig controls queue and worker behavior.
type JobConfig struct {
	Workers           int           // Concurrent workers. Default 1 (serialized execution).
	PollInterval      time.Duration // How often workers poll the queue. Default 250ms.
	HistoryLimit      int           // Completed jobs retained for status lookups. Default 60.
	MaxQueueDepth     int           // Pending jobs before Submit reports overload. Default 100.
	JobTimeout        time.Duration // Watchdog deadline per job. Default 30m.
	FastPathSingleRun bool          // Run trivially small single-run jobs synchronously. Default false.
	DefaultProjectID  int           // Project applied when a submission omits one. Default 0 (required).
	Enabled           bool          // Whether the worker runs. Default true.
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		Workers:       1,
		PollInterval:  250 * time.Millisecond,
		HistoryLimit:  60,
		MaxQueueDepth: 100,
		JobTimeout:    30 * time.Minute,
		Enabled:       true,
	}
}

// JobConfigFromEnv loads config from environment variables.
// REPORTER_JOB_WORKERS, REPORTER_JOB_POLL_INTERVAL_MS, REPORTER_JOB_HISTORY_LIMIT,
// REPORTER_JOB_MAX_QUEUE_DEPTH, REPORTER_JOB_TIMEOUT_MINUTES,
// REPORTER_JOB_FAST_PATH, REPORTER_DEFAULT_PROJECT, REPORTER_JOB_ENABLED
func JobConfigFromEnv() *JobConfig {
	cfg := DefaultJobConfig()

	if v := os.Getenv("REPORTER_JOB_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}

	if v := os.Getenv("REPORTER_JOB_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollInterval = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv("REPORTER_JOB_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryLimit = n
		}
	}

	if v := os.Getenv("REPORTER_JOB_MAX_QUEUE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxQueueDepth = n
		}
	}

	if v := os.Getenv("REPORTER_JOB_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.JobTimeout = time.Duration(n) * time.Minute
		}
	}

	if v := os.Getenv("REPORTER_JOB_FAST_PATH"); v != "" {
		cfg.FastPathSingleRun, _ = strconv.ParseBool(v)
	}

	if v := os.Getenv("REPORTER_DEFAULT_PROJECT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultProjectID = n
		}
	}

	if v := os.Getenv("REPORTER_JOB_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}
