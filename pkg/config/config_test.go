package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reporter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 90*24*time.Hour, cfg.RetentionAge())
}

func TestLoadParsesAllSections(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
output_dir: /var/reports
database:
  type: postgres
  dsn: host=db user=reporter
testrail:
  base_url: https://testrail.example.com
  username: reporter
  api_key: secret
  timeout_seconds: 10
  max_attempts: 5
  backoff_base_ms: 250
cache:
  enabled: false
  ttl_seconds: 60
jobs:
  workers: 2
  history_limit: 10
  timeout_minutes: 5
  default_project: 7
history:
  retention_days: 14
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "/var/reports", cfg.OutputDir)
	assert.Equal(t, "postgres", cfg.Database.Type)

	client := cfg.ClientConfig()
	assert.Equal(t, "https://testrail.example.com", client.BaseURL)
	assert.Equal(t, 10*time.Second, client.Timeout)
	assert.Equal(t, 5, client.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, client.BackoffBase)

	cacheCfg := cfg.CacheConfig()
	assert.False(t, cacheCfg.Enabled)
	assert.Equal(t, time.Minute, cacheCfg.DefaultTTL)

	jobCfg := cfg.JobConfig()
	assert.Equal(t, 2, jobCfg.Workers)
	assert.Equal(t, 10, jobCfg.HistoryLimit)
	assert.Equal(t, 5*time.Minute, jobCfg.JobTimeout)
	assert.Equal(t, 7, jobCfg.DefaultProjectID)

	assert.Equal(t, 14*24*time.Hour, cfg.RetentionAge())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
testrail:
  base_url: https://file.example.com
  username: file-user
  api_key: file-key
`)
	t.Setenv("TESTRAIL_BASE_URL", "https://env.example.com")
	t.Setenv("TESTRAIL_API_KEY", "env-key")
	t.Setenv("DATABASE_DSN", "env.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.TestRail.BaseURL)
	assert.Equal(t, "file-user", cfg.TestRail.Username, "unset env vars leave file values alone")
	assert.Equal(t, "env-key", cfg.TestRail.APIKey)
	assert.Equal(t, "env.db", cfg.Database.DSN)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "listen: [broken")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "upstream connection must be configured")

	cfg.TestRail = TestRailSection{BaseURL: "https://x", Username: "u", APIKey: "k"}
	require.NoError(t, cfg.Validate())

	cfg.Database.Type = "oracle"
	require.Error(t, cfg.Validate())
}

func TestJobConfigPartialSectionKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
jobs:
  workers: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	jobCfg := cfg.JobConfig()
	assert.Equal(t, 3, jobCfg.Workers)
	assert.Equal(t, 100, jobCfg.MaxQueueDepth)
	assert.Equal(t, 30*time.Minute, jobCfg.JobTimeout)
	assert.True(t, jobCfg.Enabled)
}
