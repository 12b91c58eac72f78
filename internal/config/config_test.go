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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, time.Hour, cfg.NotificationInterval)
	assert.Equal(t, time.Second, cfg.TUI.RefreshInterval)
	assert.Equal(t, "https://api.github.com/", cfg.GitHub.APIURL)
	assert.Equal(t, 0, cfg.GitHub.MaxWorkers, "zero means derive from CPU count")
	assert.Equal(t, uint(3), cfg.GitHub.RetryAttempts)
	assert.Equal(t, time.Second, cfg.GitHub.RetryDelay)
	assert.Equal(t, time.Hour, cfg.GitHub.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "pr-monitor.log", filepath.Base(cfg.LogFile))
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
refresh_interval: 10m
notification_interval: 30m
log_file: /tmp/prm.log
github:
  api_url: https://ghe.example.com/api/v3/
  max_workers: 8
  retry_attempts: 5
  retry_delay: 250ms
  cache_ttl: 0s
  timeout: 10s
log:
  level: debug
tui:
  refresh_interval: 500ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 30*time.Minute, cfg.NotificationInterval)
	assert.Equal(t, "/tmp/prm.log", cfg.LogFile)
	assert.Equal(t, "https://ghe.example.com/api/v3/", cfg.GitHub.APIURL)
	assert.Equal(t, 8, cfg.GitHub.MaxWorkers)
	assert.Equal(t, uint(5), cfg.GitHub.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.GitHub.RetryDelay)
	assert.Equal(t, time.Duration(0), cfg.GitHub.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 500*time.Millisecond, cfg.TUI.RefreshInterval)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad duration", body: "refresh_interval: soon"},
		{name: "refresh below a minute", body: "refresh_interval: 30s"},
		{name: "negative workers", body: "github:\n  max_workers: -1"},
		{name: "bad api url", body: "github:\n  api_url: not-a-url"},
		{name: "bad log level", body: "log:\n  level: loud"},
		{name: "negative tui interval", body: "tui:\n  refresh_interval: -1s"},
		{name: "malformed yaml", body: "github: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
