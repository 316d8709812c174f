package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 100, cfg.Geocoder.MinBatchedSearch)
	assert.Equal(t, 100, cfg.Geocoder.MaxStalledRetries)
	assert.Equal(t, 5, cfg.Geocoder.PollIntervalSecs)
	assert.Equal(t, 10, cfg.Geocoder.ConnectTimeoutSec)
	assert.Equal(t, 60, cfg.Geocoder.ReadTimeoutSecs)
	assert.Equal(t, 1, cfg.Geocoder.SerialConcurrency)
	assert.Equal(t, "https://batch.geocoder.ls.hereapi.com/6.2/jobs", cfg.Geocoder.BatchBaseURL)
	assert.Equal(t, "kilometers", cfg.Routing.Units)
	assert.Equal(t, "public.geocode_cache", cfg.Cache.Table)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
geocoder:
  api_key: test-key
  min_batched_search: 50
  poll_interval_secs: 1
routing:
  base_url: http://localhost:8002/route
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Geocoder.APIKey)
	assert.Equal(t, 50, cfg.Geocoder.MinBatchedSearch)
	assert.Equal(t, 1, cfg.Geocoder.PollIntervalSecs)
	assert.Equal(t, "http://localhost:8002/route", cfg.Routing.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Values not in the file keep their defaults.
	assert.Equal(t, 100, cfg.Geocoder.MaxStalledRetries)
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("GEOSVC_GEOCODER_APP_ID", "env-app-id")
	t.Setenv("GEOSVC_GEOCODER_APP_CODE", "env-app-code")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-app-id", cfg.Geocoder.AppID)
	assert.Equal(t, "env-app-code", cfg.Geocoder.AppCode)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "noisy", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
