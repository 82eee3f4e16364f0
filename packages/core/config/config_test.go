package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesDurationsAndOverrides(t *testing.T) {
	path := writeConfig(t, "ptf.yaml", `
environment: staging
browser: firefox
headless: false
baseUrl: https://staging.example.com
timeout: 45s
retries: 2
workers: 8
stallTimeout: 2m
tags: [smoke, checkout]
grep: "pay*"
resultsDir: out
reporters: [console, junit]
notify:
  on: recovery
  slackWebhook: https://hooks.slack.example/x
metrics:
  format: prometheus
  port: 9920
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "firefox", cfg.GetBrowser())
	assert.False(t, cfg.GetHeadless())
	assert.Equal(t, "https://staging.example.com", cfg.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.GetTimeout())
	assert.Equal(t, 2, cfg.Retries)
	assert.Equal(t, 8, cfg.GetWorkers())
	assert.Equal(t, 2*time.Minute, cfg.GetStallTimeout())
	assert.Equal(t, []string{"smoke", "checkout"}, cfg.Tags)
	assert.Equal(t, "pay*", cfg.Grep)
	assert.Equal(t, "out", cfg.GetResultsDir())
	assert.Equal(t, []string{"console", "junit"}, cfg.GetReporters())
	assert.Equal(t, "recovery", cfg.Notify.On)
	assert.Equal(t, "prometheus", cfg.Metrics.Format)
	assert.Equal(t, 9920, cfg.Metrics.Port)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	path := writeConfig(t, "ptf.yaml", "timeout: soonish\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestFindAndLoadChecksFilenamesInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ptf.yml"), []byte("environment: hidden\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ptf.yaml"), []byte("environment: visible\n"), 0o644))

	cfg, err := FindAndLoad(dir)
	require.NoError(t, err)
	assert.Equal(t, "visible", cfg.Environment)
}

func TestFindAndLoadFallsBackToDefaults(t *testing.T) {
	cfg, err := FindAndLoad(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultBrowser, cfg.GetBrowser())
	assert.Equal(t, DefaultWorkers, cfg.GetWorkers())
	assert.Equal(t, DefaultTimeout, cfg.GetTimeout())
	assert.True(t, cfg.GetHeadless())
	assert.True(t, cfg.GetSessionReuse())
}

func TestFindAndLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PTF_BROWSER=webkit\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PTF_BROWSER") })

	cfg, err := FindAndLoad(dir)
	require.NoError(t, err)
	assert.Equal(t, "webkit", cfg.GetBrowser())
}

func TestApplyEnvOverlaysFileValues(t *testing.T) {
	t.Setenv("PTF_ENV", "ci")
	t.Setenv("PTF_WORKERS", "12")
	t.Setenv("PTF_TIMEOUT", "90s")
	t.Setenv("PTF_HEADLESS", "false")
	t.Setenv("PTF_SESSION_REUSE", "false")

	path := writeConfig(t, "ptf.yaml", "environment: local\nworkers: 4\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ci", cfg.Environment)
	assert.Equal(t, 12, cfg.GetWorkers())
	assert.Equal(t, 90*time.Second, cfg.GetTimeout())
	assert.False(t, cfg.GetHeadless())
	assert.False(t, cfg.GetSessionReuse())
}

func TestApplyEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PTF_WORKERS", "many")
	t.Setenv("PTF_TIMEOUT", "soon")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, DefaultWorkers, cfg.GetWorkers())
	assert.Equal(t, DefaultTimeout, cfg.GetTimeout())
}

func TestEnvRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Environment = "staging"
	cfg.Browser = "firefox"
	cfg.BaseURL = "https://staging.example.com"
	cfg.Headless = Bool(false)
	cfg.Timeout = Duration(45 * time.Second)
	cfg.Retries = 2

	for _, pair := range cfg.Env() {
		key, value, ok := strings.Cut(pair, "=")
		require.True(t, ok)
		t.Setenv(key, value)
	}

	clone := Default()
	clone.ApplyEnv()
	assert.Equal(t, "staging", clone.Environment)
	assert.Equal(t, "firefox", clone.GetBrowser())
	assert.Equal(t, "https://staging.example.com", clone.BaseURL)
	assert.False(t, clone.GetHeadless())
	assert.Equal(t, 45*time.Second, clone.GetTimeout())
	assert.Equal(t, 2, clone.Retries)
}

func TestSaveProducesLoadableFile(t *testing.T) {
	cfg := Default()
	cfg.Environment = "local"
	cfg.Timeout = Duration(45 * time.Second)

	path := filepath.Join(t.TempDir(), "ptf.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "local", loaded.Environment)
	assert.Equal(t, 45*time.Second, loaded.GetTimeout())
}
