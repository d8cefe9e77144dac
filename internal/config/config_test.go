package config

import (
	"os"
	"path/filepath"
	"testing"

	"netscope/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 100, cfg.Logging.MaxSizeMB)
	assert.Equal(t, "packet_data.db", cfg.Store.Path)
	assert.Equal(t, 65536, cfg.Capture.SnapLen)
	assert.True(t, *cfg.Capture.Promiscuous)
	assert.Equal(t, 100, cfg.Capture.PollIntervalMS)
	assert.Equal(t, "http://localhost:11434", cfg.Insight.URL)
	assert.Equal(t, "llama3.1", cfg.Insight.Model)
	assert.Equal(t, 50, cfg.Insight.RecordLimit)
}

func TestLoadConfigValues(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{
		"logging": {"level": "debug", "file": "/tmp/netscope.log"},
		"store": {"path": "/var/lib/netscope/packets.db"},
		"capture": {"snap_len": 1500, "promiscuous": false, "poll_interval_ms": 250},
		"insight": {"model": "mistral", "record_limit": 10}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/netscope/packets.db", cfg.Store.Path)
	assert.Equal(t, 1500, cfg.Capture.SnapLen)
	assert.False(t, *cfg.Capture.Promiscuous)
	assert.Equal(t, "250ms", cfg.PollInterval().String())
	assert.Equal(t, "mistral", cfg.Insight.Model)
	assert.Equal(t, 10, cfg.Insight.RecordLimit)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig(writeConfig(t, `{"logging": `))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvDatabase, "/tmp/env.db")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvOllamaURL, "http://ollama:11434")
	t.Setenv(EnvOllamaModel, "phi3")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "/tmp/env.db", cfg.Store.Path)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "http://ollama:11434", cfg.Insight.URL)
	assert.Equal(t, "phi3", cfg.Insight.Model)

	t.Setenv(EnvLogLevel, "loud")
	assert.Error(t, Default().ApplyEnv())
}

func TestFindExplicitPath(t *testing.T) {
	path := writeConfig(t, `{"store": {"path": "explicit.db"}}`)
	cfg, source, err := Find(path)
	require.NoError(t, err)
	assert.Equal(t, path, source)
	assert.Equal(t, "explicit.db", cfg.Store.Path)

	_, _, err = Find(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestFindFallsBackToDefaults(t *testing.T) {
	orig := SearchPaths
	t.Cleanup(func() { SearchPaths = orig })
	SearchPaths = []string{filepath.Join(t.TempDir(), "absent.json")}

	cfg, source, err := Find("")
	require.NoError(t, err)
	assert.Empty(t, source)
	assert.Equal(t, "packet_data.db", cfg.Store.Path)
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "error"
	lc, err := cfg.LoggerConfig()
	require.NoError(t, err)
	assert.Equal(t, logger.Error, lc.Level)
	assert.Equal(t, 7, lc.MaxAgeDays)

	cfg.Logging.Level = "chatty"
	_, err = cfg.LoggerConfig()
	assert.Error(t, err)
}
