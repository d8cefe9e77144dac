package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: Warn, Output: &buf})
	require.NoError(t, err)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "WARN: warn 3")
	assert.Contains(t, out, "ERROR: error 4")
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: Error, Output: &buf})
	require.NoError(t, err)

	assert.False(t, l.Enabled(Debug))
	l.SetLevel(Debug)
	assert.True(t, l.Enabled(Debug))

	l.Debug("now visible")
	assert.Contains(t, buf.String(), "DEBUG: now visible")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "netscope.log")
	var buf bytes.Buffer
	l, err := New(Config{Level: Info, File: path, MaxSizeMB: 1, Output: &buf})
	require.NoError(t, err)

	l.Info("written to %s", "file")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFO: written to file")
	assert.Contains(t, buf.String(), "INFO: written to file")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug": Debug,
		"INFO":  Info,
		"":      Info,
		"warn":  Warn,
		"Error": Error,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(Error))
	l.Error("dropped")
}
