package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelWarn)

	logger.Debug("connecting", "host", "127.0.0.1")
	logger.Warn("retrying", "attempt", 2)

	assert.NotContains(t, stderr.String(), "connecting")
	assert.Contains(t, stderr.String(), "retrying")

	lines := bytes.Split(bytes.TrimSpace(file.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "connecting", rec["msg"])
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kleos.log")
	var stderr bytes.Buffer

	logger, cleanup := SetupLogger(&stderr, path, LogLevel(false))
	logger.Info("hello")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Empty(t, stderr.String())
}

func TestSetupLogger_NoFile(t *testing.T) {
	var stderr bytes.Buffer
	logger, cleanup := SetupLogger(&stderr, "", LogLevel(true))
	logger.Debug("visible")
	require.NoError(t, cleanup())
	assert.Contains(t, stderr.String(), "visible")
}
