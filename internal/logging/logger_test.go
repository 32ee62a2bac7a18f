package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("upload processed", zap.String("request_id", "abc"), zap.Int("rows", 100))
	require.NoError(t, closeFn())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug entries are below the level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "upload processed", entry["message"])
	assert.Equal(t, "abc", entry["request_id"])
	assert.Equal(t, float64(100), entry["rows"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "debug", Format: "console", Output: &buf})
	require.NoError(t, err)
	logger.Debug("starting")
	require.NoError(t, closeFn())

	assert.Contains(t, buf.String(), "debug")
	assert.Contains(t, buf.String(), "starting")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anomalyd.log")
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{
		Level: "info", Format: "console", Output: &buf,
		File: path, MaxSizeMB: 1, MaxBackups: 1,
	})
	require.NoError(t, err)
	logger.Warn("disk nearly full")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Contains(t, buf.String(), "disk nearly full")
}

func TestNew_Invalid(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, _, err = New(Options{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
