package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.File = filepath.Join(t.TempDir(), "agent.log")
	cfg.Compress = false

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Info("diagnosis finished", zap.String("run_id", "run-1"))
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(cfg.File)
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(content))), &line))
	assert.Equal(t, "diagnosis finished", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "run-1", line["run_id"])
	assert.Contains(t, line, "timestamp")
	assert.Contains(t, line, "caller")
}

func TestNewWithLevel_ChangesLive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "warn"
	cfg.File = filepath.Join(t.TempDir(), "agent.log")

	logger, level, err := NewWithLevel(cfg)
	require.NoError(t, err)

	logger.Info("dropped")
	level.SetLevel(zapcore.DebugLevel)
	logger.Debug("kept")
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "dropped")
	assert.Contains(t, string(content), "kept")
}

func TestNew_InvalidSettings(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	_, err = New(Config{Level: "info", Format: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestParseLevel_DefaultsToInfo(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)
}
