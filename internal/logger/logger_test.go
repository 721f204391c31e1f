package logger_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtsync/internal/logger"
)

func TestLogLevels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		level     logger.LogLevel
		logFunc   func(l logger.Logger)
		shouldLog bool
	}{
		{"debug hidden at info", logger.LogLevelInfo, func(l logger.Logger) { l.Debug("msg") }, false},
		{"info shown at info", logger.LogLevelInfo, func(l logger.Logger) { l.Info("msg") }, true},
		{"trace shown at trace", logger.LogLevelTrace, func(l logger.Logger) { l.Trace("msg") }, true},
		{"warn hidden at error", logger.LogLevelError, func(l logger.Logger) { l.Warn("msg") }, false},
		{"error always shown", logger.LogLevelError, func(l logger.Logger) { l.Error("msg") }, true},
		{"explicit level respects threshold", logger.LogLevelWarn, func(l logger.Logger) { l.Log(logger.LogLevelInfo, "msg") }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			tc.logFunc(logger.NewSlogLogger(buf, tc.level, time.UTC))
			if tc.shouldLog {
				assert.Contains(t, buf.String(), "msg")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestModuleAndFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)
	log := base.Module("audio").Module("driver").With(logger.String("backend", "headless"))

	log.Info("stream started",
		logger.Int("sample_rate", 48000),
		logger.Float32("gain", 1.5),
		logger.Uint64("blocks", 12))

	out := buf.String()
	assert.Contains(t, out, "module=audio.driver")
	assert.Contains(t, out, "backend=headless")
	assert.Contains(t, out, "sample_rate=48000")
	assert.Contains(t, out, "gain=1.5")
	assert.Contains(t, out, "blocks=12")
	assert.NotContains(t, out, "time=", "console output carries no timestamp")
}

func TestSensitiveFieldsRedacted(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)
	log.Info("connecting", logger.String("mqtt_password", "hunter2"), logger.String("broker", "tcp://localhost:1883"))

	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), "[REDACTED]")
	assert.Contains(t, buf.String(), "tcp://localhost:1883")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	log.WithContext(logger.WithTraceID(context.Background(), "req-42")).Info("handled")
	assert.Contains(t, buf.String(), "trace_id=req-42")

	buf.Reset()
	log.WithContext(context.Background()).Info("plain")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestFileOutputJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "rtsync.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "debug",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "debug"},
	})
	require.NoError(t, err)

	cl.Module("params").Debug("announce", logger.Int("id", 2), logger.Float64("value", 0.25))
	require.NoError(t, cl.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "announce", entry["msg"])
	assert.Equal(t, "params", entry["module"])
	assert.InDelta(t, 0.25, entry["value"], 1e-9)
}

func TestModuleLevelOverride(t *testing.T) {
	t.Parallel()

	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "info",
		Console:      &logger.ConsoleOutput{Enabled: false},
		ModuleLevels: map[string]string{"mqtt": "error"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	assert.NotNil(t, cl.Module("mqtt"))
}

func TestInvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)
}

func TestRotateKeepsBackup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "rtsync.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "info",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "info", MaxBackups: 3},
	})
	require.NoError(t, err)

	cl.Module("app").Info("before rotation")
	require.NoError(t, cl.Rotate())
	cl.Module("app").Info("after rotation")
	require.NoError(t, cl.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "current file plus one backup")

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(current), "after rotation")
	assert.NotContains(t, string(current), "before rotation")
}

func TestRotateWithoutFileOutput(t *testing.T) {
	t.Parallel()

	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		Console: &logger.ConsoleOutput{Enabled: false},
	})
	require.NoError(t, err)
	assert.NoError(t, cl.Rotate())
}
