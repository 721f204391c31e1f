package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtsync/internal/errors"
)

// loadDefaults loads the embedded default config through a temp file.
func loadDefaults(t *testing.T) *Settings {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefault(path))
	settings, err := Load(NewViper(), path)
	require.NoError(t, err)
	return settings
}

func TestLoadEmbeddedDefaults(t *testing.T) {
	settings := loadDefaults(t)

	assert.Equal(t, "malgo", settings.Audio.Backend)
	assert.Equal(t, 44100, settings.Audio.SampleRate)
	assert.Equal(t, 256, settings.Audio.BufferFrames)
	assert.Equal(t, 2, settings.Audio.InputChannels)
	assert.Equal(t, 32, settings.Params.ChannelSlots)
	assert.Equal(t, 4096, settings.Capture.ScopeFrames)
	assert.Equal(t, "output", settings.Capture.Source)
	assert.InDelta(t, -72, settings.UI.MeterFloor, 0)
	assert.Equal(t, "127.0.0.1:8090", settings.HTTP.Listen)
	assert.Equal(t, "rtsync", settings.MQTT.TopicPrefix)
	assert.InDelta(t, 50, settings.MQTT.RateLimit, 0)
	assert.Equal(t, "info", settings.Log.Level)
	assert.Same(t, settings, GetSettings())
}

func TestDefaultsMatchEmbeddedFile(t *testing.T) {
	// a partial file falls back to setDefaultConfig for missing keys
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  backend: headless\n"), 0o600))
	partial, err := Load(NewViper(), path)
	require.NoError(t, err)

	full := loadDefaults(t)
	partial.Audio.Backend = full.Audio.Backend
	assert.Equal(t, full, partial)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("RTSYNC_AUDIO_BACKEND", "headless")
	t.Setenv("RTSYNC_MQTT_PASSWORD", "secret")
	t.Setenv("RTSYNC_UI_REFRESHRATE", "60")

	settings := loadDefaults(t)
	assert.Equal(t, "headless", settings.Audio.Backend)
	assert.Equal(t, "secret", settings.MQTT.Password)
	assert.Equal(t, 60, settings.UI.RefreshRate, "automatic env binding covers keys without an explicit binding")
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  samplerate: 100\n  tonehz: 0\n  backend: pulse\n"), 0o600))

	_, err := Load(NewViper(), path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	settings := loadDefaults(t)
	settings.Audio.Device = "USB Audio"
	settings.MQTT.Enabled = true
	settings.Params.ChannelSlots = 64

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	reloaded, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, settings, reloaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is removed")
}

func TestLoggingConfig(t *testing.T) {
	t.Parallel()
	s := &Settings{Log: LogSettings{Level: "warn", File: "logs/x.log", MaxSize: 3}}
	cfg := s.LoggingConfig()
	assert.Equal(t, "warn", cfg.DefaultLevel)
	require.NotNil(t, cfg.FileOutput)
	assert.Equal(t, 3, cfg.FileOutput.MaxSize)

	s.Debug = true
	s.Log.File = ""
	cfg = s.LoggingConfig()
	assert.Equal(t, "debug", cfg.DefaultLevel)
	assert.Nil(t, cfg.FileOutput)
}

func TestMoveFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))
	require.NoError(t, moveFile(src, dst))

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}
