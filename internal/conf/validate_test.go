package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Audio:   AudioSettings{Backend: "malgo", SampleRate: 48000, BufferFrames: 256, MaxBlockFrames: 1024, InputChannels: 2, OutputChannels: 2, ToneHz: 440},
		Params:  ParamsSettings{ChannelSlots: 32},
		Capture: CaptureSettings{ScopeFrames: 4096, MeterFrames: 1024, Source: "output"},
		UI:      UISettings{RefreshRate: 30, MeterFloor: -72},
		HTTP:    HTTPSettings{Enabled: true, Listen: "127.0.0.1:8090"},
		MQTT:    MQTTSettings{Enabled: true, Broker: "tcp://localhost:1883", TopicPrefix: "rtsync", RateLimit: 50},
		Log:     LogSettings{Level: "info"},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"unknown backend", func(s *Settings) { s.Audio.Backend = "jack" }, "audio.backend"},
		{"sample rate", func(s *Settings) { s.Audio.SampleRate = 1000 }, "audio.samplerate"},
		{"no outputs", func(s *Settings) { s.Audio.OutputChannels = 0 }, "audio.outputchannels"},
		{"too many inputs", func(s *Settings) { s.Audio.InputChannels = 9 }, "audio.inputchannels"},
		{"tone above nyquist", func(s *Settings) { s.Audio.ToneHz = 30000 }, "audio.tonehz"},
		{"tiny channel", func(s *Settings) { s.Params.ChannelSlots = 2 }, "params.channelslots"},
		{"capture source", func(s *Settings) { s.Capture.Source = "both" }, "capture.source"},
		{"input capture without inputs", func(s *Settings) {
			s.Capture.Source = "input"
			s.Audio.InputChannels = 0
		}, "requires audio.inputchannels"},
		{"meter floor", func(s *Settings) { s.UI.MeterFloor = 3 }, "ui.meterfloor"},
		{"listen address", func(s *Settings) { s.HTTP.Listen = "8090" }, "http.listen"},
		{"disabled http skips listen", func(s *Settings) {
			s.HTTP.Enabled = false
			s.HTTP.Listen = "bogus"
		}, ""},
		{"broker url", func(s *Settings) { s.MQTT.Broker = "localhost" }, "mqtt.broker"},
		{"wildcard prefix", func(s *Settings) { s.MQTT.TopicPrefix = "a/#" }, "mqtt.topicprefix"},
		{"rate limit", func(s *Settings) { s.MQTT.RateLimit = 0 }, "mqtt.ratelimit"},
		{"telemetry dsn", func(s *Settings) { s.Telemetry.Enabled = true }, "telemetry.dsn"},
		{"log level", func(s *Settings) { s.Log.Level = "verbose" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSettingsAggregates(t *testing.T) {
	t.Parallel()
	s := validSettings()
	s.Audio.BufferFrames = 0
	s.UI.RefreshRate = 0
	s.Log.Level = ""

	var ve ValidationError
	require.ErrorAs(t, ValidateSettings(s), &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestEnvValidators(t *testing.T) {
	t.Setenv("RTSYNC_AUDIO_BACKEND", "jack")
	t.Setenv("RTSYNC_HTTP_LISTEN", "127.0.0.1:9000")
	t.Setenv("RTSYNC_LOG_LEVEL", "loud")

	err := bindEnvVars(NewViper())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RTSYNC_AUDIO_BACKEND")
	assert.Contains(t, err.Error(), "RTSYNC_LOG_LEVEL")
	assert.NotContains(t, err.Error(), "RTSYNC_HTTP_LISTEN")
}
