package telemetry

import (
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtsync/internal/conf"
	"github.com/tphakala/rtsync/internal/errors"
)

const testDSN = "https://public@sentry.example.com/1"

func TestScrubMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"broker credentials", "dial tcp://user:pw@broker:1883 failed", "dial tcp://[REDACTED]@broker:1883 failed"},
		{"query string", "GET http://host/path?token=abc", "GET http://host/path?[REDACTED]"},
		{"password field", "password=hunter2 rejected", "password=[REDACTED] rejected"},
		{"ip address", "connect to 192.168.1.10 refused", "connect to [IP] refused"},
		{"plain text", "parameter Gain out of range", "parameter Gain out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ScrubMessage(tt.in))
		})
	}
}

func TestInitDisabled(t *testing.T) {
	require.NoError(t, Init(conf.TelemetrySettings{Enabled: false}, Options{}))
	assert.False(t, Enabled())
	assert.Nil(t, errors.GetTelemetryReporter())
	assert.True(t, Flush(time.Second))
}

func TestInitReportsEnhancedErrors(t *testing.T) {
	transport := &mockTransport{}
	require.NoError(t, Init(conf.TelemetrySettings{Enabled: true, DSN: testDSN, Environment: "test"},
		Options{Version: "1.0.0", Transport: transport}))
	t.Cleanup(func() { Flush(time.Second) })
	assert.True(t, Enabled())

	ee := errors.Newf("broker tcp://u:p@10.0.0.1:1883 unreachable").
		Component("mqtt").
		Category(errors.CategoryMQTTConnection).
		Build()

	events := transport.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].Timestamp.Equal(ee.GetTimestamp()), "event time is when the error was built")
	assert.NotContains(t, events[0].Message, "u:p")
	assert.NotContains(t, events[0].Message, "10.0.0.1")
	assert.Empty(t, events[0].ServerName)
	assert.Equal(t, "rtsync@1.0.0", events[0].Release)

	CaptureMessage("engine restarted", sentry.LevelWarning, "audiocore")
	require.Len(t, transport.Events(), 2)
	assert.Equal(t, "audiocore", transport.Events()[1].Tags["component"])

	assert.True(t, Flush(time.Second))
	assert.False(t, Enabled())
	CaptureMessage("dropped", sentry.LevelInfo, "audiocore")
	assert.Len(t, transport.Events(), 2)
}
