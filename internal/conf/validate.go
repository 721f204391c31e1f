// validate.go: settings validation
package conf

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

var (
	knownBackends  = []string{"malgo", "soundcard", "oto", "headless"}
	knownLogLevels = []string{"trace", "debug", "info", "warn", "error"}
)

const maxChannels = 8

// ValidationError collects every validation failure so they can be reported
// together.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}
	validators := []func(*Settings) []string{
		validateAudioSettings,
		validateParamsSettings,
		validateCaptureSettings,
		validateUISettings,
		validateHTTPSettings,
		validateMQTTSettings,
		validateTelemetrySettings,
		validateLogSettings,
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func isKnownBackend(name string) bool {
	return slices.Contains(knownBackends, strings.ToLower(name))
}

func isKnownLogLevel(level string) bool {
	return slices.Contains(knownLogLevels, strings.ToLower(level))
}

func validateAudioSettings(s *Settings) []string {
	var errs []string
	a := &s.Audio
	if a.Backend != "" && !isKnownBackend(a.Backend) {
		errs = append(errs, fmt.Sprintf("audio.backend %q must be one of %s", a.Backend, strings.Join(knownBackends, ", ")))
	}
	if a.SampleRate < 8000 || a.SampleRate > 384000 {
		errs = append(errs, fmt.Sprintf("audio.samplerate %d out of range 8000-384000", a.SampleRate))
	}
	if a.BufferFrames <= 0 {
		errs = append(errs, "audio.bufferframes must be positive")
	}
	if a.MaxBlockFrames <= 0 {
		errs = append(errs, "audio.maxblockframes must be positive")
	}
	if a.InputChannels < 0 || a.InputChannels > maxChannels {
		errs = append(errs, fmt.Sprintf("audio.inputchannels must be between 0 and %d", maxChannels))
	}
	if a.OutputChannels < 1 || a.OutputChannels > maxChannels {
		errs = append(errs, fmt.Sprintf("audio.outputchannels must be between 1 and %d", maxChannels))
	}
	if a.ToneHz < 0 || (a.SampleRate > 0 && a.ToneHz >= float64(a.SampleRate)/2) {
		errs = append(errs, "audio.tonehz must be between 0 and half the sample rate")
	}
	return errs
}

func validateParamsSettings(s *Settings) []string {
	if s.Params.ChannelSlots < 4 {
		return []string{"params.channelslots must be at least 4"}
	}
	return nil
}

func validateCaptureSettings(s *Settings) []string {
	var errs []string
	c := &s.Capture
	if c.ScopeFrames <= 0 || c.MeterFrames <= 0 {
		errs = append(errs, "capture.scopeframes and capture.meterframes must be positive")
	}
	switch strings.ToLower(c.Source) {
	case "output", "input":
	default:
		errs = append(errs, fmt.Sprintf("capture.source %q must be output or input", c.Source))
	}
	if strings.EqualFold(c.Source, "input") && s.Audio.InputChannels == 0 {
		errs = append(errs, "capture.source input requires audio.inputchannels > 0")
	}
	return errs
}

func validateUISettings(s *Settings) []string {
	var errs []string
	if s.UI.RefreshRate < 1 || s.UI.RefreshRate > 120 {
		errs = append(errs, "ui.refreshrate must be between 1 and 120")
	}
	if s.UI.MeterFloor >= 0 {
		errs = append(errs, "ui.meterfloor must be negative")
	}
	return errs
}

func validateHTTPSettings(s *Settings) []string {
	if !s.HTTP.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.HTTP.Listen); err != nil {
		return []string{fmt.Sprintf("http.listen %q: %v", s.HTTP.Listen, err)}
	}
	return nil
}

func validateMQTTSettings(s *Settings) []string {
	if !s.MQTT.Enabled {
		return nil
	}
	var errs []string
	m := &s.MQTT
	if m.Broker == "" {
		errs = append(errs, "mqtt.broker is required when MQTT is enabled")
	} else if u, err := url.Parse(m.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("mqtt.broker %q must be a URL such as tcp://host:1883", m.Broker))
	}
	if m.TopicPrefix == "" || strings.ContainsAny(m.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topicprefix must be non-empty and free of wildcards")
	}
	if m.RateLimit <= 0 {
		errs = append(errs, "mqtt.ratelimit must be positive")
	}
	if m.MeterRate < 0 {
		errs = append(errs, "mqtt.meterrate must not be negative")
	}
	return errs
}

func validateTelemetrySettings(s *Settings) []string {
	if s.Telemetry.Enabled && s.Telemetry.DSN == "" {
		return []string{"telemetry.dsn is required when telemetry is enabled"}
	}
	return nil
}

func validateLogSettings(s *Settings) []string {
	var errs []string
	if !isKnownLogLevel(s.Log.Level) {
		errs = append(errs, fmt.Sprintf("log.level %q must be one of %s", s.Log.Level, strings.Join(knownLogLevels, ", ")))
	}
	if s.Log.MaxSize < 0 || s.Log.MaxBackups < 0 || s.Log.MaxAge < 0 {
		errs = append(errs, "log rotation limits must not be negative")
	}
	return errs
}
