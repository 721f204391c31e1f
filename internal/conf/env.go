// env.go: RTSYNC_* environment variable bindings
package conf

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "RTSYNC"

// envBinding maps a config key to an environment variable with an optional
// validator run when the variable is set.
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "RTSYNC_DEBUG", validateEnvBool},

		{"audio.backend", "RTSYNC_AUDIO_BACKEND", validateEnvBackend},
		{"audio.device", "RTSYNC_AUDIO_DEVICE", nil},
		{"audio.samplerate", "RTSYNC_AUDIO_SAMPLERATE", validateEnvPositiveInt},
		{"audio.bufferframes", "RTSYNC_AUDIO_BUFFERFRAMES", validateEnvPositiveInt},

		{"http.enabled", "RTSYNC_HTTP_ENABLED", validateEnvBool},
		{"http.listen", "RTSYNC_HTTP_LISTEN", validateEnvListen},

		{"mqtt.enabled", "RTSYNC_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "RTSYNC_MQTT_BROKER", nil},
		{"mqtt.username", "RTSYNC_MQTT_USERNAME", nil},
		{"mqtt.password", "RTSYNC_MQTT_PASSWORD", nil},

		{"telemetry.enabled", "RTSYNC_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "RTSYNC_TELEMETRY_DSN", nil},

		{"log.level", "RTSYNC_LOG_LEVEL", validateEnvLogLevel},
	}
}

// bindEnvVars binds the explicit variables and reports invalid values. Invalid
// values are still bound; ValidateSettings rejects them after unmarshaling.
func bindEnvVars(v *viper.Viper) error {
	var warnings []string
	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}
	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvBackend(value string) error {
	if !isKnownBackend(value) {
		return fmt.Errorf("must be one of %s", strings.Join(knownBackends, ", "))
	}
	return nil
}

func validateEnvListen(value string) error {
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("must be host:port: %w", err)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	if !isKnownLogLevel(value) {
		return fmt.Errorf("must be one of %s", strings.Join(knownLogLevels, ", "))
	}
	return nil
}
