// defaults.go: default values for every configuration key
package conf

import "github.com/spf13/viper"

// setDefaultConfig sets the defaults used when a key is absent from both the
// config file and the environment.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	// Audio engine
	v.SetDefault("audio.backend", "malgo")
	v.SetDefault("audio.device", "default")
	v.SetDefault("audio.samplerate", 44100)
	v.SetDefault("audio.bufferframes", 256)
	v.SetDefault("audio.maxblockframes", 1024)
	v.SetDefault("audio.inputchannels", 2)
	v.SetDefault("audio.outputchannels", 2)
	v.SetDefault("audio.tonehz", 440.0)

	// Parameter change channels
	v.SetDefault("params.channelslots", 32)

	// Capture rings
	v.SetDefault("capture.scopeframes", 4096)
	v.SetDefault("capture.meterframes", 1024)
	v.SetDefault("capture.source", "output")
	v.SetDefault("capture.exportpath", "captures/")

	// Terminal UI
	v.SetDefault("ui.enabled", true)
	v.SetDefault("ui.refreshrate", 30)
	v.SetDefault("ui.meterfloor", -72.0)

	// HTTP control surface
	v.SetDefault("http.enabled", false)
	v.SetDefault("http.listen", "127.0.0.1:8090")

	// MQTT control surface
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topicprefix", "rtsync")
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.ratelimit", 50.0)
	v.SetDefault("mqtt.meterrate", 5.0)
	v.SetDefault("mqtt.retain", true)

	// Prometheus
	v.SetDefault("metrics.enabled", false)

	// Sentry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.environment", "production")

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxsize", 10)
	v.SetDefault("log.maxbackups", 5)
	v.SetDefault("log.maxage", 30)
	v.SetDefault("log.compress", false)
}
