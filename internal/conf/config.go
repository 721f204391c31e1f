// config.go: settings struct and the functions that load and save it.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// AudioSettings configures the audio engine.
type AudioSettings struct {
	Backend        string  `mapstructure:"backend" yaml:"backend"`               // malgo, oto or headless
	Device         string  `mapstructure:"device" yaml:"device"`                 // device name, id or "default"
	SampleRate     int     `mapstructure:"samplerate" yaml:"samplerate"`         // requested sample rate
	BufferFrames   int     `mapstructure:"bufferframes" yaml:"bufferframes"`     // device period in frames
	MaxBlockFrames int     `mapstructure:"maxblockframes" yaml:"maxblockframes"` // largest block handed to the processor
	InputChannels  int     `mapstructure:"inputchannels" yaml:"inputchannels"`
	OutputChannels int     `mapstructure:"outputchannels" yaml:"outputchannels"`
	ToneHz         float64 `mapstructure:"tonehz" yaml:"tonehz"` // headless test tone, 0 for silence
}

// ParamsSettings configures the parameter change channels.
type ParamsSettings struct {
	ChannelSlots int `mapstructure:"channelslots" yaml:"channelslots"` // ring slots per parameter
}

// CaptureSettings configures the capture rings.
type CaptureSettings struct {
	ScopeFrames int    `mapstructure:"scopeframes" yaml:"scopeframes"` // oscilloscope window
	MeterFrames int    `mapstructure:"meterframes" yaml:"meterframes"` // meter window
	Source      string `mapstructure:"source" yaml:"source"`           // output or input
	ExportPath  string `mapstructure:"exportpath" yaml:"exportpath"`   // WAV snapshot directory
}

// UISettings configures the terminal UI.
type UISettings struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	RefreshRate int     `mapstructure:"refreshrate" yaml:"refreshrate"` // frames per second
	MeterFloor  float64 `mapstructure:"meterfloor" yaml:"meterfloor"`   // dBFS at the bottom of a volume bar
}

// HTTPSettings configures the HTTP control surface.
type HTTPSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// MQTTSettings configures the MQTT control surface.
type MQTTSettings struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Broker      string  `mapstructure:"broker" yaml:"broker"`
	TopicPrefix string  `mapstructure:"topicprefix" yaml:"topicprefix"`
	ClientID    string  `mapstructure:"clientid" yaml:"clientid"`
	Username    string  `mapstructure:"username" yaml:"username"`
	Password    string  `mapstructure:"password" yaml:"password"`
	RateLimit   float64 `mapstructure:"ratelimit" yaml:"ratelimit"` // set messages per second per parameter
	MeterRate   float64 `mapstructure:"meterrate" yaml:"meterrate"` // meter publications per second
	Retain      bool    `mapstructure:"retain" yaml:"retain"`       // retain state messages
}

// MetricsSettings toggles the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// TelemetrySettings configures Sentry error reporting.
type TelemetrySettings struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`             // empty disables file output
	MaxSize    int    `mapstructure:"maxsize" yaml:"maxsize"`       // MB before rotation
	MaxBackups int    `mapstructure:"maxbackups" yaml:"maxbackups"` // rotated files kept
	MaxAge     int    `mapstructure:"maxage" yaml:"maxage"`         // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Settings is the complete configuration.
type Settings struct {
	Debug     bool              `mapstructure:"debug" yaml:"debug"`
	Audio     AudioSettings     `mapstructure:"audio" yaml:"audio"`
	Params    ParamsSettings    `mapstructure:"params" yaml:"params"`
	Capture   CaptureSettings   `mapstructure:"capture" yaml:"capture"`
	UI        UISettings        `mapstructure:"ui" yaml:"ui"`
	HTTP      HTTPSettings      `mapstructure:"http" yaml:"http"`
	MQTT      MQTTSettings      `mapstructure:"mqtt" yaml:"mqtt"`
	Metrics   MetricsSettings   `mapstructure:"metrics" yaml:"metrics"`
	Telemetry TelemetrySettings `mapstructure:"telemetry" yaml:"telemetry"`
	Log       LogSettings       `mapstructure:"log" yaml:"log"`
}

// LoggingConfig converts the log section for logger.NewCentralLogger.
func (s *Settings) LoggingConfig() *logger.LoggingConfig {
	level := s.Log.Level
	if s.Debug {
		level = string(logger.LogLevelDebug)
	}
	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Console:      &logger.ConsoleOutput{Enabled: true, Level: level},
	}
	if s.Log.File != "" {
		cfg.FileOutput = &logger.FileOutput{
			Enabled:    true,
			Path:       s.Log.File,
			MaxSize:    s.Log.MaxSize,
			MaxAge:     s.Log.MaxAge,
			MaxBackups: s.Log.MaxBackups,
			Compress:   s.Log.Compress,
			Level:      level,
		}
	}
	return cfg
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// NewViper returns a viper instance with defaults and environment bindings
// applied but no file read.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaultConfig(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration into a Settings. When configFile is empty the
// OS default paths are searched and a default file is created in the first
// one if none exists.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if err := readConfig(v, configFile); err != nil {
		return nil, err
	}
	if err := bindEnvVars(v); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

func readConfig(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(fmt.Errorf("error reading config file %s: %w", configFile, err)).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
		return nil
	}

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	err = v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) {
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	path := filepath.Join(configPaths[0], "config.yaml")
	if err := WriteDefault(path); err != nil {
		return err
	}
	GetLogger().Info("created default config file", logger.String("path", path))
	v.SetConfigFile(path)
	return v.ReadInConfig()
}

// DefaultConfig returns the embedded default configuration file.
func DefaultConfig() []byte {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		// the file is embedded at build time
		panic(err)
	}
	return data
}

// WriteDefault writes the default configuration to path, creating parent
// directories.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(fmt.Errorf("error creating directories for config file: %w", err)).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}
	if err := os.WriteFile(path, DefaultConfig(), 0o644); err != nil {
		return errors.New(fmt.Errorf("error writing default config file: %w", err)).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}
	return nil
}

// GetSettings returns the most recently loaded settings.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath through a temporary file so
// the replacement is atomic on most filesystems. Comments are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// cross-device rename, fall back to copy and delete
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}
	return nil
}

// MarshalYAML renders settings as a YAML document.
func MarshalYAML(settings *Settings) ([]byte, error) {
	return yaml.Marshal(settings)
}
