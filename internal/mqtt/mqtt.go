// Package mqtt is the MQTT control surface. It accepts parameter set
// messages, announces them through the shared params.Mirror and publishes
// parameter state and capture meters.
//
// Topics, relative to the configured prefix:
//
//	<prefix>/params/<id|name>/set     decimal value, "toggle" or "reset"
//	<prefix>/params/<id>/state        current GUI value, published on change
//	<prefix>/meters/<capture>/<ch>    peak level in dBFS
package mqtt

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/rtsync/internal/conf"
)

// Config holds the configuration for the MQTT bridge.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Retain      bool // true to retain state messages at the broker

	// RateLimit is the number of accepted set messages per second per parameter.
	RateLimit float64
	// MeterRate is the number of meter publications per second, 0 disables meters.
	MeterRate  float64
	MeterFloor float32

	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
	MaxReconnectDelay time.Duration
	StateInterval     time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		TopicPrefix:       "rtsync",
		Retain:            true,
		RateLimit:         50,
		MeterRate:         5,
		MeterFloor:        -72,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
		MaxReconnectDelay: 2 * time.Minute,
		StateInterval:     100 * time.Millisecond,
	}
}

// ConfigFromSettings maps the mqtt and ui settings onto a Config.
func ConfigFromSettings(s *conf.Settings) Config {
	cfg := DefaultConfig()
	cfg.Broker = s.MQTT.Broker
	cfg.ClientID = s.MQTT.ClientID
	cfg.Username = s.MQTT.Username
	cfg.Password = s.MQTT.Password
	cfg.TopicPrefix = strings.TrimSuffix(s.MQTT.TopicPrefix, "/")
	cfg.Retain = s.MQTT.Retain
	cfg.RateLimit = s.MQTT.RateLimit
	cfg.MeterRate = s.MQTT.MeterRate
	cfg.MeterFloor = float32(s.UI.MeterFloor)
	return cfg
}

// clientID returns the configured id or a random one.
func (c Config) clientID() string {
	if c.ClientID != "" {
		return c.ClientID
	}
	return "rtsync-" + uuid.NewString()[:8]
}
