// Package conf loads, validates and saves rtsync settings.
//
// Values come from the built-in defaults, then config.yaml, then RTSYNC_*
// environment variables, with later sources winning.
package conf

import "github.com/tphakala/rtsync/internal/logger"

// GetLogger returns the config module logger. It is looked up on every call
// because the central logger is installed after settings are loaded.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
