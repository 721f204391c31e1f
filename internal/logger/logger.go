// Package logger provides a structured, module-aware logging system built on log/slog.
//
// Loggers are injected as the Logger interface and scoped per module:
//
//	central, err := logger.NewCentralLogger(&logger.LoggingConfig{DefaultLevel: "info"})
//	if err != nil {
//	    return err
//	}
//	defer central.Close()
//
//	log := central.Module("audio")
//	log.Info("stream started",
//	    logger.Int("sample_rate", 48000),
//	    logger.String("backend", "alsa"))
//
// Console output is human-readable text; the optional file output is JSON and
// rotated by size through lumberjack.
//
// The realtime audio thread never logs. Code running there updates atomic
// counters and the non-realtime side reports them.
//
// For tests use NewSlogLogger with a buffer or io.Discard.
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel is a level name as used in configuration.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is one key/value pair. Keys are interned with unique.Make so
// repeated keys share storage.
type Field struct {
	Key   string
	Value any
}

func internKey(key string) string {
	return unique.Make(key).Value()
}

var (
	errorKey   = internKey("error")
	moduleKey  = internKey("module")
	traceIDKey = internKey("trace_id")
)

// Logger is injected into every component. Implementations must be safe
// for concurrent use.
type Logger interface {
	// Module returns a logger tagged module=name, nested under the
	// receiver's module.
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	Log(level LogLevel, msg string, fields ...Field)
	Flush() error
}

// Field constructors. Keys are interned.

func String(key, value string) Field {
	return Field{Key: internKey(key), Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: internKey(key), Value: value}
}

// Uint64 is used for the audio counters: blocks, frames and overflows.
func Uint64(key string, value uint64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Float32 is used for parameter values; output is rounded to four decimals.
func Float32(key string, value float32) Field {
	return Field{Key: internKey(key), Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: internKey(key), Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: internKey(key), Value: value}
}

// Error stores err's message under the key "error". A nil err logs as
// error=<nil>.
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey, Value: nil}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

// Duration renders as a string such as "1.5ms".
func Duration(key string, value time.Duration) Field {
	return Field{Key: internKey(key), Value: value}
}
