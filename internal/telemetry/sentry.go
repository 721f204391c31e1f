// Package telemetry provides opt-in Sentry error reporting.
//
// Init installs an errors.TelemetryReporter so every EnhancedError built with
// the errors package is forwarded once telemetry is enabled. Messages are
// scrubbed of credentials before they leave the process.
package telemetry

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/rtsync/internal/conf"
	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/logger"
)

var (
	initMu      sync.Mutex
	initialized bool
)

// Options overrides parts of the Sentry client setup, mainly for tests.
type Options struct {
	Version   string
	Transport sentry.Transport
}

// PlatformInfo holds the platform details attached to every event.
type PlatformInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	GoVersion    string `json:"go_version"`
}

func collectPlatformInfo() PlatformInfo {
	return PlatformInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
}

// Init initializes Sentry when telemetry is enabled and wires the errors
// package to report through it. With telemetry disabled it removes any
// reporter so Build stays on its fast path.
func Init(settings conf.TelemetrySettings, opts Options) error {
	initMu.Lock()
	defer initMu.Unlock()

	log := logger.Global().Module("telemetry")
	if !settings.Enabled {
		errors.SetTelemetryReporter(nil)
		log.Debug("sentry telemetry is disabled")
		return nil
	}

	release := "rtsync"
	if opts.Version != "" {
		release = fmt.Sprintf("rtsync@%s", opts.Version)
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      settings.Environment,
		ServerName:       "",
		Release:          release,
		Transport:        opts.Transport,
		BeforeSend:       beforeSend,
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	platform := collectPlatformInfo()
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", platform.OS)
		scope.SetTag("arch", platform.Architecture)
		scope.SetContext("platform", map[string]any{
			"num_cpu":    platform.NumCPU,
			"go_version": platform.GoVersion,
		})
	})

	errors.SetPrivacyScrubber(ScrubMessage)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized = true

	log.Info("sentry telemetry initialized",
		logger.String("environment", settings.Environment),
		logger.String("release", release))
	return nil
}

// beforeSend strips host identifying fields and scrubs free text.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.ServerName = ""
	event.User = sentry.User{}
	event.Request = nil
	event.Modules = nil
	event.Message = ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = ScrubMessage(event.Exception[i].Value)
	}
	return event
}

// Enabled reports whether Init activated Sentry.
func Enabled() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return initialized
}

// CaptureMessage sends a plain message at level when telemetry is active.
func CaptureMessage(message string, level sentry.Level, component string) {
	if !Enabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetTag("component", component)
		sentry.CaptureMessage(message)
	})
}

// Flush waits up to timeout for queued events and detaches the reporter.
func Flush(timeout time.Duration) bool {
	initMu.Lock()
	defer initMu.Unlock()
	if !initialized {
		return true
	}
	errors.SetTelemetryReporter(nil)
	errors.SetPrivacyScrubber(nil)
	initialized = false
	return sentry.Flush(timeout)
}
