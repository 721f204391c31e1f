package audiocore

import (
	"context"
	"sync/atomic"
)

// Engine drives a Callback from an audio device or a clock.
type Engine interface {
	// Name identifies the backend.
	Name() string
	// Start opens the device and begins calling cb. It returns once the
	// stream is running.
	Start(ctx context.Context, cb Callback) error
	// Stop halts the stream and waits for any in-flight callback.
	Stop() error
	// SampleRate returns the negotiated sample rate.
	SampleRate() int
	// Done is closed when the stream has stopped for any reason.
	Done() <-chan struct{}
}

// EngineConfig holds the stream parameters shared by every engine.
type EngineConfig struct {
	Device         string
	SampleRate     int
	BufferFrames   int
	InputChannels  int
	OutputChannels int
}

// WithDefaults fills zero fields.
func (c EngineConfig) WithDefaults() EngineConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.BufferFrames <= 0 {
		c.BufferFrames = 256
	}
	if c.OutputChannels <= 0 {
		c.OutputChannels = 2
	}
	if c.InputChannels < 0 {
		c.InputChannels = 0
	}
	return c
}

// StopLatch records the first non-Continue code returned by a callback so
// that a control goroutine can stop the stream outside the audio thread.
type StopLatch struct {
	code atomic.Int32
}

// Observe records code if it is the first stop request. Audio thread safe.
func (l *StopLatch) Observe(code Code) {
	if code != Continue {
		l.code.CompareAndSwap(int32(Continue), int32(code))
	}
}

// Code returns the recorded stop request, or Continue.
func (l *StopLatch) Code() Code { return Code(l.code.Load()) }

// Stopping reports whether a stop was requested.
func (l *StopLatch) Stopping() bool { return l.Code() != Continue }

// Reset clears the latch before a new stream.
func (l *StopLatch) Reset() { l.code.Store(int32(Continue)) }
