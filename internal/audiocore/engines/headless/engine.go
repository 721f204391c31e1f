// Package headless drives the audio callback from a clock instead of a
// device. Input is a sine test tone on every channel and output is
// discarded after metering. It backs tests and machines without audio
// hardware.
package headless

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/rtsync/internal/audiocore"
	"github.com/tphakala/rtsync/internal/logger"
)

// Name is the backend name used in configuration.
const Name = "headless"

// Options tune the generated stream.
type Options struct {
	// ToneHz is the test tone frequency; 0 gives silent input.
	ToneHz float64
	// Amplitude is the test tone peak.
	Amplitude float32
	// Realtime paces blocks at the device period. When false blocks run
	// back to back.
	Realtime bool
	// MaxBlocks stops the stream after that many blocks; 0 means unlimited.
	MaxBlocks int
}

// DefaultOptions returns a realtime 440 Hz tone at -6 dBFS.
func DefaultOptions() Options {
	return Options{ToneHz: 440, Amplitude: 0.5, Realtime: true}
}

// Engine is a clock-driven stream.
type Engine struct {
	cfg  audiocore.EngineConfig
	opts Options
	log  logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
	running atomic.Bool

	blocks atomic.Uint64
	peak   atomic.Uint32 // float32 bits of the last output block peak
}

// New returns an engine for cfg.
func New(cfg audiocore.EngineConfig, opts Options, log logger.Logger) *Engine {
	return &Engine{
		cfg:  cfg.WithDefaults(),
		opts: opts,
		log:  log.Module(Name),
		done: make(chan struct{}),
	}
}

// Name implements audiocore.Engine.
func (e *Engine) Name() string { return Name }

// SampleRate returns the configured rate.
func (e *Engine) SampleRate() int { return e.cfg.SampleRate }

// Done is closed once the stream has stopped.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Blocks returns the number of callbacks made.
func (e *Engine) Blocks() uint64 { return e.blocks.Load() }

// OutputPeak returns the absolute peak of the most recent output block.
func (e *Engine) OutputPeak() float32 { return math.Float32frombits(e.peak.Load()) }

// Start launches the clock goroutine.
func (e *Engine) Start(ctx context.Context, cb audiocore.Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running.Load() {
		return audiocore.ErrEngineRunning
	}
	e.running.Store(true)

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Go(func() {
		e.run(runCtx, cb)
		go func() { _ = e.Stop() }()
	})

	e.log.Info("headless stream started",
		logger.Int("sample_rate", e.cfg.SampleRate),
		logger.Int("buffer_frames", e.cfg.BufferFrames),
		logger.Float64("tone_hz", e.opts.ToneHz),
		logger.Bool("realtime", e.opts.Realtime))
	return nil
}

func (e *Engine) run(ctx context.Context, cb audiocore.Callback) {
	frames := e.cfg.BufferFrames
	var in []float32
	if e.cfg.InputChannels > 0 {
		in = make([]float32, frames*e.cfg.InputChannels)
	}
	out := make([]float32, frames*e.cfg.OutputChannels)

	var ticker *time.Ticker
	if e.opts.Realtime {
		period := time.Duration(frames) * time.Second / time.Duration(e.cfg.SampleRate)
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}

	phase := 0.0
	step := 2 * math.Pi * e.opts.ToneHz / float64(e.cfg.SampleRate)
	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return
		}

		phase = e.fillTone(in, phase, step)
		code := cb(out, in, frames)
		n := e.blocks.Add(1)
		e.peak.Store(math.Float32bits(peakOf(out)))

		if code != audiocore.Continue {
			e.log.Info("headless stream finished", logger.String("code", code.String()))
			return
		}
		if e.opts.MaxBlocks > 0 && n >= uint64(e.opts.MaxBlocks) {
			return
		}
	}
}

func (e *Engine) fillTone(in []float32, phase, step float64) float64 {
	channels := e.cfg.InputChannels
	if channels == 0 {
		return phase
	}
	for i := 0; i < len(in); i += channels {
		s := e.opts.Amplitude * float32(math.Sin(phase))
		for c := range channels {
			in[i+c] = s
		}
		phase += step
	}
	return math.Mod(phase, 2*math.Pi)
}

func peakOf(buf []float32) float32 {
	var p float32
	for _, s := range buf {
		p = max(p, float32(math.Abs(float64(s))))
	}
	return p
}

// Stop ends the stream and waits for the clock goroutine.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running.Swap(false) {
		e.mu.Unlock()
		return nil
	}
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()
	close(e.done)
	return nil
}
