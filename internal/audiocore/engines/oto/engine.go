// Package oto drives the audio callback from an oto playback stream. oto
// has no capture side, so the callback always receives silent input.
package oto

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/tphakala/rtsync/internal/audiocore"
	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/logger"
)

// Name is the backend name used in configuration.
const Name = "oto"

const (
	bytesPerSample = 4
	watchInterval  = 10 * time.Millisecond
)

// oto allows one context per process.
var (
	contextOnce sync.Once
	sharedCtx   *oto.Context
	contextErr  error
	contextRate int
)

func otoContext(sampleRate, channels, bufferFrames int) (*oto.Context, error) {
	contextOnce.Do(func() {
		opts := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(bufferFrames) * time.Second / time.Duration(sampleRate),
		}
		var ready chan struct{}
		sharedCtx, ready, contextErr = oto.NewContext(opts)
		if contextErr == nil {
			<-ready
			contextRate = sampleRate
		}
	})
	if contextErr != nil {
		return nil, errors.New(contextErr).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioDevice).
			Context("operation", "oto_context").
			Build()
	}
	return sharedCtx, nil
}

// Engine is an output-only stream.
type Engine struct {
	cfg audiocore.EngineConfig
	log logger.Logger

	mu      sync.Mutex
	player  *oto.Player
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	cb    audiocore.Callback
	latch audiocore.StopLatch
	eof   atomic.Bool
}

// New returns an engine for cfg. Input channels are ignored.
func New(cfg audiocore.EngineConfig, log logger.Logger) *Engine {
	cfg = cfg.WithDefaults()
	cfg.InputChannels = 0
	return &Engine{cfg: cfg, log: log.Module(Name), done: make(chan struct{})}
}

// Name implements audiocore.Engine.
func (e *Engine) Name() string { return Name }

// SampleRate returns the stream rate.
func (e *Engine) SampleRate() int {
	if contextRate != 0 {
		return contextRate
	}
	return e.cfg.SampleRate
}

// Done is closed once the stream has stopped.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Start creates the oto player and begins pulling audio from cb.
func (e *Engine) Start(ctx context.Context, cb audiocore.Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return audiocore.ErrEngineRunning
	}

	octx, err := otoContext(e.cfg.SampleRate, e.cfg.OutputChannels, e.cfg.BufferFrames)
	if err != nil {
		return err
	}

	e.cb = cb
	e.latch.Reset()
	e.eof.Store(false)

	player := octx.NewPlayer(e)
	player.SetBufferSize(e.cfg.BufferFrames * e.cfg.OutputChannels * bytesPerSample)
	player.Play()
	e.player = player
	e.running.Store(true)

	watchCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Go(func() { e.watch(watchCtx, player) })

	e.log.Info("audio stream started",
		logger.Int("sample_rate", e.SampleRate()),
		logger.Int("buffer_frames", e.cfg.BufferFrames),
		logger.Int("output_channels", e.cfg.OutputChannels))
	return nil
}

// Read is the oto pull callback. It runs on oto's mixing goroutine.
func (e *Engine) Read(p []byte) (int, error) {
	if e.eof.Load() {
		return 0, io.EOF
	}
	channels := e.cfg.OutputChannels
	frames := len(p) / (bytesPerSample * channels)
	if frames == 0 {
		return 0, nil
	}
	n := frames * channels * bytesPerSample
	out := audiocore.Float32s(p[:n])

	code := e.cb(out, nil, frames)
	e.latch.Observe(code)
	switch code {
	case audiocore.Continue:
		return n, nil
	case audiocore.Drain:
		// deliver this buffer; the next Read ends the stream
		e.eof.Store(true)
		return n, nil
	default:
		e.eof.Store(true)
		clear(p[:n])
		return 0, io.EOF
	}
}

func (e *Engine) watch(ctx context.Context, player *oto.Player) {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			go func() { _ = e.Stop() }()
			return
		case <-ticker.C:
			if e.latch.Stopping() && !player.IsPlaying() {
				e.log.Info("audio stream finished", logger.String("code", e.latch.Code().String()))
				go func() { _ = e.Stop() }()
				return
			}
		}
	}
}

// Stop closes the player. oto stops calling Read once Close returns.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running.Swap(false) {
		e.mu.Unlock()
		return nil
	}
	e.cancel()
	e.eof.Store(true)
	player := e.player
	e.player = nil
	e.mu.Unlock()

	e.wg.Wait()
	err := player.Close()
	close(e.done)
	if err != nil {
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioDevice).
			Context("operation", "close_player").
			Build()
	}
	return nil
}
