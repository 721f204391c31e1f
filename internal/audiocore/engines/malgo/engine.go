// Package malgo drives the audio callback from a miniaudio duplex or
// playback device.
package malgo

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/rtsync/internal/audiocore"
	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/logger"
)

const (
	// Name is the backend name used in configuration.
	Name = "malgo"

	watchInterval = 10 * time.Millisecond
	restartDelay  = 100 * time.Millisecond
)

// Engine is a miniaudio stream. It opens a duplex device when input
// channels are configured and a playback device otherwise.
type Engine struct {
	cfg audiocore.EngineConfig
	log logger.Logger

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	cb         audiocore.Callback
	latch      audiocore.StopLatch
	running    atomic.Bool
	sampleRate atomic.Int32
	stopped    chan struct{} // device stopped outside Stop
}

// New returns an engine for cfg. No device is opened until Start.
func New(cfg audiocore.EngineConfig, log logger.Logger) *Engine {
	cfg = cfg.WithDefaults()
	e := &Engine{cfg: cfg, log: log.Module(Name), done: make(chan struct{})}
	e.sampleRate.Store(int32(cfg.SampleRate))
	return e
}

// Name implements audiocore.Engine.
func (e *Engine) Name() string { return Name }

// SampleRate returns the rate the device actually runs at.
func (e *Engine) SampleRate() int { return int(e.sampleRate.Load()) }

// Done is closed once the stream has stopped.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Start opens the configured devices and starts streaming into cb.
func (e *Engine) Start(ctx context.Context, cb audiocore.Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return audiocore.ErrEngineRunning
	}

	mctx, err := initContext()
	if err != nil {
		return err
	}

	deviceType := malgo.Playback
	if e.cfg.InputChannels > 0 {
		deviceType = malgo.Duplex
	}
	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.SampleRate = uint32(e.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(e.cfg.BufferFrames)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(e.cfg.OutputChannels)
	deviceConfig.Alsa.NoMMap = 1

	playback, err := e.pick(mctx, malgo.Playback)
	if err != nil {
		e.release(mctx, nil)
		return err
	}
	deviceConfig.Playback.DeviceID = playback.raw.ID.Pointer()

	if deviceType == malgo.Duplex {
		capture, err := e.pick(mctx, malgo.Capture)
		if err != nil {
			e.release(mctx, nil)
			return err
		}
		deviceConfig.Capture.Format = malgo.FormatF32
		deviceConfig.Capture.Channels = uint32(e.cfg.InputChannels)
		deviceConfig.Capture.DeviceID = capture.raw.ID.Pointer()
	}

	e.cb = cb
	e.latch.Reset()
	e.stopped = make(chan struct{}, 1)

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: e.onData,
		Stop: e.onStop,
	})
	if err != nil {
		e.release(mctx, nil)
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioDevice).
			Context("device_name", playback.Name).
			Context("operation", "init_device").
			Build()
	}

	if err := device.Start(); err != nil {
		e.release(mctx, device)
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioDevice).
			Context("device_name", playback.Name).
			Context("operation", "start_device").
			Build()
	}

	e.ctx, e.device = mctx, device
	e.sampleRate.Store(int32(device.SampleRate()))
	e.running.Store(true)

	watchCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Go(func() { e.watch(watchCtx) })

	e.log.Info("audio stream started",
		logger.String("device", playback.Name),
		logger.Int("sample_rate", e.SampleRate()),
		logger.Int("buffer_frames", e.cfg.BufferFrames),
		logger.Int("input_channels", e.cfg.InputChannels),
		logger.Int("output_channels", e.cfg.OutputChannels))
	return nil
}

func (e *Engine) pick(mctx *malgo.AllocatedContext, kind malgo.DeviceType) (DeviceInfo, error) {
	devices, err := listDevices(mctx, kind)
	if err != nil {
		return DeviceInfo{}, err
	}
	return SelectDevice(devices, e.cfg.Device)
}

// onData runs on the audio thread.
func (e *Engine) onData(out, in []byte, frames uint32) {
	if e.latch.Stopping() {
		clear(out)
		return
	}
	code := e.cb(audiocore.Float32s(out), audiocore.Float32s(in), int(frames))
	if code == audiocore.Abort {
		clear(out)
	}
	e.latch.Observe(code)
}

func (e *Engine) onStop() {
	select {
	case e.stopped <- struct{}{}:
	default:
	}
}

// watch stops the stream when the callback asks for it, the context ends
// or the device disappears.
func (e *Engine) watch(ctx context.Context) {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			go func() { _ = e.Stop() }()
			return
		case <-e.stopped:
			if !e.running.Load() || e.latch.Stopping() {
				continue
			}
			e.log.Warn("audio device stopped unexpectedly, restarting")
			time.Sleep(restartDelay)
			if err := e.restart(); err != nil {
				e.log.Error("failed to restart audio device", logger.Error(err))
				go func() { _ = e.Stop() }()
				return
			}
		case <-ticker.C:
			switch e.latch.Code() {
			case audiocore.Continue:
				continue
			case audiocore.Drain:
				// let the last buffer reach the device
				time.Sleep(e.period())
			}
			e.log.Info("audio stream finished", logger.String("code", e.latch.Code().String()))
			go func() { _ = e.Stop() }()
			return
		}
	}
}

func (e *Engine) restart() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.device == nil {
		return nil
	}
	return e.device.Start()
}

func (e *Engine) period() time.Duration {
	return time.Duration(e.cfg.BufferFrames) * time.Second / time.Duration(max(e.SampleRate(), 1))
}

// Stop halts the device. miniaudio returns from device stop only after the
// data callback has returned, so no callback runs once Stop returns.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running.Swap(false) {
		e.mu.Unlock()
		return nil
	}
	e.cancel()
	device, mctx := e.device, e.ctx
	e.device, e.ctx = nil, nil
	e.mu.Unlock()

	var err error
	if stopErr := device.Stop(); stopErr != nil {
		err = errors.New(stopErr).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioDevice).
			Context("operation", "stop_device").
			Build()
	}
	e.release(mctx, device)
	e.wg.Wait()
	close(e.done)
	return err
}

func (e *Engine) release(mctx *malgo.AllocatedContext, device *malgo.Device) {
	if device != nil {
		device.Uninit()
	}
	if mctx != nil {
		_ = mctx.Uninit()
		mctx.Free()
	}
}
