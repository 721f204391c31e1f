// Package app assembles one running application: the parameter store and
// mirror, the capture publishers, the audio driver and engine, and the
// control surfaces. Application state lives on a Context that is passed
// explicitly; there are no package-level singletons.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/rtsync/internal/audiocore"
	"github.com/tphakala/rtsync/internal/audiocore/engines"
	"github.com/tphakala/rtsync/internal/audiocore/engines/headless"
	"github.com/tphakala/rtsync/internal/capture"
	"github.com/tphakala/rtsync/internal/conf"
	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/httpserver"
	"github.com/tphakala/rtsync/internal/logger"
	"github.com/tphakala/rtsync/internal/mqtt"
	"github.com/tphakala/rtsync/internal/observability"
	"github.com/tphakala/rtsync/internal/params"
	"github.com/tphakala/rtsync/internal/ui"
)

const (
	closeTimeout   = 2 * time.Second
	statsInterval  = 10 * time.Second
	toneAmplitude  = 0.5
	componentName  = "app"
	sourceInputKey = "input"
)

// Options configures New.
type Options struct {
	Settings *conf.Settings
	Profile  Profile
	Logger   logger.Logger

	// Engine replaces the engine built from Settings.Audio.Backend.
	Engine audiocore.Engine

	// Terminal I/O for the UI loop. The UI runs only when Settings.UI.Enabled
	// is set and UIOutput is not nil.
	UIInput  io.Reader
	UIOutput io.Writer
	UISize   func() (int, int)
}

// Context owns every component of a running application.
type Context struct {
	InstanceID string
	Settings   *conf.Settings
	Profile    Profile

	Store    *params.Store
	Mirror   *params.Mirror
	Driver   *audiocore.Driver
	Engine   audiocore.Engine
	Captures []*capture.Publisher
	Metrics  *observability.Metrics

	base logger.Logger
	log  logger.Logger
	ui   *ui.Loop
	http *httpserver.Server
	mqtt *mqtt.Bridge

	closeOnce sync.Once
	closeErr  error
}

// New builds the application. Parameters are registered and the store is
// sealed before the driver exists, so the parameter set is fixed for the
// lifetime of the stream.
func New(opts Options) (*Context, error) {
	s := opts.Settings
	if s == nil {
		return nil, errors.Newf("application needs settings").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if opts.Profile.NewProcessor == nil {
		return nil, errors.Newf("application profile %q has no processor", opts.Profile.Name).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Global().Module(componentName)
	}

	c := &Context{
		InstanceID: uuid.NewString(),
		Settings:   s,
		Profile:    opts.Profile,
		base:       log,
		log:        log.With(logger.String("app", opts.Profile.Name)),
	}

	if s.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, errors.New(err).
				Component(componentName).
				Category(errors.CategorySystem).
				Build()
		}
		c.Metrics = m
	}

	if err := c.buildStore(); err != nil {
		return nil, err
	}
	if err := c.buildCaptures(); err != nil {
		return nil, err
	}
	if err := c.buildDriver(); err != nil {
		return nil, err
	}
	if err := c.buildEngine(opts.Engine); err != nil {
		return nil, err
	}
	if err := c.buildSurfaces(opts); err != nil {
		return nil, err
	}

	c.log.Info("application ready",
		logger.String("instance_id", c.InstanceID),
		logger.String("backend", c.Engine.Name()),
		logger.Int("parameters", c.Store.Len()),
		logger.Int("captures", len(c.Captures)))
	return c, nil
}

func (c *Context) buildStore() error {
	c.Store = params.NewStore(c.Settings.Params.ChannelSlots)
	if err := c.Store.AddAll(c.Profile.Descriptors...); err != nil {
		return err
	}
	if c.Metrics != nil {
		if err := c.Metrics.Params.WatchStore(c.Store); err != nil {
			return errors.New(err).
				Component(componentName).
				Category(errors.CategorySystem).
				Build()
		}
	}
	c.Store.Seal()
	c.Mirror = params.NewMirror(c.Store)
	return nil
}

func (c *Context) captureChannels() int {
	if c.Settings.Capture.Source == sourceInputKey {
		return c.Settings.Audio.InputChannels
	}
	return c.Settings.Audio.OutputChannels
}

func (c *Context) buildCaptures() error {
	channels := c.captureChannels()
	sizes := []struct {
		name   string
		frames int
	}{
		{ScopeCapture, c.Settings.Capture.ScopeFrames},
		{MeterCapture, c.Settings.Capture.MeterFrames},
	}
	for _, sz := range sizes {
		ring, err := capture.NewRing(channels, sz.frames)
		if err != nil {
			return err
		}
		pub := capture.NewPublisher(sz.name, ring)
		if c.Metrics != nil {
			if err := c.Metrics.Params.WatchCapture(pub); err != nil {
				return errors.New(err).
					Component(componentName).
					Category(errors.CategorySystem).
					Build()
			}
		}
		c.Captures = append(c.Captures, pub)
	}
	return nil
}

func (c *Context) buildDriver() error {
	proc, err := c.Profile.NewProcessor(c.Store)
	if err != nil {
		return err
	}

	source := audiocore.CaptureOutput
	if c.Settings.Capture.Source == sourceInputKey {
		source = audiocore.CaptureInput
	}
	taps := make([]audiocore.CaptureTap, 0, len(c.Captures))
	for _, p := range c.Captures {
		taps = append(taps, audiocore.CaptureTap{Publisher: p, Source: source})
	}

	cfg := audiocore.DriverConfig{
		Store:          c.Store,
		Processor:      proc,
		InputChannels:  c.Settings.Audio.InputChannels,
		OutputChannels: c.Settings.Audio.OutputChannels,
		MaxFrames:      c.Settings.Audio.MaxBlockFrames,
		MuteParam:      c.Profile.MuteParam,
		HasMute:        c.Profile.HasMute,
		Captures:       taps,
	}
	if c.Metrics != nil {
		cfg.Observer = c.Metrics.Audio
	}
	c.Driver, err = audiocore.NewDriver(cfg)
	return err
}

func (c *Context) buildEngine(override audiocore.Engine) error {
	if override != nil {
		c.Engine = override
		return nil
	}
	a := c.Settings.Audio
	cfg := audiocore.EngineConfig{
		Device:         a.Device,
		SampleRate:     a.SampleRate,
		BufferFrames:   a.BufferFrames,
		InputChannels:  a.InputChannels,
		OutputChannels: a.OutputChannels,
	}
	tone := headless.Options{ToneHz: a.ToneHz, Amplitude: toneAmplitude, Realtime: true}
	e, err := engines.New(a.Backend, cfg, tone, c.base.Module("audio"))
	if err != nil {
		return err
	}
	c.Engine = e
	return nil
}

func (c *Context) buildSurfaces(opts Options) error {
	s := c.Settings

	if s.UI.Enabled && opts.UIOutput != nil {
		loop, err := ui.NewLoop(ui.Config{
			Mirror:      c.Mirror,
			Captures:    c.Captures,
			Layout:      c.Profile.Layout,
			RefreshRate: s.UI.RefreshRate,
			MeterFloor:  float32(s.UI.MeterFloor),
			Status:      c.status,
			Size:        opts.UISize,
			Input:       opts.UIInput,
			Output:      opts.UIOutput,
			Logger:      c.base.Module("ui"),
		})
		if err != nil {
			return err
		}
		c.ui = loop
	}

	if s.HTTP.Enabled {
		httpOpts := []httpserver.ServerOption{
			httpserver.WithLogger(c.base.Module("http")),
			httpserver.WithCaptures(c.Captures...),
			httpserver.WithExport(s.Capture.ExportPath, c.Engine.SampleRate),
			httpserver.WithStats(c.Driver.Stats),
		}
		if c.Metrics != nil {
			httpOpts = append(httpOpts, httpserver.WithMetrics(c.Metrics))
		}
		srv, err := httpserver.New(s.HTTP.Listen, c.Mirror, c.Store, httpOpts...)
		if err != nil {
			return err
		}
		c.http = srv
	}

	if s.MQTT.Enabled {
		mqttOpts := []mqtt.Option{
			mqtt.WithLogger(c.base.Module("mqtt")),
			mqtt.WithCaptures(c.Captures...),
		}
		if c.Metrics != nil {
			mqttOpts = append(mqttOpts, mqtt.WithMetrics(c.Metrics.MQTT))
		}
		bridge, err := mqtt.NewBridge(mqtt.ConfigFromSettings(s), c.Mirror, mqttOpts...)
		if err != nil {
			return err
		}
		c.mqtt = bridge
	}
	return nil
}

// status is the one-line UI header summary.
func (c *Context) status() string {
	st := c.Driver.Stats()
	return fmt.Sprintf("%s %d Hz  blocks %d  faults %d", c.Engine.Name(), c.Engine.SampleRate(), st.Blocks, st.Faults)
}

// Run starts the stream and the control surfaces and blocks until ctx is
// done, the user quits the UI or the stream stops. A device that cannot be
// opened is fatal and streaming never starts.
func (c *Context) Run(ctx context.Context) error {
	if err := c.Engine.Start(ctx, c.Driver.Callback()); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Context("backend", c.Engine.Name()).
			Build()
	}
	c.log.Info("audio stream started",
		logger.String("backend", c.Engine.Name()),
		logger.Int("sample_rate", c.Engine.SampleRate()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-c.Engine.Done():
			c.log.Info("audio stream ended")
			cancel()
		}
		return nil
	})

	g.Go(func() error {
		c.reportStats(gctx)
		return nil
	})

	if c.ui != nil {
		g.Go(func() error {
			defer cancel()
			return c.ui.Run(gctx)
		})
	}
	if c.http != nil {
		g.Go(func() error { return c.http.Run(gctx) })
	}
	if c.mqtt != nil {
		g.Go(func() error { return c.mqtt.Run(gctx) })
	}

	return g.Wait()
}

// reportStats logs driver counters from the non-realtime side. The audio
// thread itself never logs.
func (c *Context) reportStats(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	var last audiocore.Stats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := c.Driver.Stats()
			if st.Faults > last.Faults {
				c.log.Warn("processor faults recovered on the audio thread",
					logger.Uint64("faults", st.Faults-last.Faults))
			}
			c.log.Debug("audio stats",
				logger.Uint64("blocks", st.Blocks),
				logger.Uint64("frames", st.Frames),
				logger.Uint64("muted_blocks", st.MutedBlocks),
				logger.Duration("last_block", st.LastBlock))
			last = st
		}
	}
}

// Close stops the engine, which waits for the in-flight callback, then
// closes the driver so no later callback touches the store or the capture
// rings. Surfaces stop when the Run context ends.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		if err := c.Engine.Stop(); err != nil {
			errs = append(errs, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := c.Driver.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		st := c.Driver.Stats()
		c.log.Info("application stopped",
			logger.Uint64("blocks", st.Blocks),
			logger.Uint64("faults", st.Faults),
			logger.Uint64("announces", c.Store.Announces()))
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
