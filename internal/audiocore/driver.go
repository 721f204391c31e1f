package audiocore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tphakala/rtsync/internal/capture"
	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/params"
)

// CaptureSource selects which signal a capture tap records.
type CaptureSource int

const (
	// CaptureOutput records the processed output.
	CaptureOutput CaptureSource = iota
	// CaptureInput records the raw input.
	CaptureInput
)

// CaptureTap connects a capture publisher to the driver.
type CaptureTap struct {
	Publisher *capture.Publisher
	Source    CaptureSource
}

// Observer receives per-block notifications on the audio thread. Methods
// must not block or allocate.
type Observer interface {
	BlockProcessed(frames int, elapsed time.Duration, muted bool)
	ProcessorFault()
}

// DriverConfig configures a Driver.
type DriverConfig struct {
	Store          *params.Store
	Processor      Processor
	InputChannels  int
	OutputChannels int
	// MaxFrames is the largest block handed to the Processor. Longer device
	// periods are split.
	MaxFrames int
	// MuteParam names the parameter that silences output when on. Ignored
	// unless HasMute is set.
	MuteParam params.ID
	HasMute   bool
	Captures  []CaptureTap
	Observer  Observer
}

// Stats is a point-in-time copy of driver counters.
type Stats struct {
	Blocks      uint64
	Frames      uint64
	MutedBlocks uint64
	Faults      uint64
	LastBlock   time.Duration
}

type tap struct {
	pub     *capture.Publisher
	ring    *capture.Ring
	source  CaptureSource
	cleared bool
}

// Driver is the per-block audio callback.
type Driver struct {
	store    *params.Store
	proc     Processor
	in, out  *Buffer
	mute     *params.AudioParameter
	taps     []tap
	observer Observer

	inChannels  int
	outChannels int

	closed   atomic.Bool
	inFlight atomic.Int32

	blocks    atomic.Uint64
	frames    atomic.Uint64
	muted     atomic.Uint64
	faults    atomic.Uint64
	lastBlock atomic.Int64
}

// NewDriver validates cfg and allocates every buffer the audio thread will
// use.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	if cfg.Processor == nil {
		return nil, ErrNoProcessor
	}
	if cfg.InputChannels < 0 || cfg.InputChannels > MaxChannels ||
		cfg.OutputChannels <= 0 || cfg.OutputChannels > MaxChannels {
		return nil, ErrInvalidChannels
	}
	if cfg.MaxFrames <= 0 {
		return nil, ErrInvalidBlockSize
	}

	// the processor always gets an input buffer, silent for output-only streams
	in, err := NewBuffer(max(cfg.InputChannels, 1), cfg.MaxFrames)
	if err != nil {
		return nil, err
	}
	out, err := NewBuffer(cfg.OutputChannels, cfg.MaxFrames)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		store:       cfg.Store,
		proc:        cfg.Processor,
		in:          in,
		out:         out,
		observer:    cfg.Observer,
		inChannels:  cfg.InputChannels,
		outChannels: cfg.OutputChannels,
	}

	if cfg.HasMute {
		p, err := cfg.Store.Parameter(cfg.MuteParam)
		if err != nil {
			return nil, errors.New(err).
				Component(ComponentAudioCore).
				Category(errors.CategoryConfiguration).
				Context("mute_param", int(cfg.MuteParam)).
				Build()
		}
		d.mute = p
	}

	for _, c := range cfg.Captures {
		if c.Publisher == nil {
			return nil, errors.Newf("capture tap without publisher").
				Component(ComponentAudioCore).
				Category(errors.CategoryValidation).
				Build()
		}
		d.taps = append(d.taps, tap{pub: c.Publisher, ring: c.Publisher.Ring(), source: c.Source})
	}

	return d, nil
}

// InputChannels returns the device input channel count.
func (d *Driver) InputChannels() int { return d.inChannels }

// OutputChannels returns the device output channel count.
func (d *Driver) OutputChannels() int { return d.outChannels }

// MaxFrames returns the largest block handed to the Processor.
func (d *Driver) MaxFrames() int { return d.out.MaxFrames() }

// Capture returns the publisher of the named capture tap.
func (d *Driver) Capture(name string) (*capture.Publisher, bool) {
	for _, t := range d.taps {
		if t.pub.Name() == name {
			return t.pub, true
		}
	}
	return nil, false
}

// Callback returns d.Process as an engine callback.
func (d *Driver) Callback() Callback { return d.Process }

// Process renders frames of interleaved audio from in into out. in may be
// nil. Audio thread only.
func (d *Driver) Process(out, in []float32, frames int) Code {
	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	if d.closed.Load() {
		clear(out)
		return Abort
	}

	maxFrames := d.out.MaxFrames()
	for off := 0; off < frames; off += maxFrames {
		n := min(maxFrames, frames-off)

		var inBlock []float32
		if in != nil && d.inChannels > 0 {
			inBlock = in[min(off*d.inChannels, len(in)):]
		}
		outBlock := out[min(off*d.outChannels, len(out)):]

		if code := d.block(outBlock, inBlock, n); code != Continue {
			clear(out[min((off+n)*d.outChannels, len(out)):])
			return code
		}
	}
	return Continue
}

func (d *Driver) block(out, in []float32, n int) Code {
	start := time.Now()

	// receive input
	_ = d.in.SetFrames(n)
	_ = d.out.SetFrames(n)
	d.in.Deinterleave(in, d.inChannels)

	// consume parameter updates, muted or not
	d.store.UpdateAll()

	muted := d.mute != nil && params.IsOn(d.mute.Descriptor(), d.mute.Value())
	code := Continue
	if muted {
		d.out.Clear()
	} else {
		code = d.run(n)
	}

	for i := range d.taps {
		t := &d.taps[i]
		switch {
		case muted:
			if !t.cleared {
				t.ring.Clear()
				t.cleared = true
			}
			t.ring.WriteSilence(n)
		case t.source == CaptureInput:
			t.cleared = false
			t.ring.Write(d.in.Slices(), n)
		default:
			t.cleared = false
			t.ring.Write(d.out.Slices(), n)
		}
		t.pub.Publish()
	}

	d.out.Interleave(out)

	elapsed := time.Since(start)
	d.blocks.Add(1)
	d.frames.Add(uint64(n))
	if muted {
		d.muted.Add(1)
	}
	d.lastBlock.Store(int64(elapsed))
	if d.observer != nil {
		d.observer.BlockProcessed(n, elapsed, muted)
	}
	return code
}

// run calls the Processor and turns a panic into a silent block.
func (d *Driver) run(n int) (code Code) {
	defer func() {
		if r := recover(); r != nil {
			d.out.Clear()
			d.faults.Add(1)
			if d.observer != nil {
				d.observer.ProcessorFault()
			}
			code = Continue
		}
	}()
	return d.proc.Process(d.in, d.out, n)
}

// Stats returns the current counters. Safe from any goroutine.
func (d *Driver) Stats() Stats {
	return Stats{
		Blocks:      d.blocks.Load(),
		Frames:      d.frames.Load(),
		MutedBlocks: d.muted.Load(),
		Faults:      d.faults.Load(),
		LastBlock:   time.Duration(d.lastBlock.Load()),
	}
}

// Close makes every later Process call return Abort with silence and waits
// for an in-flight call to finish, so the store and capture rings can be
// released safely.
func (d *Driver) Close(ctx context.Context) error {
	d.closed.Store(true)
	const poll = 100 * time.Microsecond
	start := time.Now()
	for d.inFlight.Load() != 0 {
		select {
		case <-ctx.Done():
			return errors.New(ctx.Err()).
				Component(ComponentAudioCore).
				Category(errors.CategoryTimeout).
				Timing("driver_close", time.Since(start)).
				Context("in_flight", d.inFlight.Load()).
				Build()
		case <-time.After(poll):
		}
	}
	return nil
}
