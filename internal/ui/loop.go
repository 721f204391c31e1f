package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tphakala/rtsync/internal/capture"
	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/logger"
	"github.com/tphakala/rtsync/internal/params"
)

// ControlKind selects the widget that edits a parameter.
type ControlKind int

const (
	KnobControl ControlKind = iota
	SliderControl
	ToggleControl
)

// Control binds a parameter to a widget.
type Control struct {
	Kind  ControlKind
	Param params.ID
}

// DisplayKind selects how a capture is drawn.
type DisplayKind int

const (
	OscilloscopeDisplay DisplayKind = iota
	VolumeDisplay
	SpectrumDisplay
)

// Display binds a capture to a visualization.
type Display struct {
	Kind    DisplayKind
	Capture string
	// Rows is the plot height; meters use one row per channel.
	Rows int
}

// Layout describes one application screen.
type Layout struct {
	Title    string
	Controls []Control
	Displays []Display
}

// Config configures a Loop.
type Config struct {
	Mirror   *params.Mirror
	Captures []*capture.Publisher
	Layout   Layout
	// RefreshRate is the number of frames drawn per second.
	RefreshRate int
	MeterFloor  float32
	// Status returns a one-line engine summary for the header. Optional.
	Status func() string
	// Size returns the terminal size. Optional, 80x24 when nil.
	Size   func() (int, int)
	Input  io.Reader
	Output io.Writer
	Logger logger.Logger
}

// Loop is the non-realtime rendering loop. It reads capture views through
// their publishers and turns key presses into Mirror changes.
type Loop struct {
	cfg      Config
	log      logger.Logger
	focus    int
	captures map[string]*capture.Publisher
	spectrum map[string]*Spectrum
	frame    strings.Builder
}

// NewLoop validates cfg.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Mirror == nil || cfg.Output == nil {
		return nil, errors.Newf("ui loop needs a mirror and an output").
			Component("ui").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = 30
	}
	if cfg.MeterFloor >= 0 {
		cfg.MeterFloor = -72
	}
	if cfg.Size == nil {
		cfg.Size = func() (int, int) { return 80, 24 }
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global().Module("ui")
	}

	l := &Loop{
		cfg:      cfg,
		log:      cfg.Logger,
		captures: make(map[string]*capture.Publisher, len(cfg.Captures)),
		spectrum: make(map[string]*Spectrum),
	}
	for _, p := range cfg.Captures {
		l.captures[p.Name()] = p
	}
	for _, d := range cfg.Layout.Displays {
		p, ok := l.captures[d.Capture]
		if !ok {
			return nil, errors.Newf("display references unknown capture %q", d.Capture).
				Component("ui").
				Category(errors.CategoryNotFound).
				Build()
		}
		if d.Kind == SpectrumDisplay {
			l.spectrum[d.Capture] = NewSpectrum(p.Ring().Capacity())
		}
	}
	for _, c := range cfg.Layout.Controls {
		if _, err := cfg.Mirror.Get(c.Param); err != nil {
			return nil, errors.New(err).
				Component("ui").
				Category(errors.CategoryNotFound).
				Context("param", int(c.Param)).
				Build()
		}
	}
	return l, nil
}

// Run draws frames at the refresh rate until ctx is done or the user quits.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := make(chan Key, 16)
	if l.cfg.Input != nil {
		go l.readKeys(ctx, keys)
	}

	ticker := time.NewTicker(time.Second / time.Duration(l.cfg.RefreshRate))
	defer ticker.Stop()

	l.draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case k := <-keys:
			if l.HandleKey(k) {
				l.log.Info("quit requested")
				return nil
			}
			l.draw()
		case <-ticker.C:
			l.draw()
		}
	}
}

// readKeys feeds decoded keys until the input ends. A blocking terminal
// read cannot be interrupted, so on shutdown the goroutine exits on the next
// key or at process exit.
func (l *Loop) readKeys(ctx context.Context, keys chan<- Key) {
	buf := make([]byte, 64)
	var decoded []Key
	for {
		n, err := l.cfg.Input.Read(buf)
		decoded = decodeKeys(buf[:n], decoded[:0])
		for _, k := range decoded {
			select {
			case keys <- k:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// HandleKey applies k to the focused control and reports whether the user
// asked to quit.
func (l *Loop) HandleKey(k Key) bool {
	controls := l.cfg.Layout.Controls
	if k == KeyQuit {
		return true
	}
	if len(controls) == 0 {
		return false
	}

	switch k {
	case KeyUp:
		l.focus = (l.focus + len(controls) - 1) % len(controls)
		return false
	case KeyDown:
		l.focus = (l.focus + 1) % len(controls)
		return false
	}

	c := controls[l.focus]
	p, err := l.cfg.Mirror.Get(c.Param)
	if err != nil {
		return false
	}
	d := p.Descriptor()

	switch {
	case k == KeyReset:
		_, err = l.cfg.Mirror.Reset(c.Param)
	case c.Kind == ToggleControl && (k == KeyToggle || k == KeyLeft || k == KeyRight):
		_, err = l.cfg.Mirror.Toggle(c.Param)
	case k == KeyLeft:
		_, err = l.cfg.Mirror.Adjust(c.Param, -Step(d, false))
	case k == KeyRight:
		_, err = l.cfg.Mirror.Adjust(c.Param, Step(d, false))
	case k == KeyFineLeft:
		_, err = l.cfg.Mirror.Adjust(c.Param, -Step(d, true))
	case k == KeyFineRight:
		_, err = l.cfg.Mirror.Adjust(c.Param, Step(d, true))
	}
	if err != nil {
		l.log.Warn("parameter change rejected",
			logger.String("param", d.Name()),
			logger.Error(err))
	}
	return false
}

// Focus returns the index of the focused control.
func (l *Loop) Focus() int { return l.focus }

func (l *Loop) draw() {
	width, height := l.cfg.Size()
	lines := l.Frame(width, height)

	l.frame.Reset()
	// cursor home, then overwrite; clearing to end of line avoids flicker
	l.frame.WriteString("\x1b[H")
	for _, line := range lines {
		l.frame.WriteString(line)
		l.frame.WriteString("\x1b[K\r\n")
	}
	l.frame.WriteString("\x1b[J")
	if _, err := io.WriteString(l.cfg.Output, l.frame.String()); err != nil {
		l.log.Debug("frame write failed", logger.Error(err))
	}
}

// Frame renders the screen as lines of at most width columns.
func (l *Loop) Frame(width, height int) []string {
	width = max(width, 20)
	lines := make([]string, 0, height)

	title := l.cfg.Layout.Title
	if l.cfg.Status != nil {
		title = fmt.Sprintf("%s  %s", title, l.cfg.Status())
	}
	lines = append(lines, title, "")

	for i, c := range l.cfg.Layout.Controls {
		p, err := l.cfg.Mirror.Get(c.Param)
		if err != nil {
			continue
		}
		marker := "  "
		if i == l.focus {
			marker = "> "
		}
		var body string
		switch c.Kind {
		case KnobControl:
			body = Knob{Param: c.Param}.Render(p, width-2)
		case SliderControl:
			body = Slider{Param: c.Param}.Render(p, width-2)
		case ToggleControl:
			body = ToggleButton{Param: c.Param}.Render(p, width-2)
		}
		lines = append(lines, marker+body)
	}

	for _, d := range l.cfg.Layout.Displays {
		pub := l.captures[d.Capture]
		lines = append(lines, "", fmt.Sprintf("%s (gen %d)", d.Capture, pub.Generation()))
		pub.Read(func(v capture.View) {
			lines = append(lines, l.renderDisplay(d, v, width)...)
		})
	}

	lines = append(lines, "", "up/down select  left/right adjust  [ ] fine  space toggle  r reset  q quit")
	for i, line := range lines {
		if len(line) > width {
			lines[i] = line[:width]
		}
	}
	return lines
}

func (l *Loop) renderDisplay(d Display, v capture.View, width int) []string {
	rows := d.Rows
	switch d.Kind {
	case OscilloscopeDisplay:
		if rows <= 0 {
			rows = 11
		}
		return Oscilloscope(v, width, rows)
	case SpectrumDisplay:
		if rows <= 0 {
			rows = 8
		}
		return l.spectrum[d.Capture].Render(v, 0, width, rows, float64(l.cfg.MeterFloor))
	default:
		lines := make([]string, 0, v.Channels())
		for c := range v.Channels() {
			lines = append(lines, VolumeBar(fmt.Sprintf("ch%d", c+1), v.Peak(c), l.cfg.MeterFloor, width))
		}
		return lines
	}
}
