package ui

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/tphakala/rtsync/internal/capture"
	"github.com/tphakala/rtsync/internal/params"
)

// Drag resolution of knobs and sliders, in steps across the full range.
const (
	coarseSteps = 200
	fineSteps   = 1000
)

const labelWidth = 8

// Knob is a rotary control bound to one parameter.
type Knob struct {
	Param params.ID
}

// Step returns the value change of one key press.
func Step(d params.Descriptor, fine bool) float32 {
	if fine {
		return d.Range() / fineSteps
	}
	return d.Range() / coarseSteps
}

// position maps a value to [0, 1] within the parameter range.
func position(d params.Descriptor, v float32) float64 {
	if d.Range() == 0 {
		return 0
	}
	return float64((d.Clamp(v) - d.Min()) / d.Range())
}

// Render draws the knob as a filled arc.
func (k Knob) Render(p params.GuiParameter, width int) string {
	d := p.Descriptor()
	arc := max(width-labelWidth-12, 4)
	filled := int(math.Round(position(d, p.Value()) * float64(arc)))
	return fmt.Sprintf("%-*s(%s%s) %7.3f", labelWidth, d.Name(),
		strings.Repeat("@", filled), strings.Repeat(".", arc-filled), p.Value())
}

// Slider is a linear control bound to one parameter.
type Slider struct {
	Param params.ID
}

// Render draws the slider track with a handle at the current value.
func (s Slider) Render(p params.GuiParameter, width int) string {
	d := p.Descriptor()
	track := max(width-labelWidth-12, 4)
	handle := min(int(position(d, p.Value())*float64(track)), track-1)
	bar := []byte(strings.Repeat("-", track))
	bar[handle] = '|'
	return fmt.Sprintf("%-*s[%s] %7.3f", labelWidth, d.Name(), bar, p.Value())
}

// ToggleButton is an on/off control; a value in the upper half of the range
// is on.
type ToggleButton struct {
	Param params.ID
}

// Render draws the button state.
func (b ToggleButton) Render(p params.GuiParameter, _ int) string {
	state := "[ off ]"
	if params.IsOn(p.Descriptor(), p.Value()) {
		state = "[ ON  ]"
	}
	return fmt.Sprintf("%-*s%s", labelWidth, p.Descriptor().Name(), state)
}

// VolumeBar renders a peak level in dBFS between floor and 0.
func VolumeBar(label string, peak, floor float32, width int) string {
	db := capture.PeakDB(peak, floor)
	bar := max(width-labelWidth-14, 4)
	filled := int(math.Round(float64((db - floor) / -floor * float32(bar))))
	filled = min(max(filled, 0), bar)
	return fmt.Sprintf("%-*s|%s%s| %6.1f dB", labelWidth, label,
		strings.Repeat("#", filled), strings.Repeat(" ", bar-filled), db)
}

// Oscilloscope plots up to two channels of a view with y in [-1, 1].
// Channel 0 is drawn with '*', channel 1 with 'o'.
func Oscilloscope(v capture.View, width, height int) []string {
	width, height = max(width, 2), max(height, 3)
	grid := make([][]byte, height)
	mid := (height - 1) / 2
	for r := range grid {
		fill := byte(' ')
		if r == mid {
			fill = '-'
		}
		grid[r] = []byte(strings.Repeat(string(fill), width))
	}

	frames := v.Frames()
	if frames > 0 {
		marks := []byte{'*', 'o'}
		for c := range min(v.Channels(), len(marks)) {
			for x := range width {
				s := v.Sample(c, x*frames/width)
				s = min(max(s, -1), 1)
				row := int(math.Round(float64(1-s) / 2 * float64(height-1)))
				grid[row][x] = marks[c]
			}
		}
	}

	lines := make([]string, height)
	for r, row := range grid {
		lines[r] = string(row)
	}
	return lines
}

// Spectrum draws log-frequency magnitude bars of one capture channel. It
// keeps its FFT plan and buffers between frames.
type Spectrum struct {
	size   int
	fft    *fourier.FFT
	window []float64
	tail   []float32
	seq    []float64
	coeffs []complex128
	mags   []float64
}

// NewSpectrum prepares an FFT of size points, rounded down to a power of
// two and at least 64.
func NewSpectrum(size int) *Spectrum {
	n := 64
	for n*2 <= size {
		n *= 2
	}
	s := &Spectrum{
		size:   n,
		fft:    fourier.NewFFT(n),
		window: make([]float64, n),
		tail:   make([]float32, n),
		seq:    make([]float64, n),
		coeffs: make([]complex128, n/2+1),
	}
	for i := range n {
		s.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return s
}

// Size returns the FFT length.
func (s *Spectrum) Size() int { return s.size }

// Magnitudes returns the dBFS magnitude of each bin of the newest frames of
// channel ch, clamped to floor. The slice is reused by the next call.
func (s *Spectrum) Magnitudes(v capture.View, ch int, floor float64) []float64 {
	clear(s.tail)
	n := v.Tail(ch, s.tail)
	// right-align so a short capture keeps the newest frames at the end
	offset := s.size - n
	var gain float64
	for i := range s.size {
		var x float64
		if i >= offset {
			x = float64(s.tail[i-offset])
		}
		s.seq[i] = x * s.window[i]
		gain += s.window[i]
	}
	s.coeffs = s.fft.Coefficients(s.coeffs, s.seq)

	s.mags = s.mags[:0]
	for _, c := range s.coeffs {
		amp := 2 * math.Hypot(real(c), imag(c)) / gain
		db := floor
		if amp > 0 {
			db = max(20*math.Log10(amp), floor)
		}
		s.mags = append(s.mags, min(db, 0))
	}
	return s.mags
}

// Render draws width bars of height rows. Bins are grouped on a log
// frequency axis and each bar shows its loudest bin.
func (s *Spectrum) Render(v capture.View, ch, width, height int, floor float64) []string {
	width, height = max(width, 1), max(height, 1)
	mags := s.Magnitudes(v, ch, floor)
	bins := len(mags) - 1

	levels := make([]int, width)
	for x := range width {
		lo := logBin(x, width, bins)
		hi := max(logBin(x+1, width, bins), lo+1)
		peak := floor
		for b := lo; b < hi && b <= bins; b++ {
			peak = max(peak, mags[b])
		}
		levels[x] = int(math.Round((peak - floor) / -floor * float64(height)))
	}

	lines := make([]string, height)
	row := make([]byte, width)
	for r := range height {
		threshold := height - r
		for x, lvl := range levels {
			row[x] = ' '
			if lvl >= threshold {
				row[x] = '|'
			}
		}
		lines[r] = string(row)
	}
	return lines
}

// logBin maps column x of width to an FFT bin in [1, bins] on a log scale.
func logBin(x, width, bins int) int {
	if bins < 1 {
		return 0
	}
	f := math.Pow(float64(bins), float64(x)/float64(width))
	return min(max(int(f), 1), bins)
}
