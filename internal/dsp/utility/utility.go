// Package utility is the gain, pan and mute processor.
//
// Input channel 0 feeds both output channels: out[c] = in[0] * pan[c] * gain.
package utility

import (
	"github.com/tphakala/simd/f32"

	"github.com/tphakala/rtsync/internal/audiocore"
	"github.com/tphakala/rtsync/internal/params"
)

// Parameter ids.
const (
	GainID params.ID = 1
	PanID  params.ID = 2
	MuteID params.ID = 3
)

var (
	Gain = params.MustDescriptor(GainID, "Gain", 0, 2, 1)
	Pan  = params.MustDescriptor(PanID, "Pan", -1, 1, 0)
	Mute = params.MustDescriptor(MuteID, "Mute", 0, 1, 0)
)

// Descriptors returns the parameters the processor needs, in id order.
func Descriptors() []params.Descriptor {
	return []params.Descriptor{Gain, Pan, Mute}
}

// PanAmounts returns the left and right multipliers for pan in [-1, 1].
// Panning towards one side attenuates the other; the near side stays at
// unity.
func PanAmounts(pan float32) (left, right float32) {
	if pan < 0 {
		return 1, 1 + pan
	}
	return 1 - pan, 1
}

// Processor applies gain and pan. It expects at least one input channel
// and two output channels; extra output channels are silent.
type Processor struct {
	gain, pan, mute *params.AudioParameter
}

// New resolves the utility parameters in store.
func New(store *params.Store) (*Processor, error) {
	gain, err := store.Parameter(GainID)
	if err != nil {
		return nil, err
	}
	pan, err := store.Parameter(PanID)
	if err != nil {
		return nil, err
	}
	mute, err := store.Parameter(MuteID)
	if err != nil {
		return nil, err
	}
	return &Processor{gain: gain, pan: pan, mute: mute}, nil
}

// Process implements audiocore.Processor. Values were brought up to date by
// the driver before the call.
func (p *Processor) Process(in, out *audiocore.Buffer, frames int) audiocore.Code {
	if params.IsOn(p.mute.Descriptor(), p.mute.Value()) {
		out.Clear()
		return audiocore.Continue
	}

	gain := p.gain.Value()
	left, right := PanAmounts(p.pan.Value())

	src := in.Channel(0)[:frames]
	f32.Scale(out.Channel(0)[:frames], src, left*gain)
	if out.Channels() > 1 {
		f32.Scale(out.Channel(1)[:frames], src, right*gain)
	}
	for c := 2; c < out.Channels(); c++ {
		clear(out.Channel(c))
	}
	return audiocore.Continue
}
