// Package scope is the pass-through processor behind the oscilloscope
// application. It has no parameters.
package scope

import "github.com/tphakala/rtsync/internal/audiocore"

// Processor copies input to output channel by channel.
type Processor struct{}

// Process implements audiocore.Processor.
func (Processor) Process(in, out *audiocore.Buffer, frames int) audiocore.Code {
	for c := range out.Channels() {
		dst := out.Channel(c)[:frames]
		if c < in.Channels() {
			copy(dst, in.Channel(c)[:frames])
			continue
		}
		clear(dst)
	}
	return audiocore.Continue
}
