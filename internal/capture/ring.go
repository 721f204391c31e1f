// Package capture records audio-thread signal data and publishes it to
// non-realtime readers.
//
// A Ring is written only by the audio thread. After each block the audio
// thread calls Publisher.Publish, which brings a private snapshot up to date
// and hands it over with one atomic swap (a triple buffer). Readers only ever
// see a snapshot the writer no longer touches, so a View always shows a
// fully written block.
package capture

import "github.com/tphakala/rtsync/internal/errors"

// ComponentCapture is the error component name for this package.
const ComponentCapture = "capture"

// Ring is a fixed-capacity multichannel sample buffer with a monotonically
// advancing write cursor. Samples are stored channel-major: channel c
// occupies data[c*capacity : (c+1)*capacity].
type Ring struct {
	channels int
	capacity int
	data     []float32
	written  uint64 // total frames ever written
	clears   uint64 // incremented by Clear
}

// NewRing allocates a ring of channels x capacity samples.
func NewRing(channels, capacity int) (*Ring, error) {
	if channels <= 0 || capacity <= 0 {
		return nil, errors.Newf("invalid capture ring size %dx%d", channels, capacity).
			Component(ComponentCapture).
			Category(errors.CategoryValidation).
			Build()
	}
	return &Ring{
		channels: channels,
		capacity: capacity,
		data:     make([]float32, channels*capacity),
	}, nil
}

// Channels returns the channel count.
func (r *Ring) Channels() int { return r.channels }

// Capacity returns the number of frames held.
func (r *Ring) Capacity() int { return r.capacity }

// Written returns the total number of frames written since creation.
func (r *Ring) Written() uint64 { return r.written }

// Cursor returns the position the next frame will be written to.
func (r *Ring) Cursor() int { return int(r.written % uint64(r.capacity)) }

// Write appends frames from separate-channel source slices. Source channels
// beyond len(src) are written as silence; extra source channels are ignored.
// Only the newest Capacity frames of a larger block are kept.
func (r *Ring) Write(src [][]float32, frames int) {
	if frames <= 0 {
		return
	}
	skip := 0
	if frames > r.capacity {
		skip = frames - r.capacity
		r.written += uint64(skip)
		frames = r.capacity
	}
	pos := r.Cursor()
	first := min(frames, r.capacity-pos)
	for c := range r.channels {
		dst := r.data[c*r.capacity : (c+1)*r.capacity]
		if c >= len(src) {
			clear(dst[pos : pos+first])
			clear(dst[:frames-first])
			continue
		}
		in := src[c][skip : skip+frames]
		copy(dst[pos:pos+first], in[:first])
		copy(dst[:frames-first], in[first:])
	}
	r.written += uint64(frames)
}

// WriteSilence appends frames of zeros.
func (r *Ring) WriteSilence(frames int) {
	r.Write(nil, frames)
}

// Clear zeroes the whole ring without moving the cursor.
func (r *Ring) Clear() {
	clear(r.data)
	r.clears++
}
