package audiocore

import (
	"unsafe"

	"github.com/tphakala/simd/f32"
)

// MaxChannels is the largest channel count a Buffer supports.
const MaxChannels = 8

// Buffer holds one block of de-interleaved float32 audio. Storage is
// allocated once for maxFrames; SetFrames only reslices.
type Buffer struct {
	data      [][]float32 // full-length channel storage
	view      [][]float32 // data resliced to frames
	frames    int
	maxFrames int
}

// NewBuffer allocates a channels x maxFrames buffer.
func NewBuffer(channels, maxFrames int) (*Buffer, error) {
	if channels <= 0 || channels > MaxChannels {
		return nil, ErrInvalidChannels
	}
	if maxFrames <= 0 {
		return nil, ErrInvalidBlockSize
	}
	b := &Buffer{
		data:      make([][]float32, channels),
		view:      make([][]float32, channels),
		maxFrames: maxFrames,
	}
	backing := make([]float32, channels*maxFrames)
	for c := range channels {
		b.data[c] = backing[c*maxFrames : (c+1)*maxFrames : (c+1)*maxFrames]
	}
	b.setFrames(maxFrames)
	return b, nil
}

// Channels returns the channel count.
func (b *Buffer) Channels() int { return len(b.data) }

// Frames returns the current block length.
func (b *Buffer) Frames() int { return b.frames }

// MaxFrames returns the allocated block length.
func (b *Buffer) MaxFrames() int { return b.maxFrames }

// SetFrames sets the current block length.
func (b *Buffer) SetFrames(n int) error {
	if n < 0 || n > b.maxFrames {
		return ErrFramesExceedBuffer
	}
	b.setFrames(n)
	return nil
}

func (b *Buffer) setFrames(n int) {
	b.frames = n
	for c := range b.data {
		b.view[c] = b.data[c][:n]
	}
}

// Channel returns the current block of channel ch. The slice aliases the
// buffer.
func (b *Buffer) Channel(ch int) []float32 { return b.view[ch] }

// Slices returns every channel of the current block.
func (b *Buffer) Slices() [][]float32 { return b.view }

// Clear zeroes the current block.
func (b *Buffer) Clear() {
	for _, ch := range b.view {
		clear(ch)
	}
}

// Deinterleave fills the current block from interleaved src, which holds
// frames*srcChannels samples. Channels missing from src are zeroed; extra
// source channels are dropped.
func (b *Buffer) Deinterleave(src []float32, srcChannels int) {
	if srcChannels <= 0 || len(src) == 0 {
		b.Clear()
		return
	}
	frames := min(b.frames, len(src)/srcChannels)
	for c, dst := range b.view {
		if c >= srcChannels {
			clear(dst)
			continue
		}
		for i := range frames {
			dst[i] = src[i*srcChannels+c]
		}
		clear(dst[frames:])
	}
}

// Interleave writes the current block into dst, which holds
// frames*Channels() samples.
func (b *Buffer) Interleave(dst []float32) {
	n := b.frames * len(b.view)
	dst = dst[:min(len(dst), n)]
	if len(b.view) == 2 && len(dst) == n {
		f32.Interleave2(dst, b.view[0], b.view[1])
		return
	}
	channels := len(b.view)
	for i := range dst {
		dst[i] = b.view[i%channels][i/channels]
	}
}

// Float32s reinterprets a little-endian device byte buffer as float32
// samples without copying.
func Float32s(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}
