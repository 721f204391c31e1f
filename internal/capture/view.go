package capture

import "math"

// View is a read-only window onto a published capture generation. It
// references the snapshot's memory; use Clone to keep it beyond a Read
// callback.
type View struct {
	data       []float32
	channels   int
	capacity   int
	written    uint64
	generation uint64
}

// Channels returns the channel count.
func (v View) Channels() int { return v.channels }

// Capacity returns the ring capacity in frames.
func (v View) Capacity() int { return v.capacity }

// Frames returns the number of valid frames, at most Capacity.
func (v View) Frames() int {
	if v.capacity == 0 {
		return 0
	}
	return int(min(v.written, uint64(v.capacity)))
}

// Written returns the total number of frames written when this view was published.
func (v View) Written() uint64 { return v.written }

// Generation returns the publication counter of this view; 0 means nothing
// was published yet.
func (v View) Generation() uint64 { return v.generation }

func (v View) start() int {
	if v.written <= uint64(v.capacity) {
		return 0
	}
	return int(v.written % uint64(v.capacity))
}

// Sample returns frame i of channel ch, oldest frame first.
func (v View) Sample(ch, i int) float32 {
	return v.data[ch*v.capacity+(v.start()+i)%v.capacity]
}

// CopyChannel copies channel ch, oldest frame first, into dst and returns
// the number of frames copied.
func (v View) CopyChannel(ch int, dst []float32) int {
	n := min(len(dst), v.Frames())
	if n == 0 || ch < 0 || ch >= v.channels {
		return 0
	}
	src := v.data[ch*v.capacity : (ch+1)*v.capacity]
	start := v.start()
	first := min(n, v.capacity-start)
	copy(dst[:first], src[start:start+first])
	copy(dst[first:n], src[:n-first])
	return n
}

// Tail copies the newest len(dst) frames of channel ch into dst, oldest
// first, and returns the number copied.
func (v View) Tail(ch int, dst []float32) int {
	frames := v.Frames()
	n := min(len(dst), frames)
	if n == 0 || ch < 0 || ch >= v.channels {
		return 0
	}
	offset := frames - n
	for i := range n {
		dst[i] = v.Sample(ch, offset+i)
	}
	return n
}

// Peak returns the largest absolute sample of channel ch.
func (v View) Peak(ch int) float32 {
	if ch < 0 || ch >= v.channels {
		return 0
	}
	var peak float32
	for _, s := range v.data[ch*v.capacity : (ch+1)*v.capacity][:v.Frames()] {
		peak = max(peak, float32(math.Abs(float64(s))))
	}
	return peak
}

// Clone returns a view backed by its own copy of the samples, laid out
// oldest frame first.
func (v View) Clone() View {
	frames := v.Frames()
	out := View{
		data:       make([]float32, v.channels*frames),
		channels:   v.channels,
		capacity:   frames,
		written:    uint64(frames),
		generation: v.generation,
	}
	for c := range v.channels {
		v.CopyChannel(c, out.data[c*frames:(c+1)*frames])
	}
	return out
}

// PeakDB converts a linear peak to dBFS, limited to [floor, 0].
func PeakDB(peak, floor float32) float32 {
	if peak <= 0 {
		return floor
	}
	db := float32(20 * math.Log10(float64(peak)))
	return min(max(db, floor), 0)
}
