package capture

import (
	"sync"
	"sync/atomic"
)

const (
	indexMask = 0x3
	dirtyBit  = 0x4
)

type snapshot struct {
	data       []float32
	written    uint64
	clears     uint64
	generation uint64
}

// Publisher makes a Ring's contents visible to readers without locking the
// audio thread.
//
// Three snapshots rotate between three roles: back (writer-owned), middle
// (last published) and front (reader-owned). Publish fills back and swaps it
// with middle in one atomic operation. Readers swap front with middle under
// their own mutex, which the writer never takes.
type Publisher struct {
	name  string
	ring  *Ring
	snaps [3]snapshot

	back       int    // writer only
	generation uint64 // writer only

	state     atomic.Uint32 // middle index | dirtyBit
	published atomic.Uint64 // latest published generation

	readerMu sync.Mutex
	front    int
}

// NewPublisher allocates the snapshots for ring. name identifies the
// capture in logs and metrics.
func NewPublisher(name string, ring *Ring) *Publisher {
	p := &Publisher{name: name, ring: ring}
	for i := range p.snaps {
		p.snaps[i].data = make([]float32, len(ring.data))
	}
	p.back, p.front = 0, 2
	p.state.Store(1)
	return p
}

// Name returns the capture name.
func (p *Publisher) Name() string { return p.name }

// Ring returns the ring this publisher reads from.
func (p *Publisher) Ring() *Ring { return p.ring }

// Generation returns the number of Publish calls so far. Safe from any goroutine.
func (p *Publisher) Generation() uint64 { return p.published.Load() }

// Publish copies what changed in the ring since the back snapshot was last
// current and makes it the newest view. Audio thread only. The copy is
// bounded by the ring capacity.
func (p *Publisher) Publish() {
	r := p.ring
	s := &p.snaps[p.back]

	if s.clears != r.clears || r.written-s.written >= uint64(r.capacity) {
		copy(s.data, r.data)
	} else if s.written != r.written {
		from := int(s.written % uint64(r.capacity))
		n := int(r.written - s.written)
		first := min(n, r.capacity-from)
		for c := range r.channels {
			base := c * r.capacity
			copy(s.data[base+from:base+from+first], r.data[base+from:base+from+first])
			copy(s.data[base:base+n-first], r.data[base:base+n-first])
		}
	}
	s.written = r.written
	s.clears = r.clears

	p.generation++
	s.generation = p.generation

	old := p.state.Swap(uint32(p.back) | dirtyBit)
	p.back = int(old & indexMask)
	p.published.Store(p.generation)
}

// Read calls fn with the most recently published view. The view is only
// valid during fn. Readers are serialized with each other, never with the
// audio thread.
func (p *Publisher) Read(fn func(View)) {
	p.readerMu.Lock()
	defer p.readerMu.Unlock()

	if p.state.Load()&dirtyBit != 0 {
		old := p.state.Swap(uint32(p.front))
		p.front = int(old & indexMask)
	}
	fn(p.viewOf(&p.snaps[p.front]))
}

// Snapshot returns a copy of the latest view that stays valid after return.
func (p *Publisher) Snapshot() View {
	var out View
	p.Read(func(v View) { out = v.Clone() })
	return out
}

func (p *Publisher) viewOf(s *snapshot) View {
	return View{
		data:       s.data,
		channels:   p.ring.channels,
		capacity:   p.ring.capacity,
		written:    s.written,
		generation: s.generation,
	}
}
