package params

import (
	"math"
	"math/bits"
	"sync/atomic"
)

const (
	// DefaultChannelSlots is the ring size used when none is configured.
	DefaultChannelSlots = 32
	// MinChannelSlots and MaxChannelSlots bound the configurable ring size.
	MinChannelSlots = 4
	MaxChannelSlots = 128
)

// Record is one announced value. Tickets increase with every push on the
// same channel and order records across producers.
type Record struct {
	Ticket uint32
	Value  float32
}

func (r Record) pack() uint64 {
	return uint64(r.Ticket)<<32 | uint64(math.Float32bits(r.Value))
}

func unpack(v uint64) Record {
	return Record{Ticket: uint32(v >> 32), Value: math.Float32frombits(uint32(v))}
}

// newer reports whether ticket a was issued after b, tolerating wraparound.
func newer(a, b uint32) bool {
	return int32(a-b) > 0
}

type slot struct {
	seq atomic.Uint64
	// rec is written by the producer before seq is released and read by the
	// consumer after seq is acquired.
	rec uint64
}

// Channel is a bounded multiple-producer single-consumer queue of float
// records for one parameter.
//
// Producers claim slots with a CAS on head and may spin against each other,
// never against the consumer. When the ring is full the value is parked in a
// single overflow cell that keeps only the newest parked record, so the
// latest announcement always survives and intermediate values are dropped.
// Drain is consumer-only, never blocks, and pops at most Cap records.
type Channel struct {
	head atomic.Uint64
	_    [56]byte

	tail       uint64 // consumer only
	lastTicket uint32 // consumer only
	mask       uint64
	slots      []slot

	tickets   atomic.Uint32
	overflow  atomic.Uint64 // packed Record, 0 = empty
	overflows atomic.Uint64
}

// NewChannel returns a channel whose capacity is size rounded up to a power
// of two and clamped to [MinChannelSlots, MaxChannelSlots].
func NewChannel(size int) *Channel {
	size = min(max(size, MinChannelSlots), MaxChannelSlots)
	capacity := 1 << bits.Len(uint(size-1))

	c := &Channel{
		mask:  uint64(capacity - 1),
		slots: make([]slot, capacity),
	}
	for i := range c.slots {
		c.slots[i].seq.Store(uint64(i))
	}
	return c
}

// Cap returns the number of ring slots.
func (c *Channel) Cap() int {
	return len(c.slots)
}

// Overflows returns how many pushes found the ring full.
func (c *Channel) Overflows() uint64 {
	return c.overflows.Load()
}

// Push enqueues v. It reports false when the ring was full and the value
// went to the overflow cell instead.
func (c *Channel) Push(v float32) bool {
	t := c.tickets.Add(1)
	if t == 0 {
		// 0 marks an empty overflow cell
		t = c.tickets.Add(1)
	}
	rec := Record{Ticket: t, Value: v}.pack()

	pos := c.head.Load()
	for {
		s := &c.slots[pos&c.mask]
		seq := s.seq.Load()
		switch dif := int64(seq - pos); {
		case dif == 0:
			if c.head.CompareAndSwap(pos, pos+1) {
				s.rec = rec
				s.seq.Store(pos + 1)
				return true
			}
			pos = c.head.Load()
		case dif < 0:
			c.park(rec, t)
			return false
		default:
			pos = c.head.Load()
		}
	}
}

// park stores rec in the overflow cell unless a newer record is already there.
func (c *Channel) park(rec uint64, t uint32) {
	c.overflows.Add(1)
	for {
		old := c.overflow.Load()
		if old != 0 && !newer(t, unpack(old).Ticket) {
			return
		}
		if c.overflow.CompareAndSwap(old, rec) {
			return
		}
	}
}

// pop removes the oldest published record.
func (c *Channel) pop() (Record, bool) {
	s := &c.slots[c.tail&c.mask]
	if s.seq.Load() != c.tail+1 {
		// empty, or a producer has claimed the slot and not yet published it
		return Record{}, false
	}
	rec := unpack(s.rec)
	s.seq.Store(c.tail + c.mask + 1)
	c.tail++
	return rec, true
}

// accept reports whether r is newer than anything already drained and
// records it as the newest.
func (c *Channel) accept(r Record) bool {
	if c.lastTicket != 0 && !newer(r.Ticket, c.lastTicket) {
		return false
	}
	c.lastTicket = r.Ticket
	return true
}

// Drain appends pending records to dst in FIFO order and returns the
// extended slice. Records older than one already drained are discarded, so
// the last record appended is always the newest announcement seen. dst
// needs capacity Cap()+1 to avoid allocation.
func (c *Channel) Drain(dst []Record) []Record {
	for range len(c.slots) {
		r, ok := c.pop()
		if !ok {
			break
		}
		if c.accept(r) {
			dst = append(dst, r)
		}
	}
	if packed := c.overflow.Swap(0); packed != 0 {
		if r := unpack(packed); c.accept(r) {
			dst = append(dst, r)
		}
	}
	return dst
}

// Latest drains the channel and returns the newest record, if any.
func (c *Channel) Latest() (float32, bool) {
	var (
		v     float32
		found bool
	)
	for range len(c.slots) {
		r, ok := c.pop()
		if !ok {
			break
		}
		if c.accept(r) {
			v, found = r.Value, true
		}
	}
	if packed := c.overflow.Swap(0); packed != 0 {
		if r := unpack(packed); c.accept(r) {
			v, found = r.Value, true
		}
	}
	return v, found
}
