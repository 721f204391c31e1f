package params

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(recs []Record) []float32 {
	out := make([]float32, len(recs))
	for i, r := range recs {
		out[i] = r.Value
	}
	return out
}

func TestChannelCapacityRounding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		size, want int
	}{
		{0, MinChannelSlots},
		{3, 4},
		{5, 8},
		{32, 32},
		{120, 128},
		{1000, MaxChannelSlots},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewChannel(tt.size).Cap(), "size %d", tt.size)
	}
}

func TestChannelDrainFIFO(t *testing.T) {
	t.Parallel()

	c := NewChannel(8)
	for _, v := range []float32{0.1, 0.2, 0.3} {
		require.True(t, c.Push(v))
	}

	buf := make([]Record, 0, c.Cap()+1)
	got := c.Drain(buf)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, values(got))

	assert.Empty(t, c.Drain(buf[:0]))
}

func TestChannelOverflowKeepsNewest(t *testing.T) {
	t.Parallel()

	c := NewChannel(4)
	for i := range 9 {
		c.Push(float32(i))
	}
	assert.Equal(t, uint64(5), c.Overflows())

	got := c.Drain(make([]Record, 0, c.Cap()+1))
	require.NotEmpty(t, got)
	assert.Equal(t, []float32{0, 1, 2, 3, 8}, values(got))

	// ring has room again
	assert.True(t, c.Push(42))
	v, ok := c.Latest()
	require.True(t, ok)
	assert.InDelta(t, 42.0, v, 0)
}

func TestChannelDropsOutOfOrderTickets(t *testing.T) {
	t.Parallel()

	c := NewChannel(4)
	// Simulate two producers whose slot claims landed in the opposite order
	// from their tickets.
	c.slots[0].rec = Record{Ticket: 6, Value: 0.6}.pack()
	c.slots[0].seq.Store(1)
	c.slots[1].rec = Record{Ticket: 5, Value: 0.5}.pack()
	c.slots[1].seq.Store(2)
	c.head.Store(2)
	c.tickets.Store(6)

	got := c.Drain(nil)
	assert.Equal(t, []float32{0.6}, values(got))
}

func TestChannelTicketWraparound(t *testing.T) {
	t.Parallel()

	c := NewChannel(4)
	c.tickets.Store(math.MaxUint32 - 1)

	c.Push(1)
	v, ok := c.Latest()
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 0)

	c.Push(2) // skips ticket 0
	c.Push(3)
	v, ok = c.Latest()
	require.True(t, ok)
	assert.InDelta(t, 3.0, v, 0)
}

func TestChannelLatestBounded(t *testing.T) {
	t.Parallel()

	c := NewChannel(4)
	for i := range 100 {
		c.Push(float32(i))
	}
	v, ok := c.Latest()
	require.True(t, ok)
	assert.InDelta(t, 99.0, v, 0)

	_, ok = c.Latest()
	assert.False(t, ok)
}
