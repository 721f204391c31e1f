package utility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtsync/internal/audiocore"
	"github.com/tphakala/rtsync/internal/capture"
	"github.com/tphakala/rtsync/internal/params"
)

type rig struct {
	store  *params.Store
	driver *audiocore.Driver
	pub    *capture.Publisher
}

func newRig(t *testing.T) rig {
	t.Helper()
	store := params.NewStore(0)
	require.NoError(t, store.AddAll(Descriptors()...))
	store.Seal()

	proc, err := New(store)
	require.NoError(t, err)

	ring, err := capture.NewRing(2, 16)
	require.NoError(t, err)
	pub := capture.NewPublisher("output", ring)

	d, err := audiocore.NewDriver(audiocore.DriverConfig{
		Store:          store,
		Processor:      proc,
		InputChannels:  2,
		OutputChannels: 2,
		MaxFrames:      64,
		HasMute:        true,
		MuteParam:      MuteID,
		Captures:       []audiocore.CaptureTap{{Publisher: pub}},
	})
	require.NoError(t, err)
	return rig{store: store, driver: d, pub: pub}
}

func TestPanAmounts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pan         float32
		left, right float32
	}{
		{0, 1, 1},
		{-1, 1, 0},
		{1, 0, 1},
		{-0.25, 1, 0.75},
		{0.5, 0.5, 1},
	}
	for _, tt := range tests {
		l, r := PanAmounts(tt.pan)
		assert.InDelta(t, tt.left, l, 1e-6, "pan %v", tt.pan)
		assert.InDelta(t, tt.right, r, 1e-6, "pan %v", tt.pan)
	}
}

func TestNewRequiresParameters(t *testing.T) {
	t.Parallel()
	store := params.NewStore(0)
	_, err := store.Add(Gain)
	require.NoError(t, err)
	_, err = New(store)
	require.ErrorIs(t, err, params.ErrUnknownParameter)
}

func TestMutedBlockIsSilent(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	require.NoError(t, r.store.Announce(MuteID, 1))
	require.NoError(t, r.store.Announce(GainID, 2))
	require.NoError(t, r.store.Announce(PanID, 0))

	// one stereo frame: in[0] = 0.5, in[1] = -0.5
	out := make([]float32, 2)
	code := r.driver.Process(out, []float32{0.5, -0.5}, 1)

	assert.Equal(t, audiocore.Continue, code)
	assert.Equal(t, []float32{0, 0}, out)
	r.pub.Read(func(v capture.View) {
		for c := range v.Channels() {
			assert.Zero(t, v.Peak(c))
		}
	})

	// updates were consumed while muted
	v, err := r.store.Value(GainID)
	require.NoError(t, err)
	assert.InDelta(t, 2, v, 0)
}

func TestGainAppliesToBothOutputs(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	require.NoError(t, r.store.Announce(GainID, 2))

	// two frames of channel 0 input: 0.5 then 0.3
	out := make([]float32, 4)
	in := []float32{0.5, 0, 0.3, 0}
	assert.Equal(t, audiocore.Continue, r.driver.Process(out, in, 2))

	assert.InDeltaSlice(t, []float32{1.0, 1.0, 0.6, 0.6}, out, 1e-6)
}

func TestPanLaw(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	out := make([]float32, 2)

	require.NoError(t, r.store.Announce(PanID, -0.5))
	r.driver.Process(out, []float32{0.8, 0}, 1)
	assert.InDeltaSlice(t, []float32{0.8, 0.4}, out, 1e-6)

	require.NoError(t, r.store.Announce(PanID, 1))
	r.driver.Process(out, []float32{0.8, 0}, 1)
	assert.InDeltaSlice(t, []float32{0, 0.8}, out, 1e-6)
}

func TestLastAnnouncedValueWins(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	for _, g := range []float32{0.1, 1.5, 0.5} {
		require.NoError(t, r.store.Announce(GainID, g))
	}

	out := make([]float32, 2)
	r.driver.Process(out, []float32{1, 0}, 1)
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, out, 1e-6)
}

func TestProcessorAloneHonoursMute(t *testing.T) {
	t.Parallel()
	store := params.NewStore(0)
	require.NoError(t, store.AddAll(Descriptors()...))
	store.Seal()
	proc, err := New(store)
	require.NoError(t, err)

	in, err := audiocore.NewBuffer(1, 4)
	require.NoError(t, err)
	out, err := audiocore.NewBuffer(2, 4)
	require.NoError(t, err)
	in.Deinterleave([]float32{1, 1, 1, 1}, 1)

	require.NoError(t, store.Announce(MuteID, 1))
	store.UpdateAll()
	proc.Process(in, out, 4)
	assert.Equal(t, []float32{0, 0, 0, 0}, out.Channel(0))
	assert.Equal(t, []float32{0, 0, 0, 0}, out.Channel(1))
}
