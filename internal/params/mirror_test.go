package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorSnapshotsStore(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 8)
	require.NoError(t, s.Announce(gainDesc.ID(), 1.5))
	s.UpdateAll()

	m := NewMirror(s)
	ps := m.Params()
	require.Len(t, ps, 3)
	assert.Equal(t, gainDesc, ps[0].Descriptor())
	assert.InDelta(t, 1.5, ps[0].Value(), 0)
	assert.InDelta(t, 0.0, ps[1].Value(), 0)

	// the snapshot is a copy
	ps[0] = GuiParameter{}
	v, err := m.Value(gainDesc.ID())
	require.NoError(t, err)
	assert.InDelta(t, 1.5, v, 0)
}

func TestMirrorSetAnnounces(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 8)
	m := NewMirror(s)

	v, err := m.Set(panDesc.ID(), -2)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, v, 0, "clamped to bounds")

	applied, err := s.Update(panDesc.ID())
	require.NoError(t, err)
	assert.InDelta(t, -1.0, applied, 0)
}

func TestMirrorToggleResetAdjust(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 8)
	m := NewMirror(s)

	v, err := m.Toggle(muteDesc.ID())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 0)
	v, err = m.Toggle(muteDesc.ID())
	require.NoError(t, err)
	assert.InDelta(t, 0.0, v, 0)

	_, err = m.Adjust(gainDesc.ID(), 0.25)
	require.NoError(t, err)
	v, err = m.Adjust(gainDesc.ID(), 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, v, 1e-6)

	v, err = m.Reset(gainDesc.ID())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 0)

	applied, err := s.Update(gainDesc.ID())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, applied, 0)

	mute, err := s.Update(muteDesc.ID())
	require.NoError(t, err)
	assert.InDelta(t, 0.0, mute, 0)
}

func TestMirrorUnknownParameter(t *testing.T) {
	t.Parallel()

	m := NewMirror(newTestStore(t, 8))

	_, err := m.Set(42, 1)
	require.ErrorIs(t, err, ErrUnknownParameter)
	_, err = m.Get(42)
	require.ErrorIs(t, err, ErrUnknownParameter)
	_, err = m.Toggle(42)
	require.ErrorIs(t, err, ErrUnknownParameter)
}

type failingSource struct {
	*Store
}

func (failingSource) Announce(ID, float32) error { return ErrInvalidValue }

func TestMirrorKeepsValueWhenAnnounceFails(t *testing.T) {
	t.Parallel()

	m := NewMirror(failingSource{newTestStore(t, 8)})
	v, err := m.Set(gainDesc.ID(), 0.5)
	require.Error(t, err)
	assert.InDelta(t, 1.0, v, 0)
}

func TestIsOn(t *testing.T) {
	t.Parallel()
	assert.False(t, IsOn(muteDesc, 0))
	assert.False(t, IsOn(muteDesc, 0.5))
	assert.True(t, IsOn(muteDesc, 0.51))
	assert.True(t, IsOn(muteDesc, 1))
}
