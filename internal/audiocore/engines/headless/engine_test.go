package headless

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/rtsync/internal/audiocore"
	"github.com/tphakala/rtsync/internal/logger"
	"github.com/tphakala/rtsync/internal/params"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func newSealedStore() *params.Store {
	s := params.NewStore(0)
	s.Seal()
	return s
}

func waitDone(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestStopsOnDrain(t *testing.T) {
	t.Parallel()
	e := New(audiocore.EngineConfig{SampleRate: 48000, BufferFrames: 64, InputChannels: 1, OutputChannels: 2},
		Options{ToneHz: 1000, Amplitude: 0.5}, testLogger())

	var calls atomic.Int32
	err := e.Start(t.Context(), func(out, in []float32, frames int) audiocore.Code {
		assert.Equal(t, 64, frames)
		assert.Len(t, in, 64)
		assert.Len(t, out, 128)
		for i := range out {
			out[i] = in[i/2]
		}
		if calls.Add(1) == 5 {
			return audiocore.Drain
		}
		return audiocore.Continue
	})
	require.NoError(t, err)

	waitDone(t, e)
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, uint64(5), e.Blocks())
	assert.InDelta(t, 0.5, e.OutputPeak(), 0.01)
}

func TestMaxBlocks(t *testing.T) {
	t.Parallel()
	e := New(audiocore.EngineConfig{BufferFrames: 32}, Options{MaxBlocks: 3}, testLogger())
	require.NoError(t, e.Start(t.Context(), func(out, in []float32, _ int) audiocore.Code {
		assert.Nil(t, in, "output-only stream")
		return audiocore.Continue
	}))
	waitDone(t, e)
	assert.Equal(t, uint64(3), e.Blocks())
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	e := New(audiocore.EngineConfig{BufferFrames: 480, SampleRate: 48000}, DefaultOptions(), testLogger())
	require.NoError(t, e.Start(t.Context(), func([]float32, []float32, int) audiocore.Code {
		return audiocore.Continue
	}))
	require.ErrorIs(t, e.Start(t.Context(), nil), audiocore.ErrEngineRunning)

	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop())
	waitDone(t, e)
}

func TestDriverOnHeadlessEngine(t *testing.T) {
	t.Parallel()
	e := New(audiocore.EngineConfig{BufferFrames: 128, InputChannels: 1, OutputChannels: 1},
		Options{ToneHz: 440, Amplitude: 0.25, MaxBlocks: 4}, testLogger())

	d, err := audiocore.NewDriver(audiocore.DriverConfig{
		Store: newSealedStore(),
		Processor: audiocore.ProcessorFunc(func(in, out *audiocore.Buffer, frames int) audiocore.Code {
			copy(out.Channel(0)[:frames], in.Channel(0)[:frames])
			return audiocore.Continue
		}),
		InputChannels: 1, OutputChannels: 1, MaxFrames: 64,
	})
	require.NoError(t, err)

	require.NoError(t, e.Start(t.Context(), d.Callback()))
	waitDone(t, e)

	st := d.Stats()
	assert.Equal(t, uint64(8), st.Blocks, "128-frame periods split into 64-frame blocks")
	assert.Equal(t, uint64(512), st.Frames)
	assert.InDelta(t, 0.25, e.OutputPeak(), 0.01)
}
