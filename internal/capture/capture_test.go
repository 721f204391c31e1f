package capture

import (
	"bytes"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/rtsync/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func ramp(start, n int, scale float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start+i) * scale
	}
	return out
}

func channelOf(v View, ch int) []float32 {
	out := make([]float32, v.Frames())
	v.CopyChannel(ch, out)
	return out
}

func TestNewRingValidation(t *testing.T) {
	t.Parallel()
	_, err := NewRing(0, 16)
	require.Error(t, err)
	_, err = NewRing(2, 0)
	require.Error(t, err)
}

func TestRoundTripBelowCapacity(t *testing.T) {
	t.Parallel()

	r, err := NewRing(2, 16)
	require.NoError(t, err)
	p := NewPublisher("scope", r)

	left, right := ramp(0, 10, 1), ramp(100, 10, 1)
	r.Write([][]float32{left, right}, 10)
	p.Publish()

	p.Read(func(v View) {
		assert.Equal(t, 10, v.Frames())
		assert.Equal(t, uint64(1), v.Generation())
		assert.Equal(t, left, channelOf(v, 0))
		assert.Equal(t, right, channelOf(v, 1))
	})
}

func TestRoundTripAcrossBlocksAndWrap(t *testing.T) {
	t.Parallel()

	const capacity = 8
	r, err := NewRing(1, capacity)
	require.NoError(t, err)
	p := NewPublisher("meter", r)

	next := 0
	for block := range 7 {
		n := 1 + block%3
		r.Write([][]float32{ramp(next, n, 1)}, n)
		next += n
		p.Publish()

		p.Read(func(v View) {
			frames := min(next, capacity)
			require.Equal(t, frames, v.Frames())
			assert.Equal(t, ramp(next-frames, frames, 1), channelOf(v, 0), "block %d", block)
		})
	}
}

func TestOversizedBlockKeepsNewestFrames(t *testing.T) {
	t.Parallel()

	r, err := NewRing(1, 4)
	require.NoError(t, err)
	p := NewPublisher("x", r)

	r.Write([][]float32{ramp(0, 10, 1)}, 10)
	p.Publish()

	v := p.Snapshot()
	assert.Equal(t, []float32{6, 7, 8, 9}, channelOf(v, 0))
	assert.Equal(t, uint64(10), r.Written())
}

func TestMissingSourceChannelIsSilent(t *testing.T) {
	t.Parallel()

	r, err := NewRing(2, 4)
	require.NoError(t, err)
	p := NewPublisher("x", r)

	r.Write([][]float32{{1, 1, 1, 1}, {1, 1, 1, 1}}, 4)
	r.Write([][]float32{{0.5, 0.5}}, 2)
	p.Publish()

	v := p.Snapshot()
	assert.Equal(t, []float32{1, 1, 0.5, 0.5}, channelOf(v, 0))
	assert.Equal(t, []float32{1, 1, 0, 0}, channelOf(v, 1))
}

func TestClearZeroesPublishedView(t *testing.T) {
	t.Parallel()

	r, err := NewRing(2, 8)
	require.NoError(t, err)
	p := NewPublisher("x", r)

	r.Write([][]float32{ramp(1, 8, 0.1), ramp(1, 8, 0.1)}, 8)
	p.Publish()
	p.Publish() // every snapshot has seen the audible data

	r.Clear()
	r.WriteSilence(2)
	p.Publish()

	p.Read(func(v View) {
		for c := range v.Channels() {
			assert.Zero(t, v.Peak(c))
			for _, s := range channelOf(v, c) {
				assert.Zero(t, s)
			}
		}
	})
}

func TestStaleSnapshotCatchesUp(t *testing.T) {
	t.Parallel()

	r, err := NewRing(1, 16)
	require.NoError(t, err)
	p := NewPublisher("x", r)

	// publish many times without a reader so each snapshot falls behind by
	// two generations before it is reused
	next := 0
	for range 20 {
		r.Write([][]float32{ramp(next, 3, 1)}, 3)
		next += 3
		p.Publish()
	}

	v := p.Snapshot()
	assert.Equal(t, uint64(20), v.Generation())
	assert.Equal(t, ramp(next-16, 16, 1), channelOf(v, 0))
}

func TestReaderNeverSeesTornBlock(t *testing.T) {
	t.Parallel()

	const (
		capacity = 64
		block    = 16
		blocks   = 2000
	)
	r, err := NewRing(1, capacity)
	require.NoError(t, err)
	p := NewPublisher("x", r)

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Go(func() {
		buf := make([]float32, block)
		for {
			select {
			case <-done:
				return
			default:
			}
			p.Read(func(v View) {
				if v.Frames() < block {
					return
				}
				// every block is filled with its block number
				n := v.Tail(0, buf)
				for i := 1; i < n; i++ {
					assert.Equal(t, buf[0], buf[i], "torn block")
				}
			})
		}
	})

	src := make([]float32, block)
	for b := range blocks {
		for i := range src {
			src[i] = float32(b)
		}
		r.Write([][]float32{src}, block)
		p.Publish()
	}
	close(done)
	wg.Wait()
}

func TestPublishDoesNotAllocate(t *testing.T) {
	r, err := NewRing(2, 256)
	require.NoError(t, err)
	p := NewPublisher("x", r)
	src := [][]float32{make([]float32, 64), make([]float32, 64)}

	allocs := testing.AllocsPerRun(100, func() {
		r.Write(src, 64)
		p.Publish()
	})
	assert.Zero(t, allocs)
}

func TestPeakDB(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, -72, PeakDB(0, -72), 0)
	assert.InDelta(t, 0, PeakDB(1, -72), 1e-6)
	assert.InDelta(t, 0, PeakDB(2, -72), 0, "clamped at 0 dBFS")
	assert.InDelta(t, -6.0206, PeakDB(0.5, -72), 1e-3)
	assert.InDelta(t, -72, PeakDB(1e-6, -72), 0)
}

func TestExportFile(t *testing.T) {
	t.Parallel()

	r, err := NewRing(2, 32)
	require.NoError(t, err)
	p := NewPublisher("scope", r)
	r.Write([][]float32{ramp(0, 32, 1.0/32), ramp(0, 32, -1.0/32)}, 32)
	p.Publish()

	path, err := ExportFile(t.TempDir(), p, 48000, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, path, "scope_20260102T030405.wav")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, uint32(48000), dec.SampleRate)

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, buf.Data, 64)
}

var errSeekUnsupported = errors.NewStd("seek unsupported")

// unseekableWriter accepts PCM data but cannot go back to patch the header.
type unseekableWriter struct{ bytes.Buffer }

func (w *unseekableWriter) Seek(int64, int) (int64, error) { return 0, errSeekUnsupported }

func TestWriteWAVHeaderFailure(t *testing.T) {
	t.Parallel()

	r, err := NewRing(1, 16)
	require.NoError(t, err)
	p := NewPublisher("meter", r)
	r.Write([][]float32{ramp(0, 16, 1.0/16)}, 16)
	p.Publish()

	w := &unseekableWriter{}
	err = WriteWAV(w, p.Snapshot(), 48000)
	require.Error(t, err)
	require.ErrorIs(t, err, errSeekUnsupported)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, ComponentCapture, ee.GetComponent())
	assert.Positive(t, w.Len(), "PCM data is written before the header patch")
}
