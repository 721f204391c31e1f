package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtsync/internal/capture"
	"github.com/tphakala/rtsync/internal/params"
)

func TestAudioMetricsObserver(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	m, err := NewAudioMetrics(registry)
	require.NoError(t, err)

	m.BlockProcessed(256, 100*time.Microsecond, false)
	m.BlockProcessed(256, 120*time.Microsecond, true)
	m.ProcessorFault()

	assert.InDelta(t, 2, testutil.ToFloat64(m.blocks), 0)
	assert.InDelta(t, 512, testutil.ToFloat64(m.frames), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.mutedBlocks), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.faults), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.blockDuration))
}

func TestAudioMetricsObserverDoesNotAllocate(t *testing.T) {
	m, err := NewAudioMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	allocs := testing.AllocsPerRun(100, func() {
		m.BlockProcessed(128, 50*time.Microsecond, false)
	})
	assert.Zero(t, allocs)
}

func TestParamMetrics(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	m, err := NewParamMetrics(registry)
	require.NoError(t, err)

	store := params.NewStore(4)
	require.NoError(t, store.AddAll(
		params.MustDescriptor(1, "Gain", 0, 2, 1),
		params.MustDescriptor(2, "Pan", -1, 1, 0),
	))
	require.NoError(t, m.WatchStore(store))
	store.Seal()

	for range 10 {
		require.NoError(t, store.Announce(1, 0.5))
	}
	require.NoError(t, store.Announce(2, 0.1))

	assert.InDelta(t, 10, m.Announces("Gain"), 0)
	assert.InDelta(t, 1, m.Announces("Pan"), 0)
	assert.InDelta(t, 0, m.Announces("Missing"), 0)

	// 4 slots, nothing drained: six announcements overflowed
	expected := `
# HELP rtsync_param_overflows_total Announcements that found the change channel full and were coalesced
# TYPE rtsync_param_overflows_total counter
rtsync_param_overflows_total{param="Gain"} 6
rtsync_param_overflows_total{param="Pan"} 0
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "rtsync_param_overflows_total"))
}

func TestCaptureGeneration(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	m, err := NewParamMetrics(registry)
	require.NoError(t, err)

	ring, err := capture.NewRing(1, 8)
	require.NoError(t, err)
	pub := capture.NewPublisher("scope", ring)
	require.NoError(t, m.WatchCapture(pub))

	pub.Publish()
	pub.Publish()

	expected := `
# HELP rtsync_capture_generation Number of views published for the capture
# TYPE rtsync_capture_generation gauge
rtsync_capture_generation{capture="scope"} 2
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "rtsync_capture_generation"))
	require.Error(t, m.WatchCapture(pub), "duplicate capture names are rejected")
}

func TestMQTTAndHTTPMetrics(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	mq, err := NewMQTTMetrics(registry)
	require.NoError(t, err)
	hm, err := NewHTTPMetrics(registry)
	require.NoError(t, err)

	mq.SetConnected(true)
	mq.ObservePublish(time.Millisecond)
	mq.IncError("subscribe")
	assert.InDelta(t, 1, testutil.ToFloat64(mq.ConnectionStatus), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(mq.MessagesPublished), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(mq.Errors.WithLabelValues("subscribe")), 0)
	mq.SetConnected(false)
	assert.InDelta(t, 0, testutil.ToFloat64(mq.ConnectionStatus), 0)

	hm.RecordRequest("GET", "/api/v1/params", 200, time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(hm.requestsTotal.WithLabelValues("GET", "/api/v1/params", "200")), 0)
}
