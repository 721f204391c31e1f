package mqtt

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/rtsync/internal/capture"
	"github.com/tphakala/rtsync/internal/conf"
	"github.com/tphakala/rtsync/internal/dsp/utility"
	"github.com/tphakala/rtsync/internal/logger"
	"github.com/tphakala/rtsync/internal/observability/metrics"
	"github.com/tphakala/rtsync/internal/params"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testLogger = logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)

// doneToken is a completed paho token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	payload string
	retain  bool
}

// fakeConn records publications and connects immediately.
type fakeConn struct {
	opts *paho.ClientOptions

	mu        sync.Mutex
	connected bool
	pubs      []published
	filter    string
	handler   paho.MessageHandler
}

func (f *fakeConn) Connect() paho.Token {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	if f.opts.OnConnect != nil {
		f.opts.OnConnect(nil)
	}
	return doneToken{}
}

func (f *fakeConn) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) Publish(topic string, _ byte, retained bool, payload any) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, published{topic: topic, payload: payload.(string), retain: retained})
	return doneToken{}
}

func (f *fakeConn) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = topic
	f.handler = cb
	return doneToken{}
}

func (f *fakeConn) published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.pubs...)
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = nil
}

// deliver invokes the subscription handler like the paho router does.
func (f *fakeConn) deliver(topic, payload string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(nil, &message{topic: topic, payload: []byte(payload)})
}

type message struct {
	topic   string
	payload []byte
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return 1 }
func (m *message) Retained() bool    { return false }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 1 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}

type rig struct {
	bridge  *Bridge
	conn    *fakeConn
	store   *params.Store
	metrics *metrics.MQTTMetrics
}

func newRig(t *testing.T, cfg Config, opts ...Option) *rig {
	t.Helper()
	store := params.NewStore(0)
	require.NoError(t, store.AddAll(utility.Descriptors()...))
	store.Seal()

	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	opts = append([]Option{WithLogger(testLogger), WithMetrics(m)}, opts...)
	b, err := NewBridge(cfg, params.NewMirror(store), opts...)
	require.NoError(t, err)

	fc := &fakeConn{}
	b.dial = func(o *paho.ClientOptions) conn {
		fc.opts = o
		return fc
	}
	return &rig{bridge: b, conn: fc, store: store, metrics: m}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Broker = "tcp://localhost:1883"
	cfg.ClientID = "test"
	return cfg
}

func TestNewBridgeValidation(t *testing.T) {
	t.Parallel()
	store := params.NewStore(0)
	store.Seal()
	m := params.NewMirror(store)

	_, err := NewBridge(testConfig(), nil)
	require.Error(t, err)

	cfg := testConfig()
	cfg.Broker = ""
	_, err = NewBridge(cfg, m)
	require.Error(t, err)

	cfg = testConfig()
	cfg.RateLimit = 0
	_, err = NewBridge(cfg, m)
	require.Error(t, err)
}

func TestGeneratedClientID(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.ClientID = ""
	r := newRig(t, cfg)
	assert.Regexp(t, `^rtsync-[0-9a-f]{8}$`, r.bridge.cfg.ClientID)
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()
	s := &conf.Settings{}
	s.MQTT.Broker = "tcp://broker:1883"
	s.MQTT.TopicPrefix = "studio/"
	s.MQTT.RateLimit = 10
	s.MQTT.MeterRate = 2
	s.UI.MeterFloor = -60

	cfg := ConfigFromSettings(s)
	assert.Equal(t, "studio", cfg.TopicPrefix)
	assert.InDelta(t, 10, cfg.RateLimit, 0)
	assert.InDelta(t, -60, cfg.MeterFloor, 0)
	assert.Equal(t, DefaultConfig().PublishTimeout, cfg.PublishTimeout)
}

func TestParamKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic string
		key   string
		ok    bool
	}{
		{"rtsync/params/1/set", "1", true},
		{"rtsync/params/gain/set", "gain", true},
		{"rtsync/params/1/state", "", false},
		{"other/params/1/set", "", false},
		{"rtsync/params//set", "", false},
		{"rtsync/params/a/b/set", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			t.Parallel()
			key, ok := paramKey("rtsync", tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.key, key)
		})
	}
	assert.Equal(t, "rtsync/params/+/set", setFilter("rtsync"))
	assert.Equal(t, "rtsync/params/3/state", stateTopic("rtsync", 3))
	assert.Equal(t, "rtsync/meters/scope/1", meterTopic("rtsync", "scope", 1))
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	c, err := parseCommand([]byte(" 0.25\n"))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, c.value, 1e-7)

	c, err = parseCommand([]byte("TOGGLE"))
	require.NoError(t, err)
	assert.True(t, c.toggle)

	c, err = parseCommand([]byte("reset"))
	require.NoError(t, err)
	assert.True(t, c.reset)

	_, err = parseCommand([]byte("loud"))
	require.ErrorIs(t, err, params.ErrInvalidValue)
}

func TestConnectSubscribesAndPublishesState(t *testing.T) {
	t.Parallel()
	r := newRig(t, testConfig())

	require.NoError(t, r.bridge.Connect(context.Background()))
	assert.True(t, r.bridge.IsConnected())
	assert.Equal(t, "rtsync/params/+/set", r.conn.filter)
	assert.InDelta(t, 1, testutil.ToFloat64(r.metrics.ConnectionStatus), 0)

	pubs := r.conn.published()
	require.Len(t, pubs, 3)
	assert.Equal(t, published{topic: "rtsync/params/1/state", payload: "1", retain: true}, pubs[0])

	r.bridge.Disconnect()
	assert.InDelta(t, 0, testutil.ToFloat64(r.metrics.ConnectionStatus), 0)
}

func TestSetMessageAnnounces(t *testing.T) {
	t.Parallel()
	r := newRig(t, testConfig())
	require.NoError(t, r.bridge.Connect(context.Background()))
	r.conn.reset()

	r.conn.deliver("rtsync/params/pan/set", "-0.5")
	v, err := r.store.Update(utility.PanID)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, v, 1e-6)

	assert.Equal(t, []published{{topic: "rtsync/params/2/state", payload: "-0.5", retain: true}}, r.conn.published())
	assert.InDelta(t, 1, testutil.ToFloat64(r.metrics.MessagesReceived), 0)

	r.conn.deliver("rtsync/params/3/set", "toggle")
	v, _ = r.store.Update(utility.MuteID)
	assert.InDelta(t, 1, v, 0)
}

func TestSetMessageErrors(t *testing.T) {
	t.Parallel()
	r := newRig(t, testConfig())

	require.ErrorIs(t, r.bridge.HandleSet("rtsync/params/9/set", []byte("1")), params.ErrUnknownParameter)
	require.ErrorIs(t, r.bridge.HandleSet("rtsync/params/volume/set", []byte("1")), params.ErrUnknownParameter)
	require.ErrorIs(t, r.bridge.HandleSet("rtsync/params/1/set", []byte("x")), params.ErrInvalidValue)
	require.Error(t, r.bridge.HandleSet("rtsync/other", []byte("1")))
	assert.Equal(t, uint64(0), r.store.Announces())
}

func TestSetMessagesAreRateLimited(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RateLimit = 0.001
	r := newRig(t, cfg)

	require.NoError(t, r.bridge.HandleSet("rtsync/params/1/set", []byte("1.5")))
	require.NoError(t, r.bridge.HandleSet("rtsync/params/1/set", []byte("0.5")))
	// each parameter has its own limiter
	require.NoError(t, r.bridge.HandleSet("rtsync/params/2/set", []byte("0.5")))

	v, _ := r.store.Update(utility.GainID)
	assert.InDelta(t, 1.5, v, 1e-6, "the second gain message was dropped")
	v, _ = r.store.Update(utility.PanID)
	assert.InDelta(t, 0.5, v, 1e-6)
	assert.InDelta(t, 1, testutil.ToFloat64(r.metrics.RateLimited), 0)
}

func TestPublishStateOnlyChanges(t *testing.T) {
	t.Parallel()
	r := newRig(t, testConfig())
	require.NoError(t, r.bridge.Connect(context.Background()))
	r.conn.reset()

	r.bridge.PublishState(false)
	assert.Empty(t, r.conn.published())

	// a change from another surface
	_, err := r.bridge.mirror.Set(utility.GainID, 0.5)
	require.NoError(t, err)
	r.bridge.PublishState(false)
	assert.Equal(t, []published{{topic: "rtsync/params/1/state", payload: "0.5", retain: true}}, r.conn.published())
}

func TestPublishMeters(t *testing.T) {
	t.Parallel()
	ring, err := capture.NewRing(2, 4)
	require.NoError(t, err)
	ring.Write([][]float32{{1, 0, 0, 0}, {0, 0, 0, 0}}, 4)
	pub := capture.NewPublisher("meter", ring)
	pub.Publish()

	r := newRig(t, testConfig(), WithCaptures(pub))
	r.bridge.PublishMeters()
	assert.Empty(t, r.conn.published(), "nothing is published before connecting")

	require.NoError(t, r.bridge.Connect(context.Background()))
	r.conn.reset()
	r.bridge.PublishMeters()
	assert.Equal(t, []published{
		{topic: "rtsync/meters/meter/0", payload: "0.0"},
		{topic: "rtsync/meters/meter/1", payload: "-72.0"},
	}, r.conn.published())
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.StateInterval = 5 * time.Millisecond
	r := newRig(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, r.bridge.Run(ctx))
	assert.False(t, r.bridge.IsConnected())
}
