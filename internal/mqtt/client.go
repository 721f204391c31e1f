package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/time/rate"

	"github.com/tphakala/rtsync/internal/capture"
	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/logger"
	"github.com/tphakala/rtsync/internal/observability/metrics"
	"github.com/tphakala/rtsync/internal/params"
)

// conn is the subset of paho.Client the bridge uses.
type conn interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Bridge connects the parameter mirror and capture publishers to a broker.
type Bridge struct {
	cfg      Config
	mirror   *params.Mirror
	captures []*capture.Publisher
	log      logger.Logger
	metrics  *metrics.MQTTMetrics
	dial     func(*paho.ClientOptions) conn

	conn conn

	mu       sync.Mutex
	limiters map[params.ID]*rate.Limiter

	// stateMu serializes state publication
	stateMu   sync.Mutex
	published map[params.ID]float32
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(log logger.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// WithMetrics records connection and message counters.
func WithMetrics(m *metrics.MQTTMetrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithCaptures publishes meters for pubs.
func WithCaptures(pubs ...*capture.Publisher) Option {
	return func(b *Bridge) { b.captures = append(b.captures, pubs...) }
}

// NewBridge creates an unconnected bridge.
func NewBridge(cfg Config, mirror *params.Mirror, opts ...Option) (*Bridge, error) {
	if mirror == nil {
		return nil, errors.Newf("mqtt bridge needs a parameter mirror").
			Component("mqtt").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.Broker == "" {
		return nil, errors.Newf("mqtt broker is not configured").
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.RateLimit <= 0 {
		return nil, errors.Newf("mqtt rate limit must be positive, got %g", cfg.RateLimit).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = def.DisconnectTimeout
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.StateInterval <= 0 {
		cfg.StateInterval = def.StateInterval
	}
	cfg.ClientID = cfg.clientID()

	b := &Bridge{
		cfg:       cfg,
		mirror:    mirror,
		dial:      func(o *paho.ClientOptions) conn { return paho.NewClient(o) },
		limiters:  make(map[params.ID]*rate.Limiter),
		published: make(map[params.ID]float32),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.Global().Module("mqtt")
	}
	return b, nil
}

// Connect dials the broker. paho keeps retrying in the background, so a
// timeout here is logged and the bridge keeps running.
func (b *Bridge) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID(b.cfg.ClientID)
	opts.SetUsername(b.cfg.Username)
	opts.SetPassword(b.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(b.cfg.MaxReconnectDelay)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(b.onConnectionLost)
	opts.SetReconnectingHandler(b.onReconnecting)

	b.conn = b.dial(opts)

	token := b.conn.Connect()
	select {
	case <-token.Done():
	case <-time.After(b.cfg.ConnectTimeout):
		b.log.Warn("MQTT connection timeout, retrying in background",
			logger.String("broker", b.cfg.Broker))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		b.incError("connect")
		return errors.New(fmt.Errorf("connection error: %w", err)).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("broker", b.cfg.Broker).
			Build()
	}
	return nil
}

// Run connects, publishes state and meters until ctx is done, then
// disconnects.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Connect(ctx); err != nil {
		return err
	}
	defer b.Disconnect()

	stateTicker := time.NewTicker(b.cfg.StateInterval)
	defer stateTicker.Stop()

	var meters <-chan time.Time
	if b.cfg.MeterRate > 0 && len(b.captures) > 0 {
		t := time.NewTicker(time.Duration(float64(time.Second) / b.cfg.MeterRate))
		defer t.Stop()
		meters = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stateTicker.C:
			b.PublishState(false)
		case <-meters:
			b.PublishMeters()
		}
	}
}

// IsConnected reports whether the broker connection is up.
func (b *Bridge) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Disconnect closes the broker connection.
func (b *Bridge) Disconnect() {
	if b.conn == nil {
		return
	}
	b.conn.Disconnect(uint(b.cfg.DisconnectTimeout.Milliseconds()))
	b.setConnected(false)
	b.log.Info("disconnected from MQTT broker")
}

func (b *Bridge) onConnect(paho.Client) {
	b.log.Info("connected to MQTT broker", logger.String("broker", b.cfg.Broker))
	b.setConnected(true)

	// clean sessions drop subscriptions, so subscribe on every connect
	filter := setFilter(b.cfg.TopicPrefix)
	token := b.conn.Subscribe(filter, 1, b.handleMessage)
	if !token.WaitTimeout(b.cfg.PublishTimeout) || token.Error() != nil {
		b.incError("subscribe")
		b.log.Error("MQTT subscribe failed",
			logger.String("filter", filter),
			logger.Error(token.Error()))
		return
	}
	b.PublishState(true)
}

func (b *Bridge) onConnectionLost(_ paho.Client, err error) {
	b.log.Warn("connection to MQTT broker lost",
		logger.String("broker", b.cfg.Broker),
		logger.Error(err))
	b.setConnected(false)
	b.incError("connection_lost")
}

func (b *Bridge) onReconnecting(paho.Client, *paho.ClientOptions) {
	if b.metrics != nil {
		b.metrics.ReconnectAttempts.Inc()
	}
}

func (b *Bridge) handleMessage(_ paho.Client, msg paho.Message) {
	if b.metrics != nil {
		b.metrics.MessagesReceived.Inc()
	}
	if err := b.HandleSet(msg.Topic(), msg.Payload()); err != nil {
		b.log.Warn("rejected MQTT set message",
			logger.String("topic", msg.Topic()),
			logger.Error(err))
	}
}

// HandleSet applies one set message. Messages over the per-parameter rate
// are dropped without error.
func (b *Bridge) HandleSet(topic string, payload []byte) error {
	key, ok := paramKey(b.cfg.TopicPrefix, topic)
	if !ok {
		return errors.Newf("unexpected topic %q", topic).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Build()
	}
	id, err := resolveParam(b.mirror, key)
	if err != nil {
		return err
	}
	cmd, err := parseCommand(payload)
	if err != nil {
		return err
	}

	if !b.limiter(id).Allow() {
		if b.metrics != nil {
			b.metrics.RateLimited.Inc()
		}
		return nil
	}

	switch {
	case cmd.toggle:
		_, err = b.mirror.Toggle(id)
	case cmd.reset:
		_, err = b.mirror.Reset(id)
	default:
		_, err = b.mirror.Set(id, cmd.value)
	}
	if err != nil {
		return err
	}
	b.PublishState(false)
	return nil
}

func (b *Bridge) limiter(id params.ID) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Limit(b.cfg.RateLimit), 1)
		b.limiters[id] = l
	}
	return l
}

// PublishState publishes the state topic of every parameter whose value
// changed since the last publication, or of all parameters when force is set.
func (b *Bridge) PublishState(force bool) {
	if !b.IsConnected() {
		return
	}
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	for _, p := range b.mirror.Params() {
		id := p.Descriptor().ID()
		if last, ok := b.published[id]; ok && last == p.Value() && !force {
			continue
		}
		payload := strconv.FormatFloat(float64(p.Value()), 'g', -1, 32)
		if err := b.publish(stateTopic(b.cfg.TopicPrefix, id), payload, b.cfg.Retain); err != nil {
			b.log.Warn("failed to publish parameter state",
				logger.String("param", p.Descriptor().Name()),
				logger.Error(err))
			continue
		}
		b.published[id] = p.Value()
	}
}

// PublishMeters publishes the peak level of every capture channel.
func (b *Bridge) PublishMeters() {
	if !b.IsConnected() {
		return
	}
	for _, pub := range b.captures {
		var peaks []float32
		pub.Read(func(v capture.View) {
			peaks = make([]float32, v.Channels())
			for ch := range peaks {
				peaks[ch] = capture.PeakDB(v.Peak(ch), b.cfg.MeterFloor)
			}
		})
		for ch, db := range peaks {
			payload := strconv.FormatFloat(float64(db), 'f', 1, 32)
			if err := b.publish(meterTopic(b.cfg.TopicPrefix, pub.Name(), ch), payload, false); err != nil {
				b.log.Debug("failed to publish meter",
					logger.String("capture", pub.Name()),
					logger.Error(err))
				return
			}
		}
	}
}

func (b *Bridge) publish(topic, payload string, retain bool) error {
	start := time.Now()
	token := b.conn.Publish(topic, 0, retain, payload)
	if !token.WaitTimeout(b.cfg.PublishTimeout) {
		b.incError("publish")
		return errors.Newf("publish timeout").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	if err := token.Error(); err != nil {
		b.incError("publish")
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	if b.metrics != nil {
		b.metrics.ObservePublish(time.Since(start))
	}
	return nil
}

func (b *Bridge) setConnected(connected bool) {
	if b.metrics != nil {
		b.metrics.SetConnected(connected)
	}
}

func (b *Bridge) incError(op string) {
	if b.metrics != nil {
		b.metrics.IncError(op)
	}
}
