// Package metrics provides Prometheus collectors for the rtsync components.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rtsync"

// AudioMetrics counts audio callback activity. It implements
// audiocore.Observer; every collector is resolved up front so the audio
// thread only performs atomic updates.
type AudioMetrics struct {
	registry *prometheus.Registry

	blocks        prometheus.Counter
	frames        prometheus.Counter
	mutedBlocks   prometheus.Counter
	faults        prometheus.Counter
	blockDuration prometheus.Histogram

	collectors []prometheus.Collector
}

// NewAudioMetrics creates and registers the audio collectors.
func NewAudioMetrics(registry *prometheus.Registry) (*AudioMetrics, error) {
	m := &AudioMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register audio metrics: %w", err)
	}
	return m, nil
}

func (m *AudioMetrics) initMetrics() {
	m.blocks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "blocks_total",
		Help:      "Total number of audio blocks processed",
	})
	m.frames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "frames_total",
		Help:      "Total number of audio frames processed",
	})
	m.mutedBlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "muted_blocks_total",
		Help:      "Total number of blocks cleared by the mute parameter",
	})
	m.faults = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "processor_faults_total",
		Help:      "Total number of processor panics recovered in the audio callback",
	})
	m.blockDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "block_duration_seconds",
		Help:      "Time spent in the audio callback per block",
		Buckets:   prometheus.ExponentialBuckets(10e-6, 2, 12), // 10µs to ~20ms
	})

	m.collectors = []prometheus.Collector{m.blocks, m.frames, m.mutedBlocks, m.faults, m.blockDuration}
}

// BlockProcessed records one block. Audio thread safe.
func (m *AudioMetrics) BlockProcessed(frames int, elapsed time.Duration, muted bool) {
	m.blocks.Inc()
	m.frames.Add(float64(frames))
	if muted {
		m.mutedBlocks.Inc()
	}
	m.blockDuration.Observe(elapsed.Seconds())
}

// ProcessorFault records a recovered processor panic. Audio thread safe.
func (m *AudioMetrics) ProcessorFault() {
	m.faults.Inc()
}

// Describe implements the Collector interface
func (m *AudioMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *AudioMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
