package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/tphakala/rtsync/internal/capture"
	"github.com/tphakala/rtsync/internal/params"
)

// ParamMetrics exposes parameter traffic and capture publication.
type ParamMetrics struct {
	registry *prometheus.Registry

	announces *prometheus.CounterVec

	mu       sync.RWMutex
	resolved map[params.ID]prometheus.Counter
}

// NewParamMetrics creates and registers the parameter collectors.
func NewParamMetrics(registry *prometheus.Registry) (*ParamMetrics, error) {
	m := &ParamMetrics{
		registry: registry,
		resolved: make(map[params.ID]prometheus.Counter),
	}
	m.announces = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "param",
		Name:      "announces_total",
		Help:      "Total number of accepted parameter announcements",
	}, []string{"param"})

	if err := registry.Register(m.announces); err != nil {
		return nil, fmt.Errorf("failed to register parameter metrics: %w", err)
	}
	return m, nil
}

// WatchStore counts announcements on store and exports each parameter's
// overflow counter. Call it before the store is sealed.
func (m *ParamMetrics) WatchStore(store *params.Store) error {
	for _, d := range store.Descriptors() {
		m.mu.Lock()
		m.resolved[d.ID()] = m.announces.WithLabelValues(d.Name())
		m.mu.Unlock()

		id := d.ID()
		overflow := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "param",
			Name:        "overflows_total",
			Help:        "Announcements that found the change channel full and were coalesced",
			ConstLabels: prometheus.Labels{"param": d.Name()},
		}, func() float64 {
			n, _ := store.Overflows(id)
			return float64(n)
		})
		if err := m.registry.Register(overflow); err != nil {
			return fmt.Errorf("failed to register overflow metric for %s: %w", d.Name(), err)
		}
	}

	store.OnAnnounce(func(id params.ID, _ float32) {
		m.mu.RLock()
		c := m.resolved[id]
		m.mu.RUnlock()
		if c != nil {
			c.Inc()
		}
	})
	return nil
}

// WatchCapture exports the publication generation of p.
func (m *ParamMetrics) WatchCapture(p *capture.Publisher) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "capture",
		Name:        "generation",
		Help:        "Number of views published for the capture",
		ConstLabels: prometheus.Labels{"capture": p.Name()},
	}, func() float64 {
		return float64(p.Generation())
	})
	if err := m.registry.Register(g); err != nil {
		return fmt.Errorf("failed to register capture metric for %s: %w", p.Name(), err)
	}
	return nil
}

// Announces returns the announcement count recorded for the named parameter.
func (m *ParamMetrics) Announces(name string) float64 {
	c, err := m.announces.GetMetricWithLabelValues(name)
	if err != nil {
		return 0
	}
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}
