package params

import (
	"sync"
)

// Source is what a Mirror needs from the audio side: the registered
// descriptors, their current values, and somewhere to announce changes.
// *Store implements it.
type Source interface {
	Descriptors() []Descriptor
	Value(id ID) (float32, error)
	Announce(id ID, v float32) error
}

// GuiParameter is the interactive copy of one parameter.
type GuiParameter struct {
	desc  Descriptor
	value float32
}

// Descriptor returns the parameter's definition.
func (g GuiParameter) Descriptor() Descriptor { return g.desc }

// Value returns the interactive value.
func (g GuiParameter) Value() float32 { return g.value }

// Mirror holds the interactive side's parameter values. Its parameter set is
// fixed at construction as a copy of the Store's descriptors. Every change
// goes through the Mirror's lock and is announced before the lock is
// released, so the Mirror and the announce order agree.
type Mirror struct {
	mu     sync.RWMutex
	params []GuiParameter
	index  map[ID]int
	src    Source
}

// NewMirror snapshots src's descriptors and current values.
func NewMirror(src Source) *Mirror {
	descs := src.Descriptors()
	m := &Mirror{
		params: make([]GuiParameter, len(descs)),
		index:  make(map[ID]int, len(descs)),
		src:    src,
	}
	for i, d := range descs {
		v, err := src.Value(d.ID())
		if err != nil {
			v = d.Init()
		}
		m.params[i] = GuiParameter{desc: d, value: v}
		m.index[d.ID()] = i
	}
	return m
}

// Params returns a copy of all parameters ordered by id.
func (m *Mirror) Params() []GuiParameter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]GuiParameter, len(m.params))
	copy(out, m.params)
	return out
}

// Get returns the parameter for id.
func (m *Mirror) Get(id ID) (GuiParameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[id]
	if !ok {
		return GuiParameter{}, ErrUnknownParameter
	}
	return m.params[i], nil
}

// Value returns the interactive value of id.
func (m *Mirror) Value(id ID) (float32, error) {
	p, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	return p.value, nil
}

// Set clamps v, stores it and announces it. It returns the stored value.
func (m *Mirror) Set(id ID, v float32) (float32, error) {
	if isNaN(v) {
		return 0, ErrInvalidValue
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(id, func(p GuiParameter) float32 { return v })
}

// Adjust adds delta to the current value.
func (m *Mirror) Adjust(id ID, delta float32) (float32, error) {
	if isNaN(delta) {
		return 0, ErrInvalidValue
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(id, func(p GuiParameter) float32 { return p.value + delta })
}

// Reset returns id to its initial value.
func (m *Mirror) Reset(id ID) (float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(id, func(p GuiParameter) float32 { return p.desc.Init() })
}

// Toggle flips a switch parameter: values above the midpoint become min,
// others become max.
func (m *Mirror) Toggle(id ID) (float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(id, func(p GuiParameter) float32 {
		if IsOn(p.desc, p.value) {
			return p.desc.Min()
		}
		return p.desc.Max()
	})
}

func (m *Mirror) setLocked(id ID, next func(GuiParameter) float32) (float32, error) {
	i, ok := m.index[id]
	if !ok {
		return 0, ErrUnknownParameter
	}
	p := &m.params[i]
	v := p.desc.Clamp(next(*p))
	if err := m.src.Announce(id, v); err != nil {
		return p.value, err
	}
	p.value = v
	return v, nil
}

// IsOn reports whether v is in the upper half of d's range.
func IsOn(d Descriptor, v float32) bool {
	return v > d.Min()+d.Range()/2
}
