package params

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"sync/atomic"
)

// AudioParameter is the audio-side state of one parameter: its applied
// value and the consumer end of its Channel. Only the audio thread may call
// Update; Value may be read from any goroutine.
type AudioParameter struct {
	desc  Descriptor
	value atomic.Uint32
	ch    *Channel
}

// Descriptor returns the parameter's definition.
func (p *AudioParameter) Descriptor() Descriptor { return p.desc }

// Value returns the last applied value.
func (p *AudioParameter) Value() float32 {
	return math.Float32frombits(p.value.Load())
}

// Update drains pending announcements and applies the newest one. It
// reports whether a pending value was applied. Audio thread only.
func (p *AudioParameter) Update() (float32, bool) {
	v, ok := p.ch.Latest()
	if ok {
		p.value.Store(math.Float32bits(v))
		return v, true
	}
	return p.Value(), false
}

// Overflows returns how many announcements found the channel full.
func (p *AudioParameter) Overflows() uint64 { return p.ch.Overflows() }

func (p *AudioParameter) announce(v float32) bool {
	return p.ch.Push(p.desc.Clamp(v))
}

// Store owns the audio-side parameters.
//
// Parameters are added during setup and the store is sealed before the
// stream starts. After Seal, lookups take no locks and Update, Value and
// Announce never block or allocate.
type Store struct {
	mu        sync.RWMutex
	sealed    atomic.Bool
	slots     int
	index     map[ID]*AudioParameter
	ordered   []*AudioParameter
	announces atomic.Uint64
	listeners []func(ID, float32)
}

// NewStore returns an empty store whose channels hold slots records each.
func NewStore(slots int) *Store {
	if slots <= 0 {
		slots = DefaultChannelSlots
	}
	return &Store{
		slots: slots,
		index: make(map[ID]*AudioParameter),
	}
}

// Add registers a parameter. Setup-time only.
func (s *Store) Add(d Descriptor) (*AudioParameter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed.Load() {
		return nil, ErrStoreSealed
	}
	if _, exists := s.index[d.ID()]; exists {
		return nil, ErrDuplicateParameter
	}

	p := &AudioParameter{desc: d, ch: NewChannel(s.slots)}
	p.value.Store(math.Float32bits(d.Init()))
	s.index[d.ID()] = p
	s.ordered = append(s.ordered, p)
	return p, nil
}

// AddAll registers every descriptor, stopping at the first error.
func (s *Store) AddAll(ds ...Descriptor) error {
	for _, d := range ds {
		if _, err := s.Add(d); err != nil {
			return err
		}
	}
	return nil
}

// OnAnnounce registers fn to be called after every successful Announce,
// on the announcing goroutine. Setup-time only.
func (s *Store) OnAnnounce(fn func(ID, float32)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sealed.Load() {
		s.listeners = append(s.listeners, fn)
	}
}

// Seal freezes the parameter set. It is idempotent.
func (s *Store) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed.Load() {
		return
	}
	slices.SortFunc(s.ordered, func(a, b *AudioParameter) int { return cmp.Compare(a.desc.ID(), b.desc.ID()) })
	s.sealed.Store(true)
}

// Sealed reports whether Seal has been called.
func (s *Store) Sealed() bool { return s.sealed.Load() }

func (s *Store) lookup(id ID) (*AudioParameter, error) {
	var p *AudioParameter
	if s.sealed.Load() {
		p = s.index[id]
	} else {
		s.mu.RLock()
		p = s.index[id]
		s.mu.RUnlock()
	}
	if p == nil {
		return nil, ErrUnknownParameter
	}
	return p, nil
}

// Parameter returns the handle for id. Processors resolve their handles once
// at setup and call Update/Value on them per block.
func (s *Store) Parameter(id ID) (*AudioParameter, error) {
	return s.lookup(id)
}

// Announce submits v for id. Callable from any non-audio goroutine. The
// value is clamped to the parameter's bounds.
func (s *Store) Announce(id ID, v float32) error {
	p, err := s.lookup(id)
	if err != nil {
		return err
	}
	if isNaN(v) {
		return ErrInvalidValue
	}
	p.announce(v)
	s.announces.Add(1)
	for _, fn := range s.announceListeners() {
		fn(id, p.desc.Clamp(v))
	}
	return nil
}

// announceListeners returns the listener list. Before Seal it may still
// grow, so it is read under the lock.
func (s *Store) announceListeners() []func(ID, float32) {
	if s.sealed.Load() {
		return s.listeners
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listeners
}

// Update drains id's channel and returns the applied value. Audio thread only.
func (s *Store) Update(id ID) (float32, error) {
	p, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	v, _ := p.Update()
	return v, nil
}

// UpdateAll drains every parameter's channel, in id order once sealed.
// Audio thread only.
func (s *Store) UpdateAll() {
	if !s.sealed.Load() {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	for _, p := range s.ordered {
		p.Update()
	}
}

// Value returns the last applied value of id.
func (s *Store) Value(id ID) (float32, error) {
	p, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return p.Value(), nil
}

// Descriptors returns the registered descriptors ordered by id.
func (s *Store) Descriptors() []Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Descriptor, len(s.ordered))
	for i, p := range s.ordered {
		out[i] = p.desc
	}
	slices.SortFunc(out, func(a, b Descriptor) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

// Len returns the number of registered parameters.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered)
}

// Overflows returns the overflow count of id.
func (s *Store) Overflows(id ID) (uint64, error) {
	p, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return p.Overflows(), nil
}

// Announces returns the total number of accepted announcements.
func (s *Store) Announces() uint64 { return s.announces.Load() }
