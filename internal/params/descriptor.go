// Package params synchronizes control parameters between non-realtime
// producers (UI, HTTP, MQTT) and the realtime audio thread.
//
// The Store is the audio side. It owns the applied value of every parameter
// and one Channel per parameter. Producers call Announce from any goroutine;
// the audio thread calls Update once per block, which drains the channel and
// keeps only the newest value. A Mirror is a UI-side copy built once from the
// Store's descriptors; every change made through it is announced to the Store.
package params

import (
	"fmt"
	"math"

	"github.com/tphakala/rtsync/internal/errors"
)

// ID identifies a parameter. IDs are chosen by the application and never reused.
type ID int

// Descriptor is the immutable definition of one parameter.
type Descriptor struct {
	id   ID
	name string
	min  float32
	max  float32
	init float32
}

// NewDescriptor validates and returns a descriptor.
func NewDescriptor(id ID, name string, minValue, maxValue, initValue float32) (Descriptor, error) {
	switch {
	case name == "":
		return Descriptor{}, errors.Newf("parameter %d has no name", id).
			Component(ComponentParams).
			Category(errors.CategoryValidation).
			Build()
	case isNaN(minValue) || isNaN(maxValue) || isNaN(initValue):
		return Descriptor{}, errors.Newf("parameter %q has NaN bounds", name).
			Component(ComponentParams).
			Category(errors.CategoryValidation).
			Build()
	case minValue > maxValue:
		return Descriptor{}, errors.Newf("parameter %q: min %g greater than max %g", name, minValue, maxValue).
			Component(ComponentParams).
			Category(errors.CategoryValidation).
			Context("param_id", int(id)).
			Build()
	case initValue < minValue || initValue > maxValue:
		return Descriptor{}, errors.Newf("parameter %q: init %g outside [%g, %g]", name, initValue, minValue, maxValue).
			Component(ComponentParams).
			Category(errors.CategoryValidation).
			Context("param_id", int(id)).
			Build()
	}
	return Descriptor{id: id, name: name, min: minValue, max: maxValue, init: initValue}, nil
}

// MustDescriptor is NewDescriptor for package-level declarations; it panics on
// invalid input.
func MustDescriptor(id ID, name string, minValue, maxValue, initValue float32) Descriptor {
	d, err := NewDescriptor(id, name, minValue, maxValue, initValue)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Descriptor) ID() ID        { return d.id }
func (d Descriptor) Name() string  { return d.name }
func (d Descriptor) Min() float32  { return d.min }
func (d Descriptor) Max() float32  { return d.max }
func (d Descriptor) Init() float32 { return d.init }

// Range returns max - min.
func (d Descriptor) Range() float32 { return d.max - d.min }

// Clamp limits v to [min, max].
func (d Descriptor) Clamp(v float32) float32 {
	return min(max(v, d.min), d.max)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s(%d) [%g, %g] init %g", d.name, d.id, d.min, d.max, d.init)
}

func isNaN(v float32) bool {
	return math.IsNaN(float64(v))
}
