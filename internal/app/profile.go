package app

import (
	"slices"

	"github.com/tphakala/rtsync/internal/audiocore"
	"github.com/tphakala/rtsync/internal/dsp/scope"
	"github.com/tphakala/rtsync/internal/dsp/utility"
	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/params"
	"github.com/tphakala/rtsync/internal/ui"
)

// Capture names shared by every profile.
const (
	ScopeCapture = "scope"
	MeterCapture = "meter"
)

// Profile describes one application: the parameters it registers, the
// processor it runs and its screen.
type Profile struct {
	Name        string
	Descriptors []params.Descriptor
	// NewProcessor is called after the store is sealed.
	NewProcessor func(store *params.Store) (audiocore.Processor, error)
	MuteParam    params.ID
	HasMute      bool
	Layout       ui.Layout
}

// Utility is the gain, pan and mute application.
func Utility() Profile {
	return Profile{
		Name:        "utility",
		Descriptors: utility.Descriptors(),
		NewProcessor: func(store *params.Store) (audiocore.Processor, error) {
			return utility.New(store)
		},
		MuteParam: utility.MuteID,
		HasMute:   true,
		Layout: ui.Layout{
			Title: "rtsync utility",
			Controls: []ui.Control{
				{Kind: ui.KnobControl, Param: utility.GainID},
				{Kind: ui.SliderControl, Param: utility.PanID},
				{Kind: ui.ToggleControl, Param: utility.MuteID},
			},
			Displays: []ui.Display{
				{Kind: ui.OscilloscopeDisplay, Capture: ScopeCapture, Rows: 11},
				{Kind: ui.VolumeDisplay, Capture: MeterCapture},
			},
		},
	}
}

// Scope is the pass-through oscilloscope application.
func Scope() Profile {
	return Profile{
		Name: "scope",
		NewProcessor: func(*params.Store) (audiocore.Processor, error) {
			return scope.Processor{}, nil
		},
		Layout: ui.Layout{
			Title: "rtsync scope",
			Displays: []ui.Display{
				{Kind: ui.OscilloscopeDisplay, Capture: ScopeCapture, Rows: 11},
				{Kind: ui.SpectrumDisplay, Capture: ScopeCapture, Rows: 8},
				{Kind: ui.VolumeDisplay, Capture: MeterCapture},
			},
		},
	}
}

var profiles = map[string]func() Profile{
	"utility": Utility,
	"scope":   Scope,
}

// ProfileNames lists the registered profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ProfileByName returns the named profile.
func ProfileByName(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, errors.Newf("unknown application %q", name).
			Component("app").
			Category(errors.CategoryNotFound).
			Build()
	}
	return p(), nil
}
