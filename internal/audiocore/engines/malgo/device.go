package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/rtsync/internal/audiocore"
	"github.com/tphakala/rtsync/internal/errors"
)

// DeviceInfo describes one playback or capture device.
type DeviceInfo struct {
	Index   int
	Name    string
	ID      string
	Default bool

	raw malgo.DeviceInfo
}

// backendForPlatform returns the native backend for the current OS.
func backendForPlatform() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

func initContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext([]malgo.Backend{backendForPlatform()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	return ctx, nil
}

func listDevices(ctx *malgo.AllocatedContext, kind malgo.DeviceType) ([]DeviceInfo, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		// skip the null device
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}
		devices = append(devices, DeviceInfo{
			Index:   i,
			Name:    infos[i].Name(),
			ID:      id,
			Default: infos[i].IsDefault == 1,
			raw:     infos[i],
		})
	}
	return devices, nil
}

// EnumerateDevices lists the devices of kind (malgo.Playback or
// malgo.Capture) on the native backend.
func EnumerateDevices(kind malgo.DeviceType) ([]DeviceInfo, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()
	return listDevices(ctx, kind)
}

// SelectDevice picks a device by name: empty, "default" and "sysdefault"
// select the system default, then exact name, decoded ID and partial name
// are tried in that order.
func SelectDevice(devices []DeviceInfo, name string) (DeviceInfo, error) {
	if name == "" || name == "default" || name == "sysdefault" {
		for _, d := range devices {
			if d.Default {
				return d, nil
			}
		}
		if len(devices) > 0 {
			return devices[0], nil
		}
	}

	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	for _, d := range devices {
		if d.ID == name {
			return d, nil
		}
	}
	for _, d := range devices {
		if name != "" && strings.Contains(d.Name, name) {
			return d, nil
		}
	}

	return DeviceInfo{}, errors.New(audiocore.ErrDeviceUnavailable).
		Component(audiocore.ComponentAudioCore).
		Category(errors.CategoryAudioDevice).
		Context("device_name", name).
		Context("available_devices", len(devices)).
		Build()
}

// DeviceCache memoizes device enumeration. Enumerating ALSA devices can
// take hundreds of milliseconds, and the HTTP and CLI surfaces list them on
// demand.
type DeviceCache struct {
	c    *cache.Cache
	list func(malgo.DeviceType) ([]DeviceInfo, error)
}

// NewDeviceCache returns a cache whose entries expire after ttl.
func NewDeviceCache(ttl time.Duration) *DeviceCache {
	// a zero cleanup interval starts no janitor goroutine; expired entries
	// are replaced on the next lookup
	return &DeviceCache{c: cache.New(ttl, 0), list: EnumerateDevices}
}

// Devices returns the cached device list for kind, enumerating on a miss.
func (dc *DeviceCache) Devices(kind malgo.DeviceType) ([]DeviceInfo, error) {
	key := kindName(kind)
	if v, ok := dc.c.Get(key); ok {
		if devices, ok := v.([]DeviceInfo); ok {
			return devices, nil
		}
	}
	devices, err := dc.list(kind)
	if err != nil {
		return nil, err
	}
	dc.c.Set(key, devices, cache.DefaultExpiration)
	return devices, nil
}

// Invalidate drops every cached list.
func (dc *DeviceCache) Invalidate() { dc.c.Flush() }

func kindName(kind malgo.DeviceType) string {
	switch kind {
	case malgo.Playback:
		return "playback"
	case malgo.Capture:
		return "capture"
	default:
		return "duplex"
	}
}

func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}
