// Package engines builds audio engines by backend name.
package engines

import (
	"github.com/tphakala/rtsync/internal/audiocore"
	"github.com/tphakala/rtsync/internal/audiocore/engines/headless"
	"github.com/tphakala/rtsync/internal/audiocore/engines/malgo"
	"github.com/tphakala/rtsync/internal/audiocore/engines/oto"
	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/logger"
)

// Backends lists the accepted backend names.
var Backends = []string{malgo.Name, oto.Name, headless.Name}

// New creates the engine for backend. tone configures the headless test
// tone and is ignored by device backends.
func New(backend string, cfg audiocore.EngineConfig, tone headless.Options, log logger.Logger) (audiocore.Engine, error) {
	switch backend {
	case malgo.Name, "soundcard", "":
		return malgo.New(cfg, log), nil
	case oto.Name:
		if cfg.InputChannels > 0 {
			log.Warn("oto backend has no input, capture channels will be silent",
				logger.Int("input_channels", cfg.InputChannels))
		}
		return oto.New(cfg, log), nil
	case headless.Name:
		return headless.New(cfg, tone, log), nil
	default:
		return nil, errors.New(audiocore.ErrUnknownEngine).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryConfiguration).
			Context("backend", backend).
			Build()
	}
}
