package audiocore

import (
	"github.com/tphakala/rtsync/internal/errors"
)

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

var (
	// ErrInvalidChannels is returned when a channel count is outside 1..MaxChannels.
	ErrInvalidChannels = errors.New(errors.NewStd("invalid channel count")).
				Component(ComponentAudioCore).
				Category(errors.CategoryValidation).
				Context("resource", "channels").
				Build()

	// ErrInvalidBlockSize is returned for a non-positive maximum block size.
	ErrInvalidBlockSize = errors.New(errors.NewStd("invalid block size")).
				Component(ComponentAudioCore).
				Category(errors.CategoryValidation).
				Context("resource", "block_size").
				Build()

	// ErrFramesExceedBuffer is returned by Buffer.SetFrames when the block
	// is larger than the buffer was built for.
	ErrFramesExceedBuffer = errors.New(errors.NewStd("frame count exceeds buffer capacity")).
				Component(ComponentAudioCore).
				Category(errors.CategoryLimit).
				Context("resource", "buffer").
				Build()

	// ErrNoProcessor is returned when a driver is built without a Processor.
	ErrNoProcessor = errors.New(errors.NewStd("no processor configured")).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()

	// ErrNoStore is returned when a driver is built without a parameter store.
	ErrNoStore = errors.New(errors.NewStd("no parameter store configured")).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()

	// ErrDeviceUnavailable is returned by engines when no usable device exists.
	ErrDeviceUnavailable = errors.New(errors.NewStd("audio device unavailable")).
				Component(ComponentAudioCore).
				Category(errors.CategoryAudioDevice).
				Build()

	// ErrEngineRunning is returned by Engine.Start on a running engine.
	ErrEngineRunning = errors.New(errors.NewStd("audio engine already running")).
				Component(ComponentAudioCore).
				Category(errors.CategoryState).
				Build()

	// ErrUnknownEngine is returned by engine factories for an unknown backend name.
	ErrUnknownEngine = errors.New(errors.NewStd("unknown audio engine")).
				Component(ComponentAudioCore).
				Category(errors.CategoryConfiguration).
				Build()
)
