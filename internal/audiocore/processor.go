package audiocore

// Code is the per-block verdict returned to the engine.
type Code int

const (
	// Continue keeps the stream running.
	Continue Code = 0
	// Drain plays out the current buffer and then stops the stream.
	Drain Code = 1
	// Abort stops the stream immediately.
	Abort Code = 2
)

// String returns the code name.
func (c Code) String() string {
	switch c {
	case Continue:
		return "continue"
	case Drain:
		return "drain"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Processor renders one block of audio. in holds frames of de-interleaved
// input; out must be fully written. Process runs on the audio thread.
type Processor interface {
	Process(in, out *Buffer, frames int) Code
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(in, out *Buffer, frames int) Code

// Process calls f.
func (f ProcessorFunc) Process(in, out *Buffer, frames int) Code {
	return f(in, out, frames)
}

// Callback is what an Engine calls for every device period with interleaved
// float32 samples. in is nil for output-only devices.
type Callback func(out, in []float32, frames int) Code
