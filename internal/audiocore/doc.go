// Package audiocore runs the realtime audio callback.
//
// # Architecture Overview
//
// An Engine owns the audio device and calls a Callback once per device
// period. The Driver is the Callback: for every block it
//
//  1. receives and de-interleaves the input,
//  2. drains pending parameter announcements from the params.Store,
//  3. runs the Processor, or clears the output while the mute parameter is on,
//  4. writes input or output into the configured capture rings,
//  5. publishes each capture for the UI,
//  6. interleaves the output back into the device buffer.
//
// The returned Code tells the engine to keep going, to drain and stop after
// the current buffer, or to abort.
//
// # Realtime Rules
//
// Everything reachable from Driver.Process runs on the audio thread. It
// does not allocate, take a lock, log or perform I/O once the driver is
// built. Processor implementations must follow the same rules. A panic in a
// Processor is recovered, counted and turned into a silent block.
//
// # Concurrency
//
//   - Driver: Process is called from one audio thread at a time. Stats and
//     Close are safe from any goroutine.
//   - Buffer: owned by the driver and lent to the Processor for one block.
//   - Engine: Start, Stop and Done are safe from control goroutines.
package audiocore
