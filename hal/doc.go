// Package hal holds the vocabulary shared by every part of the command
// emulation core: resource usage states, access kinds, pipeline stages and
// the error taxonomy surfaced to HAL callers.
//
// The package has no dependencies on the rest of the module so that the
// resource table, the recorder, the hazard tracker and the submission engine
// can all speak the same terms without import cycles.
//
// # Usage States
//
// Every buffer and image carries exactly one [UsageState] at any point of a
// queue's timeline. Transitions between states are either declared by the
// caller (an explicit pipeline barrier) or derived by the hazard tracker.
//
// # Errors
//
// All failures wrap one of the sentinel errors below and can be tested with
// errors.Is:
//
//   - [ErrInvalidState]: lifecycle misuse (recoverable by fixing call order)
//   - [ErrInvalidCommand]: HAL contract violation while recording
//   - [ErrHazardMismatch]: explicit barrier disagrees with tracked state
//   - [ErrDanglingResource]: a destroyed handle was referenced
//   - [ErrOutOfMemory]: resource creation failed
//   - [ErrInUse]: the object is still pending on a queue
//   - [ErrDeviceLost]: the native context failed; fatal for the device
//   - [ErrTimeout]: a fence wait expired
package hal
