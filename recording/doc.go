// Package recording captures HAL commands into replayable command buffers.
//
// Recording performs no native calls. Each command is stored as a typed
// struct together with the resources it touches, their access, the
// pipeline stage and the usage state the command requires. Hazards can
// then be derived from the record alone, without re-reading native state.
//
// # Lifecycle
//
//	Initial --Begin--> Recording --End--> Executable --submit--> Pending
//	   ^                   |                                       |
//	   +------Reset--------+------- contract violation --> Invalid |
//	                                                               v
//	                                          Executable (or Invalid for one-time buffers)
//
// Statically checkable contract violations, such as a draw with no bound
// pipeline or a copy inside a render pass, fail immediately with
// hal.ErrInvalidCommand and invalidate the buffer. References to destroyed
// resources fail with hal.ErrDanglingResource.
//
// # Payloads
//
// Variable-length payloads (vertex bindings, copy regions, barrier lists,
// update data) live in the buffer's ArgPool and are referenced from
// commands by typed Spans, so a recorded command is a small value.
//
// # Concurrency
//
// A CommandBuffer must be recorded from one goroutine at a time. Different
// command buffers share no mutable state and may be recorded concurrently.
package recording
