package hal

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all packages.
var (
	// ErrInvalidState is returned when an operation is not legal in the
	// current lifecycle phase of the object.
	ErrInvalidState = errors.New("hal: invalid state")

	// ErrInvalidCommand is returned when a recorded command violates the HAL
	// contract. The command buffer becomes Invalid.
	ErrInvalidCommand = errors.New("hal: invalid command")

	// ErrHazardMismatch is returned when an explicit barrier declares an old
	// state that does not match the tracked state of the resource.
	ErrHazardMismatch = errors.New("hal: barrier state mismatch")

	// ErrDanglingResource is returned when a destroyed handle is referenced.
	ErrDanglingResource = errors.New("hal: dangling resource")

	// ErrOutOfMemory is returned when a resource cannot be allocated.
	ErrOutOfMemory = errors.New("hal: out of memory")

	// ErrInUse is returned when an object is still pending on a queue.
	ErrInUse = errors.New("hal: object in use")

	// ErrDeviceLost is returned after the native context reported an
	// unrecoverable failure. It is fatal for the whole device.
	ErrDeviceLost = errors.New("hal: device lost")

	// ErrTimeout is returned when a fence wait expires.
	ErrTimeout = errors.New("hal: timeout")
)

// CommandError locates a failure at a recorded command.
type CommandError struct {
	// Buffer is the debug label of the command buffer.
	Buffer string
	// Index is the position of the command in the buffer.
	Index int
	// Command is the command type name.
	Command string
	// Err is the underlying error, wrapping one of the sentinels above.
	Err error
}

func (e *CommandError) Error() string {
	if e.Buffer != "" {
		return fmt.Sprintf("%s[%d] %s: %v", e.Buffer, e.Index, e.Command, e.Err)
	}
	return fmt.Sprintf("command %d (%s): %v", e.Index, e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
