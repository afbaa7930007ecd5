package recording

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/pipeline"
	"github.com/gogpu/cmdemu/resource"
)

// ErrNilTable is returned by New when no resource table is given.
var ErrNilTable = errors.New("recording: resource table is nil")

// Status is the lifecycle phase of a command buffer.
type Status uint8

// Command buffer phases.
const (
	StatusInitial Status = iota
	StatusRecording
	StatusExecutable
	StatusPending
	StatusInvalid
)

var statusNames = [...]string{
	StatusInitial:    "Initial",
	StatusRecording:  "Recording",
	StatusExecutable: "Executable",
	StatusPending:    "Pending",
	StatusInvalid:    "Invalid",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

// BeginFlags modify a recording.
type BeginFlags uint8

// OneTimeSubmit makes the buffer Invalid after its first completion.
const OneTimeSubmit BeginFlags = 1

// op is one recorded command with its resource uses.
type op struct {
	cmd  Command
	uses Span[Use]
}

// boundSet is a bound descriptor set with the uses it contributes to work
// commands.
type boundSet struct {
	uses []Use
}

// passState is the open render pass.
type passState struct {
	colors      Span[Attachment]
	depth       Attachment
	attachments map[resource.Handle]hal.UsageState
}

// CommandBuffer is an emulated command buffer: an ordered, replayable
// sequence of commands.
type CommandBuffer struct {
	label string
	tbl   *resource.Table

	mu      sync.Mutex
	status  Status
	flags   BeginFlags
	lastErr error

	ops  []op
	pool ArgPool
	refs map[resource.Handle]struct{}

	// Recording-time binding state used for static checks and for
	// snapshotting the resources reachable from work commands.
	graphics *pipeline.Graphics
	compute  *pipeline.Compute
	sets     [2]map[uint32]boundSet
	vertex   map[uint32]VertexBinding
	index    *BindIndexBuffer
	pass     *passState
	scratch  useSet
}

// New creates a command buffer in the Initial state.
func New(tbl *resource.Table, label string) (*CommandBuffer, error) {
	if tbl == nil {
		return nil, ErrNilTable
	}
	return &CommandBuffer{
		label: label,
		tbl:   tbl,
		refs:  make(map[resource.Handle]struct{}),
	}, nil
}

// Label returns the debug label.
func (cb *CommandBuffer) Label() string { return cb.label }

// Status returns the lifecycle phase.
func (cb *CommandBuffer) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.status
}

// Err returns the error that invalidated the buffer, if any.
func (cb *CommandBuffer) Err() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastErr
}

// Begin starts recording. The buffer must be Initial.
func (cb *CommandBuffer) Begin() error {
	return cb.BeginWith(0)
}

// BeginWith starts recording with flags.
func (cb *CommandBuffer) BeginWith(flags BeginFlags) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status != StatusInitial {
		return fmt.Errorf("recording: begin %q in %s: %w", cb.label, cb.status, hal.ErrInvalidState)
	}
	cb.status = StatusRecording
	cb.flags = flags
	return nil
}

// End finishes recording. The buffer becomes Executable.
func (cb *CommandBuffer) End() error {
	if err := cb.recording("End"); err != nil {
		return err
	}
	if cb.pass != nil {
		return cb.fail("End", fmt.Errorf("render pass still open: %w", hal.ErrInvalidCommand))
	}
	cb.mu.Lock()
	cb.status = StatusExecutable
	cb.mu.Unlock()
	cb.clearBindings()
	return nil
}

// Reset clears the buffer and returns it to Initial. It fails with
// hal.ErrInUse while the buffer is Pending.
func (cb *CommandBuffer) Reset() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status == StatusPending {
		return fmt.Errorf("recording: reset %q: %w", cb.label, hal.ErrInUse)
	}
	clear(cb.ops)
	cb.ops = cb.ops[:0]
	cb.pool.reset()
	clear(cb.refs)
	cb.clearBindings()
	cb.status = StatusInitial
	cb.flags = 0
	cb.lastErr = nil
	return nil
}

func (cb *CommandBuffer) clearBindings() {
	cb.graphics = nil
	cb.compute = nil
	cb.sets = [2]map[uint32]boundSet{}
	cb.vertex = nil
	cb.index = nil
	cb.pass = nil
}

// recording checks that commands may be appended.
func (cb *CommandBuffer) recording(name string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status != StatusRecording {
		return fmt.Errorf("recording: %s on %q in %s: %w", name, cb.label, cb.status, hal.ErrInvalidState)
	}
	return nil
}

// fail invalidates the buffer and returns err located at the next command.
func (cb *CommandBuffer) fail(name string, err error) error {
	ce := &hal.CommandError{Buffer: cb.label, Index: len(cb.ops), Command: name, Err: err}
	cb.mu.Lock()
	cb.status = StatusInvalid
	cb.lastErr = ce
	cb.mu.Unlock()
	cb.clearBindings()
	return ce
}

// invalid fails command t with a formatted hal.ErrInvalidCommand.
func (cb *CommandBuffer) invalid(t CommandType, format string, args ...any) error {
	return cb.fail(t.String(), fmt.Errorf(format+": %w", append(args, hal.ErrInvalidCommand)...))
}

func (cb *CommandBuffer) append(c Command, uses []Use) {
	cb.ops = append(cb.ops, op{cmd: c, uses: cb.pool.Uses.Add(uses...)})
}

// Len returns the number of recorded commands.
func (cb *CommandBuffer) Len() int { return len(cb.ops) }

// Command returns command i.
func (cb *CommandBuffer) Command(i int) Command { return cb.ops[i].cmd }

// Uses returns the resource uses of command i.
func (cb *CommandBuffer) Uses(i int) []Use { return cb.pool.Uses.Get(cb.ops[i].uses) }

// Barriers returns the explicit barriers of command i, if it is a
// PipelineBarrier.
func (cb *CommandBuffer) Barriers(i int) []Barrier {
	if pb, ok := cb.ops[i].cmd.(PipelineBarrier); ok {
		return cb.pool.Barriers.Get(pb.Barriers)
	}
	return nil
}

// Pool returns the payload pool. It must not be modified.
func (cb *CommandBuffer) Pool() *ArgPool { return &cb.pool }

// Resources returns every handle referenced by the recorded commands.
func (cb *CommandBuffer) Resources() []resource.Handle {
	out := make([]resource.Handle, 0, len(cb.refs))
	for h := range cb.refs {
		out = append(out, h)
	}
	return out
}

// Validate checks that every referenced resource is still alive.
func (cb *CommandBuffer) Validate() error {
	var errs []error
	for h := range cb.refs {
		if !cb.tbl.Alive(h) {
			errs = append(errs, fmt.Errorf("recording: %q references %v: %w", cb.label, h, hal.ErrDanglingResource))
		}
	}
	return errors.Join(errs...)
}

// MarkPending moves an Executable buffer to Pending. The submission engine
// calls it when the buffer is accepted for execution.
func (cb *CommandBuffer) MarkPending() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status != StatusExecutable {
		return fmt.Errorf("recording: submit %q in %s: %w", cb.label, cb.status, hal.ErrInvalidState)
	}
	cb.status = StatusPending
	return nil
}

// Unmark returns a Pending buffer whose submission was rejected before
// any work started to Executable.
func (cb *CommandBuffer) Unmark() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status == StatusPending {
		cb.status = StatusExecutable
	}
}

// Complete ends a pending execution. One-time buffers become Invalid.
func (cb *CommandBuffer) Complete() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status != StatusPending {
		return
	}
	if cb.flags&OneTimeSubmit != 0 {
		cb.status = StatusInvalid
		return
	}
	cb.status = StatusExecutable
}

// Invalidate marks the buffer Invalid with cause err. It only resets
// Pending buffers when force is set, which the submission engine uses on
// device loss.
func (cb *CommandBuffer) Invalidate(err error, force bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.status == StatusPending && !force {
		return
	}
	cb.status = StatusInvalid
	cb.lastErr = err
}
