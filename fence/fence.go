// Package fence provides the host-visible synchronization primitives of
// the submission engine: fences that report completion of a submission,
// and binary semaphores that order submissions.
package fence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/cmdemu/hal"
)

// Status is the state of a fence.
type Status uint8

// Fence states.
const (
	Unsignaled Status = iota
	Signaled
	// Lost means the device was lost before the fenced work completed.
	Lost
)

func (s Status) String() string {
	switch s {
	case Unsignaled:
		return "Unsignaled"
	case Signaled:
		return "Signaled"
	case Lost:
		return "Lost"
	}
	return "Unknown"
}

// Fence is signaled by the submission engine when the work it was
// submitted with completes.
type Fence struct {
	label string

	mu     sync.Mutex
	status Status
	armed  bool
	done   chan struct{}
}

// New returns an unsignaled fence.
func New(label string) *Fence {
	return &Fence{label: label, done: make(chan struct{})}
}

// NewSignaled returns a fence that starts signaled.
func NewSignaled(label string) *Fence {
	f := New(label)
	f.status = Signaled
	close(f.done)
	return f
}

// Label returns the debug label.
func (f *Fence) Label() string { return f.label }

// Status returns the current state.
func (f *Fence) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Pending reports whether the fence is attached to in-flight work.
func (f *Fence) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed
}

// Reset returns a signaled fence to Unsignaled. It fails with hal.ErrInUse
// while the fence is attached to in-flight work, and with
// hal.ErrDeviceLost for lost fences.
func (f *Fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.armed:
		return fmt.Errorf("fence: reset %q: %w", f.label, hal.ErrInUse)
	case f.status == Lost:
		return fmt.Errorf("fence: reset %q: %w", f.label, hal.ErrDeviceLost)
	case f.status == Signaled:
		f.status = Unsignaled
		f.done = make(chan struct{})
	}
	return nil
}

// Arm attaches the fence to a submission. The fence must be Unsignaled and
// not already attached.
func (f *Fence) Arm() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.armed || f.status != Unsignaled {
		return fmt.Errorf("fence: submit with %q (%s, pending=%t): %w", f.label, f.status, f.armed, hal.ErrInvalidState)
	}
	f.armed = true
	return nil
}

// Disarm detaches the fence from a submission that was rejected before
// any work started.
func (f *Fence) Disarm() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = false
}

// Signal marks the fenced work complete and wakes waiters.
func (f *Fence) Signal() {
	f.resolve(Signaled)
}

// Lose marks the fenced work as lost with the device and wakes waiters.
func (f *Fence) Lose() {
	f.resolve(Lost)
}

func (f *Fence) resolve(s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = false
	if f.status != Unsignaled {
		return
	}
	f.status = s
	close(f.done)
}

// Wait blocks until the fence resolves or timeout expires. A zero timeout
// polls. It returns nil when signaled, an error wrapping hal.ErrDeviceLost
// when lost, and one wrapping hal.ErrTimeout on expiry. Waiting never
// changes the fence or any resource state.
func (f *Fence) Wait(timeout time.Duration) error {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-done:
			return f.result()
		default:
			return fmt.Errorf("fence: %q: %w", f.label, hal.ErrTimeout)
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return f.result()
	case <-t.C:
		return fmt.Errorf("fence: %q after %v: %w", f.label, timeout, hal.ErrTimeout)
	}
}

// WaitContext blocks until the fence resolves or ctx is done. Context
// expiry is reported as hal.ErrTimeout wrapping the context error.
func (f *Fence) WaitContext(ctx context.Context) error {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()

	select {
	case <-done:
		return f.result()
	case <-ctx.Done():
		return fmt.Errorf("fence: %q: %w: %w", f.label, hal.ErrTimeout, ctx.Err())
	}
}

func (f *Fence) result() error {
	if f.Status() == Lost {
		return fmt.Errorf("fence: %q: %w", f.label, hal.ErrDeviceLost)
	}
	return nil
}
