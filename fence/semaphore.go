package fence

import (
	"context"
	"fmt"

	"github.com/gogpu/cmdemu/hal"
)

// Semaphore is a binary semaphore ordering one submission after another.
// A wait consumes the signal.
type Semaphore struct {
	label string
	ch    chan struct{}
}

// NewSemaphore returns an unsignaled semaphore.
func NewSemaphore(label string) *Semaphore {
	return &Semaphore{label: label, ch: make(chan struct{}, 1)}
}

// Label returns the debug label.
func (s *Semaphore) Label() string { return s.label }

// Signal signals the semaphore. Signaling an already signaled binary
// semaphore fails with hal.ErrInvalidState.
func (s *Semaphore) Signal() error {
	select {
	case s.ch <- struct{}{}:
		return nil
	default:
		return fmt.Errorf("fence: semaphore %q already signaled: %w", s.label, hal.ErrInvalidState)
	}
}

// Signaled reports whether a signal is pending.
func (s *Semaphore) Signaled() bool { return len(s.ch) == 1 }

// Wait blocks until the semaphore is signaled and consumes the signal.
func (s *Semaphore) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("fence: semaphore %q: %w: %w", s.label, hal.ErrTimeout, ctx.Err())
	}
}
