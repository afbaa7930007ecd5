package queue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/cmdemu/hal"
)

// Health records device loss. All queues of a device share one Health.
type Health struct {
	mu    sync.Mutex
	err   error
	hooks []func(error)
}

// Err returns nil while the device is healthy and an error wrapping
// hal.ErrDeviceLost afterwards.
func (h *Health) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Fail marks the device lost. Only the first cause is kept; hooks run once.
func (h *Health) Fail(cause error) {
	h.mu.Lock()
	if h.err != nil {
		h.mu.Unlock()
		return
	}
	switch {
	case cause == nil:
		h.err = fmt.Errorf("queue: %w", hal.ErrDeviceLost)
	case errors.Is(cause, hal.ErrDeviceLost):
		h.err = cause
	default:
		h.err = fmt.Errorf("queue: %w: %w", hal.ErrDeviceLost, cause)
	}
	hooks := h.hooks
	h.hooks = nil
	err := h.err
	h.mu.Unlock()

	for _, f := range hooks {
		f(err)
	}
}

// OnLoss registers f to run when the device is lost.
func (h *Health) OnLoss(f func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, f)
}
