package cmdemu

import (
	"log/slog"

	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/native"
	"github.com/gogpu/cmdemu/resource"
)

// DefaultBackend is the native backend used when neither WithContext nor
// WithBackend is given.
const DefaultBackend = "trace"

// DeviceOption configures a Device during creation.
//
// Example:
//
//	// Trace backend, host memory, two deferred contexts per queue
//	dev, err := cmdemu.New(cmdemu.WithDeferredContexts(2))
//
//	// Native objects on a wgpu HAL device
//	alloc, _ := resource.NewHALAllocator(halDevice)
//	dev, err := cmdemu.New(cmdemu.WithAllocator(alloc))
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	alloc    resource.Allocator
	contexts []native.Immediate
	backend  string
	deferred int
	inflight int
	barriers *native.BarrierTable
	budgetMB int
	limits   descriptor.Limits
	logger   *slog.Logger
	queues   int
}

func defaultOptions() deviceOptions {
	return deviceOptions{
		backend:  DefaultBackend,
		budgetMB: 256,
		limits:   descriptor.DefaultLimits(),
		queues:   1,
	}
}

// WithAllocator sets the allocator that creates native objects. The
// default is a host allocator bounded by WithMemoryBudget.
func WithAllocator(a resource.Allocator) DeviceOption {
	return func(o *deviceOptions) {
		o.alloc = a
	}
}

// WithContext supplies the native immediate contexts, one per queue. It
// overrides WithBackend and WithQueueCount.
func WithContext(ctxs ...native.Immediate) DeviceOption {
	return func(o *deviceOptions) {
		o.contexts = ctxs
	}
}

// WithBackend selects a registered native backend by name. Each queue
// gets its own context from the backend factory.
func WithBackend(name string) DeviceOption {
	return func(o *deviceOptions) {
		o.backend = name
	}
}

// WithDeferredContexts sets the number of deferred contexts per queue.
// Zero replays on the immediate context.
func WithDeferredContexts(n int) DeviceOption {
	return func(o *deviceOptions) {
		o.deferred = n
	}
}

// WithMaxInFlight bounds deferred submissions awaiting execution per queue.
func WithMaxInFlight(n int) DeviceOption {
	return func(o *deviceOptions) {
		o.inflight = n
	}
}

// WithBarrierTable overrides the native barrier actions.
func WithBarrierTable(t *native.BarrierTable) DeviceOption {
	return func(o *deviceOptions) {
		o.barriers = t
	}
}

// WithMemoryBudget sets the host allocator budget in megabytes. It has no
// effect together with WithAllocator.
func WithMemoryBudget(mb int) DeviceOption {
	return func(o *deviceOptions) {
		o.budgetMB = mb
	}
}

// WithLimits sets the native slot limits used by the state caches.
func WithLimits(l descriptor.Limits) DeviceOption {
	return func(o *deviceOptions) {
		o.limits = l
	}
}

// WithLogger sets the logger for cmdemu and its sub-packages, as
// SetLogger does.
func WithLogger(l *slog.Logger) DeviceOption {
	return func(o *deviceOptions) {
		o.logger = l
	}
}

// WithQueueCount sets the number of queues.
func WithQueueCount(n int) DeviceOption {
	return func(o *deviceOptions) {
		o.queues = n
	}
}
