package cmdemu

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/internal/hazard"
	"github.com/gogpu/cmdemu/native"
	"github.com/gogpu/cmdemu/pipeline"
	"github.com/gogpu/cmdemu/queue"
	"github.com/gogpu/cmdemu/recording"
	"github.com/gogpu/cmdemu/resource"
	"github.com/gogpu/cmdemu/shader"
)

// ErrConfig is returned by New for contradictory options.
var ErrConfig = errors.New("cmdemu: invalid device configuration")

// Device owns the resource table, the hazard tracker state and the queues
// of one emulated device.
type Device struct {
	alloc   resource.Allocator
	tbl     *resource.Table
	arena   *hazard.Arena
	health  *queue.Health
	layouts *descriptor.LayoutCache
	queues  []*queue.Queue

	closeOnce sync.Once
	closeErr  error
}

// New creates a device.
func New(opts ...DeviceOption) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}

	contexts := o.contexts
	if len(contexts) == 0 {
		if o.queues < 1 || o.queues > math.MaxUint8 {
			return nil, fmt.Errorf("%w: %d queues", ErrConfig, o.queues)
		}
		for range o.queues {
			ctx, err := native.New(o.backend)
			if err != nil {
				return nil, fmt.Errorf("cmdemu: %w", err)
			}
			contexts = append(contexts, ctx)
		}
	}
	if len(contexts) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %d queues", ErrConfig, len(contexts))
	}
	if o.deferred < 0 {
		return nil, fmt.Errorf("%w: %d deferred contexts", ErrConfig, o.deferred)
	}

	alloc := o.alloc
	if alloc == nil {
		if o.budgetMB <= 0 {
			return nil, fmt.Errorf("%w: memory budget %d MB", ErrConfig, o.budgetMB)
		}
		alloc = resource.NewHostAllocator(o.budgetMB)
	}
	tbl, err := resource.NewTable(alloc)
	if err != nil {
		return nil, fmt.Errorf("cmdemu: %w", err)
	}

	d := &Device{
		alloc:   alloc,
		tbl:     tbl,
		arena:   hazard.NewArena(tbl),
		health:  new(queue.Health),
		layouts: descriptor.NewLayoutCache(),
	}
	for i, ctx := range contexts {
		q, err := queue.New(queue.Config{
			ID:          resource.QueueID(i + 1), // #nosec G115 -- checked against MaxUint8 above
			Label:       fmt.Sprintf("queue%d", i),
			Context:     ctx,
			Table:       tbl,
			Arena:       d.arena,
			Health:      d.health,
			Barriers:    o.barriers,
			Limits:      o.limits,
			Deferred:    o.deferred,
			MaxInFlight: o.inflight,
		})
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("cmdemu: queue %d: %w", i, err)
		}
		d.queues = append(d.queues, q)
	}
	logger().Info("cmdemu: device created", "queues", len(d.queues), "deferred", o.deferred, "allocator", fmt.Sprintf("%T", alloc))
	return d, nil
}

// Table returns the resource table.
func (d *Device) Table() *resource.Table { return d.tbl }

// Allocator returns the native allocator.
func (d *Device) Allocator() resource.Allocator { return d.alloc }

// QueueCount returns the number of queues.
func (d *Device) QueueCount() int { return len(d.queues) }

// Queue returns queue i, or nil if i is out of range.
func (d *Device) Queue(i int) *queue.Queue {
	if i < 0 || i >= len(d.queues) {
		return nil
	}
	return d.queues[i]
}

// Lost returns nil while the device is healthy and an error wrapping
// hal.ErrDeviceLost afterwards.
func (d *Device) Lost() error { return d.health.Err() }

// State returns the newest tracked usage state of a buffer or image,
// including submissions that have not completed yet.
func (d *Device) State(h resource.Handle) (hal.UsageState, error) {
	tracked, err := d.tbl.Tracked(h)
	if err != nil {
		return hal.StateUndefined, err
	}
	return d.arena.State(tracked)
}

// CreateBuffer creates a buffer.
func (d *Device) CreateBuffer(desc *resource.BufferDescriptor) (resource.Handle, error) {
	return d.tbl.CreateBuffer(desc)
}

// CreateImage creates an image.
func (d *Device) CreateImage(desc *resource.ImageDescriptor) (resource.Handle, error) {
	return d.tbl.CreateImage(desc)
}

// CreateView creates a buffer or image view.
func (d *Device) CreateView(desc *resource.ViewDescriptor) (resource.Handle, error) {
	return d.tbl.CreateView(desc)
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc *resource.SamplerDescriptor) (resource.Handle, error) {
	return d.tbl.CreateSampler(desc)
}

// Destroy destroys a resource. It fails with hal.ErrInUse while a pending
// submission references it.
func (d *Device) Destroy(h resource.Handle) error {
	for _, q := range d.queues {
		if q.InUse(h) {
			return fmt.Errorf("cmdemu: destroy %v: pending on queue %d: %w", h, q.ID(), hal.ErrInUse)
		}
	}
	return d.tbl.Destroy(h)
}

// CreateShaderModule creates a shader module with a native object from the
// device allocator.
func (d *Device) CreateShaderModule(desc *shader.Descriptor) (*shader.Module, error) {
	return shader.New(d.alloc, desc)
}

// CreateSetLayout creates a descriptor set layout.
func (d *Device) CreateSetLayout(bindings ...descriptor.LayoutBinding) (*descriptor.SetLayout, error) {
	return descriptor.NewSetLayout(bindings...)
}

// CreatePipelineLayout returns the pipeline layout for desc. Identical
// descriptors share one layout.
func (d *Device) CreatePipelineLayout(desc *descriptor.LayoutDescriptor) (*descriptor.PipelineLayout, error) {
	return d.layouts.Get(desc)
}

// CreateGraphicsPipeline creates a graphics pipeline.
func (d *Device) CreateGraphicsPipeline(desc *pipeline.GraphicsDescriptor) (*pipeline.Graphics, error) {
	return pipeline.NewGraphics(desc)
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *pipeline.ComputeDescriptor) (*pipeline.Compute, error) {
	return pipeline.NewCompute(desc)
}

// NewCommandBuffer creates a command buffer in the Initial state.
func (d *Device) NewCommandBuffer(label string) (*recording.CommandBuffer, error) {
	return recording.New(d.tbl, label)
}

// Submit submits to the first queue.
func (d *Device) Submit(ctx context.Context, s queue.Submission) error {
	return d.queues[0].Submit(ctx, s)
}

// WaitIdle waits for every queue to drain.
func (d *Device) WaitIdle(ctx context.Context) error {
	var errs []error
	for _, q := range d.queues {
		if err := q.WaitIdle(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close drains and closes every queue. It is safe to call more than once.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		var errs []error
		for _, q := range d.queues {
			errs = append(errs, q.Close())
		}
		d.closeErr = errors.Join(errs...)
		logger().Info("cmdemu: device closed", "queues", len(d.queues))
	})
	return d.closeErr
}
