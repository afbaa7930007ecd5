package resource

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/cmdemu/hal"
)

// Allocator creates and releases native objects.
//
// Implementations return errors wrapping hal.ErrOutOfMemory when an object
// cannot be allocated. Allocators must be safe for concurrent use.
type Allocator interface {
	CreateBuffer(desc *BufferDescriptor) (Native, error)
	CreateImage(desc *ImageDescriptor) (Native, error)
	CreateView(parent Native, kind Kind, desc *ViewDescriptor) (Native, error)
	CreateSampler(desc *SamplerDescriptor) (Native, error)
	CreateShaderModule(label string, blob []byte) (Native, error)
	Release(kind Kind, obj Native)
}

// Default host memory limits.
const (
	// DefaultBudgetMB is the default host allocator budget (256 MB).
	DefaultBudgetMB = 256

	// MinBudgetMB is the smallest accepted budget.
	MinBudgetMB = 1
)

// HostObject is the native object produced by HostAllocator.
type HostObject struct {
	ID    uint64
	Kind  Kind
	Label string
	Bytes uint64

	// Parent is set for views.
	Parent *HostObject
}

func (o *HostObject) String() string {
	if o == nil {
		return "<nil>"
	}
	if o.Label != "" {
		return fmt.Sprintf("%s#%d(%s)", o.Kind, o.ID, o.Label)
	}
	return fmt.Sprintf("%s#%d", o.Kind, o.ID)
}

// HostStats reports HostAllocator usage.
type HostStats struct {
	BudgetBytes uint64
	UsedBytes   uint64
	PeakBytes   uint64
	Objects     int
	Failures    uint64
}

// String returns a human-readable summary.
func (s HostStats) String() string {
	return fmt.Sprintf("Host[%d/%d bytes, peak %d, %d objects, %d failures]",
		s.UsedBytes, s.BudgetBytes, s.PeakBytes, s.Objects, s.Failures)
}

// HostAllocator allocates host-side stand-ins for native objects and
// enforces a byte budget on buffers and images.
//
// HostAllocator is safe for concurrent use.
type HostAllocator struct {
	mu      sync.Mutex
	budget  uint64
	used    uint64
	peak    uint64
	objects map[*HostObject]struct{}

	nextID   atomic.Uint64
	failures atomic.Uint64
}

// NewHostAllocator creates a host allocator with a budget in megabytes.
// Budgets below MinBudgetMB select DefaultBudgetMB.
func NewHostAllocator(budgetMB int) *HostAllocator {
	if budgetMB < MinBudgetMB {
		budgetMB = DefaultBudgetMB
	}
	//nolint:gosec // G115: budgetMB is positive
	return &HostAllocator{
		budget:  uint64(budgetMB) * 1024 * 1024,
		objects: make(map[*HostObject]struct{}),
	}
}

// NewHostAllocatorBytes creates a host allocator with an exact byte budget.
func NewHostAllocatorBytes(budget uint64) *HostAllocator {
	return &HostAllocator{
		budget:  budget,
		objects: make(map[*HostObject]struct{}),
	}
}

func (a *HostAllocator) alloc(kind Kind, label string, bytes uint64, parent *HostObject) (*HostObject, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.used+bytes > a.budget {
		a.failures.Add(1)
		return nil, fmt.Errorf("resource: host budget: %d + %d > %d bytes: %w",
			a.used, bytes, a.budget, hal.ErrOutOfMemory)
	}
	obj := &HostObject{
		ID:     a.nextID.Add(1),
		Kind:   kind,
		Label:  label,
		Bytes:  bytes,
		Parent: parent,
	}
	a.used += bytes
	a.peak = max(a.peak, a.used)
	a.objects[obj] = struct{}{}
	return obj, nil
}

// CreateBuffer implements Allocator.
func (a *HostAllocator) CreateBuffer(desc *BufferDescriptor) (Native, error) {
	return a.alloc(KindBuffer, desc.Label, desc.Size, nil)
}

// CreateImage implements Allocator.
func (a *HostAllocator) CreateImage(desc *ImageDescriptor) (Native, error) {
	texels := uint64(desc.Size.Width) * uint64(desc.Size.Height) * uint64(max(desc.Size.DepthOrArrayLayers, 1))
	bytes := texels * BytesPerTexel(desc.Format) * uint64(max(desc.SampleCount, 1))
	// Mip chain adds at most a third.
	if desc.MipLevelCount > 1 {
		bytes += bytes / 3
	}
	return a.alloc(KindImage, desc.Label, bytes, nil)
}

// CreateView implements Allocator. Views consume no budget.
func (a *HostAllocator) CreateView(parent Native, kind Kind, desc *ViewDescriptor) (Native, error) {
	p, _ := parent.(*HostObject)
	return a.alloc(kind, desc.Label, 0, p)
}

// CreateSampler implements Allocator.
func (a *HostAllocator) CreateSampler(desc *SamplerDescriptor) (Native, error) {
	return a.alloc(KindSampler, desc.Label, 0, nil)
}

// CreateShaderModule implements Allocator.
func (a *HostAllocator) CreateShaderModule(label string, blob []byte) (Native, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("resource: shader module %q: empty blob: %w", label, hal.ErrInvalidCommand)
	}
	return a.alloc(KindShaderModule, label, uint64(len(blob)), nil)
}

// Release implements Allocator.
func (a *HostAllocator) Release(_ Kind, obj Native) {
	o, ok := obj.(*HostObject)
	if !ok || o == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, live := a.objects[o]; !live {
		return
	}
	delete(a.objects, o)
	a.used -= o.Bytes
}

// Stats returns current usage.
func (a *HostAllocator) Stats() HostStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return HostStats{
		BudgetBytes: a.budget,
		UsedBytes:   a.used,
		PeakBytes:   a.peak,
		Objects:     len(a.objects),
		Failures:    a.failures.Load(),
	}
}

var _ Allocator = (*HostAllocator)(nil)
