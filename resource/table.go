package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/cmdemu/hal"
)

// Table creation errors.
var (
	// ErrNilAllocator is returned by NewTable when no allocator is given.
	ErrNilAllocator = errors.New("resource: allocator is nil")

	// ErrZeroSize is returned when creating a zero-sized buffer or image.
	ErrZeroSize = errors.New("resource: zero size")

	// ErrWrongKind is returned when a handle refers to an unexpected kind.
	ErrWrongKind = errors.New("resource: wrong resource kind")
)

// slot is a table entry. Slots are recycled; generation is bumped on destroy.
type slot struct {
	generation uint32
	live       bool
	info       Info
	state      hal.UsageState
}

// Table is the resource handle table.
type Table struct {
	mu    sync.RWMutex
	alloc Allocator
	slots []slot
	free  []uint32

	ledger Ledger
}

// NewTable creates an empty table producing native objects with alloc.
func NewTable(alloc Allocator) (*Table, error) {
	if alloc == nil {
		return nil, ErrNilAllocator
	}
	t := &Table{
		alloc: alloc,
		slots: make([]slot, 0, 256),
	}
	t.ledger.t = t
	return t, nil
}

// Allocator returns the allocator backing the table.
func (t *Table) Allocator() Allocator {
	return t.alloc
}

// CreateBuffer allocates a buffer and returns its handle.
// The buffer starts in StateUndefined.
func (t *Table) CreateBuffer(desc *BufferDescriptor) (Handle, error) {
	if desc == nil || desc.Size == 0 {
		return Handle{}, fmt.Errorf("resource: create buffer: %w", ErrZeroSize)
	}
	native, err := t.alloc.CreateBuffer(desc)
	if err != nil {
		return Handle{}, fmt.Errorf("resource: create buffer %q: %w", desc.Label, err)
	}
	h := t.insert(Info{
		Kind:        KindBuffer,
		Label:       desc.Label,
		Size:        desc.Size,
		BufferUsage: desc.Usage,
		Owner:       desc.Owner,
		Native:      native,
	})
	logger().Debug("resource: buffer created", "handle", h, "label", desc.Label, "size", desc.Size)
	return h, nil
}

// CreateImage allocates an image and returns its handle.
// The image starts in StateUndefined.
func (t *Table) CreateImage(desc *ImageDescriptor) (Handle, error) {
	if desc == nil || desc.Size.Width == 0 || desc.Size.Height == 0 {
		return Handle{}, fmt.Errorf("resource: create image: %w", ErrZeroSize)
	}
	d := *desc
	if d.Size.DepthOrArrayLayers == 0 {
		d.Size.DepthOrArrayLayers = 1
	}
	if d.MipLevelCount == 0 {
		d.MipLevelCount = 1
	}
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	native, err := t.alloc.CreateImage(&d)
	if err != nil {
		return Handle{}, fmt.Errorf("resource: create image %q: %w", d.Label, err)
	}
	h := t.insert(Info{
		Kind:          KindImage,
		Label:         d.Label,
		Extent:        d.Size,
		MipLevelCount: d.MipLevelCount,
		SampleCount:   d.SampleCount,
		Dimension:     d.Dimension,
		Format:        d.Format,
		TextureUsage:  d.Usage,
		Owner:         d.Owner,
		Native:        native,
	})
	logger().Debug("resource: image created", "handle", h, "label", d.Label,
		"width", d.Size.Width, "height", d.Size.Height)
	return h, nil
}

// CreateView creates a view on a live buffer or image.
func (t *Table) CreateView(desc *ViewDescriptor) (Handle, error) {
	if desc == nil {
		return Handle{}, fmt.Errorf("resource: create view: %w", hal.ErrInvalidCommand)
	}
	parent, err := t.Lookup(desc.Resource)
	if err != nil {
		return Handle{}, fmt.Errorf("resource: create view: %w", err)
	}

	info := Info{
		Label:  desc.Label,
		Parent: desc.Resource,
		Owner:  parent.Owner,
	}
	switch parent.Kind {
	case KindBuffer:
		size := desc.Size
		if size == 0 && desc.Offset < parent.Size {
			size = parent.Size - desc.Offset
		}
		if desc.Offset+size > parent.Size || size == 0 {
			return Handle{}, fmt.Errorf("resource: create view: range [%d, %d) outside buffer of %d bytes: %w",
				desc.Offset, desc.Offset+size, parent.Size, hal.ErrInvalidCommand)
		}
		info.Kind = KindBufferView
		info.Offset = desc.Offset
		info.Size = size
		info.BufferUsage = parent.BufferUsage
	case KindImage:
		info.Kind = KindImageView
		info.Extent = parent.Extent
		info.MipLevelCount = parent.MipLevelCount
		info.SampleCount = parent.SampleCount
		info.Dimension = parent.Dimension
		info.Format = parent.Format
		if desc.Format != 0 {
			info.Format = desc.Format
		}
		info.TextureUsage = parent.TextureUsage
	default:
		return Handle{}, fmt.Errorf("resource: create view on %s: %w", parent.Kind, ErrWrongKind)
	}

	native, err := t.alloc.CreateView(parent.Native, info.Kind, desc)
	if err != nil {
		return Handle{}, fmt.Errorf("resource: create view %q: %w", desc.Label, err)
	}
	info.Native = native
	return t.insert(info), nil
}

// CreateSampler creates a sampler.
func (t *Table) CreateSampler(desc *SamplerDescriptor) (Handle, error) {
	if desc == nil {
		desc = &SamplerDescriptor{}
	}
	native, err := t.alloc.CreateSampler(desc)
	if err != nil {
		return Handle{}, fmt.Errorf("resource: create sampler %q: %w", desc.Label, err)
	}
	return t.insert(Info{Kind: KindSampler, Label: desc.Label, Native: native}), nil
}

func (t *Table) insert(info Info) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		// #nosec G115 -- table size is bounded by available memory, well under uint32 max
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot{})
	}
	s := &t.slots[idx]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.live = true
	s.info = info
	s.state = hal.StateUndefined
	return Handle{index: idx, generation: s.generation}
}

// Destroy releases the native object and invalidates the handle.
// Views created on a destroyed resource become dangling as well.
func (t *Table) Destroy(h Handle) error {
	t.mu.Lock()
	s, err := t.slotLocked(h)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("resource: destroy: %w", err)
	}
	info := s.info
	s.live = false
	s.info = Info{}
	s.state = hal.StateUndefined
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	t.free = append(t.free, h.index)
	t.mu.Unlock()

	t.alloc.Release(info.Kind, info.Native)
	logger().Debug("resource: destroyed", "handle", h, "kind", info.Kind, "label", info.Label)
	return nil
}

func (t *Table) slotLocked(h Handle) (*slot, error) {
	if !h.IsValid() || int(h.index) >= len(t.slots) {
		return nil, fmt.Errorf("%v: %w", h, hal.ErrDanglingResource)
	}
	s := &t.slots[h.index]
	if !s.live || s.generation != h.generation {
		return nil, fmt.Errorf("%v: %w", h, hal.ErrDanglingResource)
	}
	if s.info.Parent.IsValid() {
		if _, err := t.slotLocked(s.info.Parent); err != nil {
			return nil, fmt.Errorf("%v: parent %w", h, err)
		}
	}
	return s, nil
}

// Lookup returns the metadata of a live handle.
// It fails with hal.ErrDanglingResource for destroyed handles, and for
// views whose parent has been destroyed.
func (t *Table) Lookup(h Handle) (Info, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, err := t.slotLocked(h)
	if err != nil {
		return Info{}, err
	}
	return s.info, nil
}

// Alive reports whether h refers to a live resource.
func (t *Table) Alive(h Handle) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, err := t.slotLocked(h)
	return err == nil
}

// Tracked returns the handle whose usage state governs h: the parent for a
// view, h itself for buffers and images.
func (t *Table) Tracked(h Handle) (Handle, error) {
	info, err := t.Lookup(h)
	if err != nil {
		return Handle{}, err
	}
	if info.Kind.IsView() {
		return info.Parent, nil
	}
	if !info.Kind.Tracked() {
		return Handle{}, fmt.Errorf("resource: %v is a %s: %w", h, info.Kind, ErrWrongKind)
	}
	return h, nil
}

// State returns the tracked usage state of a live buffer or image.
func (t *Table) State(h Handle) (hal.UsageState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, err := t.slotLocked(h)
	if err != nil {
		return hal.StateUndefined, err
	}
	return s.state, nil
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots) - len(t.free)
}

// Ledger returns the table's state ledger. There is one ledger per table.
func (t *Table) Ledger() *Ledger {
	return &t.ledger
}

// Ledger is the single writer of tracked usage states.
//
// Writers serialize on the ledger lock; the critical section is a batch
// commit of final states, never a replay.
type Ledger struct {
	mu sync.Mutex
	t  *Table
}

// Lock acquires the ledger for a read-modify-write pass.
func (l *Ledger) Lock() { l.mu.Lock() }

// Unlock releases the ledger.
func (l *Ledger) Unlock() { l.mu.Unlock() }

// Commit stores final states. Entries for handles destroyed in the meantime
// are skipped. The caller must hold the ledger lock.
func (l *Ledger) Commit(states map[Handle]hal.UsageState) int {
	t := l.t
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for h, st := range states {
		s, err := t.slotLocked(h)
		if err != nil {
			continue
		}
		s.state = st
		n++
	}
	return n
}

// State reads the current tracked state. The caller must hold the ledger lock.
func (l *Ledger) State(h Handle) (hal.UsageState, error) {
	return l.t.State(h)
}
