package descriptor

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/resource"
)

// Entry is one written descriptor.
type Entry struct {
	// Resource is a buffer, buffer view, image, image view or sampler.
	Resource resource.Handle

	// Sampler is the sampler of a CombinedImageSampler entry.
	Sampler resource.Handle

	// Offset and Size select a buffer range. A zero Size binds the whole
	// buffer.
	Offset uint64
	Size   uint64
}

// Set is a descriptor set: written entries for each binding of its layout.
//
// A Set may be updated from any goroutine; binds snapshot its contents at
// record time, so later writes do not affect recorded commands.
type Set struct {
	layout *SetLayout
	label  string

	mu      sync.RWMutex
	entries map[uint32][]Entry
}

// NewSet creates an empty set for layout.
func NewSet(layout *SetLayout, label string) *Set {
	s := &Set{
		layout:  layout,
		label:   label,
		entries: make(map[uint32][]Entry, len(layout.bindings)),
	}
	for _, b := range layout.bindings {
		s.entries[b.Binding] = make([]Entry, b.Count)
	}
	return s
}

// Layout returns the set layout.
func (s *Set) Layout() *SetLayout { return s.layout }

// Label returns the debug label.
func (s *Set) Label() string { return s.label }

// Write stores entries starting at array element first of binding.
func (s *Set) Write(binding, first uint32, entries ...Entry) error {
	b, ok := s.layout.Binding(binding)
	if !ok {
		return fmt.Errorf("descriptor: set %q: no binding %d: %w", s.label, binding, hal.ErrInvalidCommand)
	}
	if uint64(first)+uint64(len(entries)) > uint64(b.Count) {
		return fmt.Errorf("descriptor: set %q: binding %d: elements [%d, %d) exceed array of %d: %w",
			s.label, binding, first, int(first)+len(entries), b.Count, hal.ErrInvalidCommand)
	}
	for _, e := range entries {
		if b.Type == CombinedImageSampler && e.Resource.IsValid() && !e.Sampler.IsValid() {
			return fmt.Errorf("descriptor: set %q: binding %d: combined entry without sampler: %w",
				s.label, binding, hal.ErrInvalidCommand)
		}
	}
	s.mu.Lock()
	copy(s.entries[binding][first:], entries)
	s.mu.Unlock()
	return nil
}

// Entries returns a copy of the entries of binding.
func (s *Set) Entries(binding uint32) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries[binding])
}
