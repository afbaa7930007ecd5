package descriptor

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/resource"
	"github.com/gogpu/cmdemu/shader"
)

// Item is the resource bound in one native slot.
type Item struct {
	Resource resource.Handle
	Offset   uint64
	Size     uint64
}

// Run is a contiguous range of slots of one stage and class, replayed as a
// single native bind call.
type Run struct {
	Stage hal.ShaderStage
	Class shader.RegisterClass
	Start uint32
	Items []Item
}

// End returns one past the last slot of the run.
func (r Run) End() uint32 {
	// #nosec G115 -- run length is bounded by slot limits
	return r.Start + uint32(len(r.Items))
}

// Bind is a single slot assignment.
type Bind struct {
	Stage hal.ShaderStage
	Class shader.RegisterClass
	Slot  uint32
	Item  Item
}

// Coalesce merges binds into runs of consecutive slots. Runs are ordered by
// stage, class and slot; a later bind to the same slot replaces an earlier one.
func Coalesce(binds []Bind) []Run {
	if len(binds) == 0 {
		return nil
	}
	bs := slices.Clone(binds)
	slices.SortStableFunc(bs, func(a, b Bind) int {
		if c := cmp.Compare(stageIndex(a.Stage), stageIndex(b.Stage)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Class, b.Class); c != 0 {
			return c
		}
		return cmp.Compare(a.Slot, b.Slot)
	})

	var runs []Run
	for _, b := range bs {
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			if last.Stage == b.Stage && last.Class == b.Class {
				switch {
				case b.Slot == last.End()-1:
					last.Items[len(last.Items)-1] = b.Item
					continue
				case b.Slot == last.End():
					last.Items = append(last.Items, b.Item)
					continue
				}
			}
		}
		runs = append(runs, Run{Stage: b.Stage, Class: b.Class, Start: b.Slot, Items: []Item{b.Item}})
	}
	return runs
}

// Lookup resolves a handle to its metadata.
type Lookup func(resource.Handle) (resource.Info, error)

// Runs resolves set, bound at index with dynamicOffsets, into coalesced
// native bind runs. Entries are type-checked with lookup; unwritten entries
// bind a zero Item, which clears their slot.
func (pl *PipelineLayout) Runs(index int, set *Set, dynamicOffsets []uint32, lookup Lookup) ([]Run, error) {
	if !pl.Compatible(index, set.Layout()) {
		return nil, fmt.Errorf("descriptor: set %q is incompatible with layout %q index %d: %w",
			set.label, pl.label, index, hal.ErrInvalidCommand)
	}
	if want := set.layout.DynamicCount(); uint32(len(dynamicOffsets)) != want {
		return nil, fmt.Errorf("descriptor: set %q: %d dynamic offsets, layout needs %d: %w",
			set.label, len(dynamicOffsets), want, hal.ErrInvalidCommand)
	}

	var binds []Bind
	dyn := 0
	for _, m := range pl.mappings[index] {
		entries := set.Entries(m.Binding)
		for el, e := range entries {
			var offset uint64
			if m.Type.Dynamic() {
				offset = uint64(dynamicOffsets[dyn])
				dyn++
			}
			if !e.Resource.IsValid() {
				for _, sl := range m.Slots {
					// #nosec G115 -- element index is bounded by the binding count
					binds = append(binds, Bind{Stage: sl.Stage, Class: sl.Class, Slot: sl.Start + uint32(el)})
				}
				continue
			}
			info, err := lookup(e.Resource)
			if err != nil {
				return nil, fmt.Errorf("descriptor: set %q binding %d[%d]: %w", set.label, m.Binding, el, err)
			}
			if !m.Type.accepts(info.Kind) {
				return nil, fmt.Errorf("descriptor: set %q binding %d[%d]: %s cannot hold a %s: %w",
					set.label, m.Binding, el, m.Type, info.Kind, hal.ErrInvalidCommand)
			}
			if m.Type == CombinedImageSampler {
				sinfo, err := lookup(e.Sampler)
				if err != nil {
					return nil, fmt.Errorf("descriptor: set %q binding %d[%d] sampler: %w", set.label, m.Binding, el, err)
				}
				if sinfo.Kind != resource.KindSampler {
					return nil, fmt.Errorf("descriptor: set %q binding %d[%d]: sampler slot holds a %s: %w",
						set.label, m.Binding, el, sinfo.Kind, hal.ErrInvalidCommand)
				}
			}
			for _, sl := range m.Slots {
				item := Item{Resource: e.Resource, Offset: e.Offset + offset, Size: e.Size}
				if sl.Class == shader.ClassSampler && m.Type == CombinedImageSampler {
					item = Item{Resource: e.Sampler}
				}
				// #nosec G115 -- element index is bounded by the binding count
				binds = append(binds, Bind{Stage: sl.Stage, Class: sl.Class, Slot: sl.Start + uint32(el), Item: item})
			}
		}
	}
	return Coalesce(binds), nil
}
