package descriptor

import (
	"fmt"
	"strings"

	"github.com/gogpu/naga/hlsl"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/shader"
)

// ErrSlotLimit is returned when a layout needs more native slots than the
// stage provides.
var ErrSlotLimit = fmt.Errorf("descriptor: native slot limit exceeded: %w", hal.ErrInvalidCommand)

// Limits is the number of native slots per stage and register class.
type Limits struct {
	ConstantBuffers uint32
	ShaderResources uint32
	Samplers        uint32
	UnorderedAccess uint32
}

// DefaultLimits returns the slot counts of the native context:
// 14 constant buffers, 128 shader resources, 16 samplers and 8 UAVs.
func DefaultLimits() Limits {
	return Limits{
		ConstantBuffers: 14,
		ShaderResources: 128,
		Samplers:        16,
		UnorderedAccess: 8,
	}
}

// Of returns the limit of class c.
func (l Limits) Of(c shader.RegisterClass) uint32 {
	switch c {
	case shader.ClassConstantBuffer:
		return l.ConstantBuffers
	case shader.ClassShaderResource:
		return l.ShaderResources
	case shader.ClassSampler:
		return l.Samplers
	case shader.ClassUnorderedAccess:
		return l.UnorderedAccess
	}
	return 0
}

// stages lists the shader stages in slot assignment order.
var stages = [...]hal.ShaderStage{hal.ShaderVertex, hal.ShaderFragment, hal.ShaderCompute}

const stageCount = len(stages)

func stageIndex(s hal.ShaderStage) int {
	switch s {
	case hal.ShaderVertex:
		return 0
	case hal.ShaderFragment:
		return 1
	}
	return 2
}

// Slot is the native placement of a binding in one stage and class.
// Array bindings occupy Start through Start+Count-1.
type Slot struct {
	Stage hal.ShaderStage
	Class shader.RegisterClass
	Start uint32
}

// Mapping is the emulation table entry of one set binding.
type Mapping struct {
	Set     uint32
	Binding uint32
	Type    BindingType
	Count   uint32
	Slots   []Slot
}

// LayoutDescriptor describes a pipeline layout.
type LayoutDescriptor struct {
	Label string
	Sets  []*SetLayout

	// PushConstantSize is the size in bytes of the push constant block.
	// A non-zero size reserves the last constant buffer slot of every stage.
	PushConstantSize uint32

	// Modules supply reflection metadata that pins bindings to the slots
	// the compiled code expects.
	Modules []*shader.Module

	// Limits overrides DefaultLimits.
	Limits *Limits
}

// PipelineLayout is the immutable emulation table of a set of layouts.
type PipelineLayout struct {
	label            string
	sets             []*SetLayout
	mappings         [][]Mapping
	pushConstantSize uint32
	limits           Limits
	used             [stageCount][shader.ClassCount]uint32
	key              string
}

// slotMap tracks occupied slots of one stage and class.
type slotMap []bool

func (m slotMap) free(start, count uint32) bool {
	for i := start; i < start+count; i++ {
		if m[i] {
			return false
		}
	}
	return true
}

func (m slotMap) take(start, count uint32) {
	for i := start; i < start+count; i++ {
		m[i] = true
	}
}

// first returns the lowest start with count free slots.
func (m slotMap) first(count uint32) (uint32, bool) {
	// #nosec G115 -- slot maps are bounded by Limits, well under uint32 max
	n := uint32(len(m))
	for s := uint32(0); s+count <= n; s++ {
		if m.free(s, count) {
			return s, true
		}
	}
	return 0, false
}

// NewPipelineLayout assigns native slots to every binding of desc.Sets.
//
// Assignment is deterministic: bindings pinned by module reflection keep
// their slots; the others take the lowest free slots walking sets in order,
// bindings by index, stages vertex, fragment, compute.
func NewPipelineLayout(desc *LayoutDescriptor) (*PipelineLayout, error) {
	limits := DefaultLimits()
	if desc.Limits != nil {
		limits = *desc.Limits
	}
	pl := &PipelineLayout{
		label:            desc.Label,
		sets:             append([]*SetLayout(nil), desc.Sets...),
		mappings:         make([][]Mapping, len(desc.Sets)),
		pushConstantSize: desc.PushConstantSize,
		limits:           limits,
		key:              layoutKey(desc, limits),
	}

	var occupied [stageCount][shader.ClassCount]slotMap
	for si := range occupied {
		for c := range occupied[si] {
			occupied[si][c] = make(slotMap, limits.Of(shader.RegisterClass(c)))
		}
	}
	if pl.pushConstantSize > 0 {
		if limits.ConstantBuffers == 0 {
			return nil, fmt.Errorf("descriptor: %q: push constants need a constant buffer slot: %w", desc.Label, ErrSlotLimit)
		}
		for si := range occupied {
			occupied[si][shader.ClassConstantBuffer].take(pl.PushConstantSlot(), 1)
		}
	}

	reflections := make(map[hal.ShaderStage][]*shader.Reflection)
	for _, m := range desc.Modules {
		if m != nil {
			reflections[m.Stage()] = append(reflections[m.Stage()], m.Reflection())
		}
	}
	pinned := func(stage hal.ShaderStage, set, binding uint32, class shader.RegisterClass) (uint32, bool) {
		for _, r := range reflections[stage] {
			if slot, ok := r.Slot(set, binding, class); ok {
				return slot, true
			}
		}
		return 0, false
	}

	for s, sl := range desc.Sets {
		if sl == nil {
			return nil, fmt.Errorf("descriptor: %q: set %d is nil: %w", desc.Label, s, hal.ErrInvalidCommand)
		}
		ms := make([]Mapping, len(sl.bindings))
		for i, b := range sl.bindings {
			// #nosec G115 -- set count is bounded by caller input, well under uint32 max
			ms[i] = Mapping{Set: uint32(s), Binding: b.Binding, Type: b.Type, Count: b.Count}
		}
		pl.mappings[s] = ms
	}

	// Pinned slots first, so automatic assignment routes around them.
	type pending struct {
		m     *Mapping
		stage hal.ShaderStage
		class shader.RegisterClass
	}
	var auto []pending
	for s := range pl.mappings {
		for i := range pl.mappings[s] {
			m := &pl.mappings[s][i]
			vis := pl.sets[s].bindings[i].Visibility
			for _, stage := range stages {
				if vis&stage == 0 {
					continue
				}
				for _, class := range m.Type.Classes() {
					start, ok := pinned(stage, m.Set, m.Binding, class)
					if !ok {
						auto = append(auto, pending{m, stage, class})
						continue
					}
					occ := occupied[stageIndex(stage)][class]
					if start+m.Count > uint32(len(occ)) {
						return nil, fmt.Errorf("descriptor: %q: binding %d.%d pinned to %s %s%d: %w",
							desc.Label, m.Set, m.Binding, stage, class, start, ErrSlotLimit)
					}
					if !occ.free(start, m.Count) {
						return nil, fmt.Errorf("descriptor: %q: binding %d.%d: %s slot %s%d already taken: %w",
							desc.Label, m.Set, m.Binding, stage, class, start, hal.ErrInvalidCommand)
					}
					occ.take(start, m.Count)
					m.Slots = append(m.Slots, Slot{Stage: stage, Class: class, Start: start})
				}
			}
		}
	}
	for _, p := range auto {
		occ := occupied[stageIndex(p.stage)][p.class]
		start, ok := occ.first(p.m.Count)
		if !ok {
			return nil, fmt.Errorf("descriptor: %q: binding %d.%d needs %d %s slots in %s: %w",
				desc.Label, p.m.Set, p.m.Binding, p.m.Count, p.class, p.stage, ErrSlotLimit)
		}
		occ.take(start, p.m.Count)
		p.m.Slots = append(p.m.Slots, Slot{Stage: p.stage, Class: p.class, Start: start})
	}

	for s := range pl.mappings {
		for _, m := range pl.mappings[s] {
			for _, sl := range m.Slots {
				u := &pl.used[stageIndex(sl.Stage)][sl.Class]
				*u = max(*u, sl.Start+m.Count)
			}
		}
	}
	return pl, nil
}

func layoutKey(desc *LayoutDescriptor, limits Limits) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pc=%d;lim=%v;", desc.PushConstantSize, limits)
	for i, s := range desc.Sets {
		if s == nil {
			fmt.Fprintf(&b, "set%d=nil|", i)
			continue
		}
		fmt.Fprintf(&b, "set%d=%s|", i, s.key)
	}
	for _, m := range desc.Modules {
		if m == nil {
			continue
		}
		fmt.Fprintf(&b, "mod%d=", m.Stage())
		for _, r := range m.Reflection().Bindings {
			fmt.Fprintf(&b, "%d.%d%s%d,", r.Set, r.Binding, r.Class, r.Slot)
		}
		b.WriteByte('|')
	}
	return b.String()
}

// Label returns the debug label.
func (pl *PipelineLayout) Label() string { return pl.label }

// SetCount returns the number of set layouts.
func (pl *PipelineLayout) SetCount() int { return len(pl.sets) }

// Set returns set layout i.
func (pl *PipelineLayout) Set(i int) *SetLayout { return pl.sets[i] }

// Compatible reports whether a set with layout l may be bound at index i.
func (pl *PipelineLayout) Compatible(i int, l *SetLayout) bool {
	if i < 0 || i >= len(pl.sets) || l == nil {
		return false
	}
	return pl.sets[i] == l || pl.sets[i].key == l.key
}

// Mapping returns the emulation table entry of (set, binding).
func (pl *PipelineLayout) Mapping(set, binding uint32) (Mapping, bool) {
	if int(set) >= len(pl.mappings) {
		return Mapping{}, false
	}
	for _, m := range pl.mappings[set] {
		if m.Binding == binding {
			return m, true
		}
	}
	return Mapping{}, false
}

// PushConstantSize returns the push constant block size in bytes.
func (pl *PipelineLayout) PushConstantSize() uint32 { return pl.pushConstantSize }

// PushConstantSlot returns the constant buffer slot reserved for push
// constants.
func (pl *PipelineLayout) PushConstantSlot() uint32 {
	return pl.limits.ConstantBuffers - 1
}

// Used returns one past the highest slot of class used in stage.
func (pl *PipelineLayout) Used(stage hal.ShaderStage, class shader.RegisterClass) uint32 {
	return pl.used[stageIndex(stage)][class]
}

// Key returns a canonical description used for deduplication.
func (pl *PipelineLayout) Key() string { return pl.key }

// HLSLOptions returns naga HLSL options whose binding map places every
// binding visible to stage in its assigned register. Combined image samplers
// map to their texture register.
func (pl *PipelineLayout) HLSLOptions(stage hal.ShaderStage) *hlsl.Options {
	opts := hlsl.DefaultOptions()
	opts.FakeMissingBindings = false
	for _, ms := range pl.mappings {
		for _, m := range ms {
			for _, sl := range m.Slots {
				if sl.Stage != stage {
					continue
				}
				rb := hlsl.ResourceBinding{Group: m.Set, Binding: m.Binding}
				if _, done := opts.BindingMap[rb]; done {
					continue
				}
				target := hlsl.DefaultBindTarget().WithRegister(sl.Start)
				if m.Count > 1 {
					target = target.WithArraySize(m.Count)
				}
				opts.BindingMap[rb] = target
			}
		}
	}
	return opts
}
