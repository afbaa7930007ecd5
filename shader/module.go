package shader

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/resource"
)

// ErrDestroyed is returned when a destroyed module is used.
var ErrDestroyed = errors.New("shader: module destroyed")

// Binding is one reflected resource binding: descriptor set and binding
// index, and the register the compiled code expects it in.
type Binding struct {
	Set     uint32
	Binding uint32
	Class   RegisterClass
	Slot    uint32
}

// Reflection is the metadata produced alongside a compiled blob.
type Reflection struct {
	Bindings []Binding
}

// Slot returns the register pinned for (set, binding, class).
func (r *Reflection) Slot(set, binding uint32, class RegisterClass) (uint32, bool) {
	if r == nil {
		return 0, false
	}
	for _, b := range r.Bindings {
		if b.Set == set && b.Binding == binding && b.Class == class {
			return b.Slot, true
		}
	}
	return 0, false
}

func (r *Reflection) validate() error {
	type key struct {
		class RegisterClass
		slot  uint32
	}
	used := make(map[key]Binding, len(r.Bindings))
	for _, b := range r.Bindings {
		if b.Class >= ClassCount {
			return fmt.Errorf("shader: binding %d.%d: unknown register class %d: %w",
				b.Set, b.Binding, b.Class, hal.ErrInvalidCommand)
		}
		k := key{b.Class, b.Slot}
		if prev, dup := used[k]; dup && (prev.Set != b.Set || prev.Binding != b.Binding) {
			return fmt.Errorf("shader: bindings %d.%d and %d.%d both use %s%d: %w",
				prev.Set, prev.Binding, b.Set, b.Binding, b.Class, b.Slot, hal.ErrInvalidCommand)
		}
		used[k] = b
	}
	return nil
}

// Descriptor describes a compiled module.
type Descriptor struct {
	Label      string
	Stage      hal.ShaderStage
	EntryPoint string
	Blob       []byte
	Reflection Reflection
}

// Module is a compiled shader with its native object.
type Module struct {
	label      string
	stage      hal.ShaderStage
	entryPoint string
	blob       []byte
	reflection Reflection

	alloc     resource.Allocator
	native    resource.Native
	destroyed atomic.Bool
}

// New creates the native shader object for desc.
func New(alloc resource.Allocator, desc *Descriptor) (*Module, error) {
	if desc == nil || len(desc.Blob) == 0 {
		return nil, fmt.Errorf("shader: empty blob: %w", hal.ErrInvalidCommand)
	}
	switch desc.Stage {
	case hal.ShaderVertex, hal.ShaderFragment, hal.ShaderCompute:
	default:
		return nil, fmt.Errorf("shader: %q: module needs exactly one stage, got %s: %w",
			desc.Label, desc.Stage, hal.ErrInvalidCommand)
	}
	if err := desc.Reflection.validate(); err != nil {
		return nil, err
	}
	native, err := alloc.CreateShaderModule(desc.Label, desc.Blob)
	if err != nil {
		return nil, fmt.Errorf("shader: create %q: %w", desc.Label, err)
	}
	entry := desc.EntryPoint
	if entry == "" {
		entry = "main"
	}
	return &Module{
		label:      desc.Label,
		stage:      desc.Stage,
		entryPoint: entry,
		blob:       append([]byte(nil), desc.Blob...),
		reflection: Reflection{Bindings: append([]Binding(nil), desc.Reflection.Bindings...)},
		alloc:      alloc,
		native:     native,
	}, nil
}

// Label returns the debug label.
func (m *Module) Label() string { return m.label }

// Stage returns the shader stage.
func (m *Module) Stage() hal.ShaderStage { return m.stage }

// EntryPoint returns the entry point name.
func (m *Module) EntryPoint() string { return m.entryPoint }

// Blob returns the compiled code. The slice must not be modified.
func (m *Module) Blob() []byte { return m.blob }

// Reflection returns the reflected bindings.
func (m *Module) Reflection() *Reflection { return &m.reflection }

// Native returns the allocator's shader object.
func (m *Module) Native() (resource.Native, error) {
	if m.destroyed.Load() {
		return nil, fmt.Errorf("shader: %q: %w", m.label, ErrDestroyed)
	}
	return m.native, nil
}

// Destroy releases the native object. Pipelines created from the module
// keep working; new pipelines cannot use it.
func (m *Module) Destroy() {
	if m.destroyed.Swap(true) {
		return
	}
	m.alloc.Release(resource.KindShaderModule, m.native)
}
