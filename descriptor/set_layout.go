package descriptor

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/cmdemu/hal"
)

// LayoutBinding describes one binding of a set layout.
type LayoutBinding struct {
	Binding uint32
	Type    BindingType

	// Count is the array size. Zero means 1.
	Count uint32

	// Visibility lists the shader stages that access the binding.
	Visibility hal.ShaderStage
}

// SetLayout is an immutable descriptor set layout.
type SetLayout struct {
	bindings []LayoutBinding
	dynamic  uint32
	key      string
}

// NewSetLayout creates a set layout. Bindings are sorted by index.
func NewSetLayout(bindings ...LayoutBinding) (*SetLayout, error) {
	bs := slices.Clone(bindings)
	slices.SortFunc(bs, func(a, b LayoutBinding) int {
		return cmp.Compare(a.Binding, b.Binding)
	})

	l := &SetLayout{bindings: bs}
	var key strings.Builder
	for i := range bs {
		b := &bs[i]
		if i > 0 && bs[i-1].Binding == b.Binding {
			return nil, fmt.Errorf("descriptor: duplicate binding %d: %w", b.Binding, hal.ErrInvalidCommand)
		}
		if b.Type.Classes() == nil {
			return nil, fmt.Errorf("descriptor: binding %d: unknown type %d: %w", b.Binding, b.Type, hal.ErrInvalidCommand)
		}
		if b.Visibility == 0 || b.Visibility&^(hal.ShaderGraphics|hal.ShaderCompute) != 0 {
			return nil, fmt.Errorf("descriptor: binding %d: invalid visibility %d: %w", b.Binding, b.Visibility, hal.ErrInvalidCommand)
		}
		if b.Count == 0 {
			b.Count = 1
		}
		if b.Type.Dynamic() {
			l.dynamic += b.Count
		}
		fmt.Fprintf(&key, "%d:%d:%d:%d;", b.Binding, b.Type, b.Count, b.Visibility)
	}
	l.key = key.String()
	return l, nil
}

// Bindings returns the bindings sorted by index.
func (l *SetLayout) Bindings() []LayoutBinding {
	return l.bindings
}

// Binding returns the binding with index n.
func (l *SetLayout) Binding(n uint32) (LayoutBinding, bool) {
	i, ok := slices.BinarySearchFunc(l.bindings, n, func(b LayoutBinding, n uint32) int {
		return cmp.Compare(b.Binding, n)
	})
	if !ok {
		return LayoutBinding{}, false
	}
	return l.bindings[i], true
}

// DynamicCount returns the number of dynamic offsets a bind must supply.
func (l *SetLayout) DynamicCount() uint32 {
	return l.dynamic
}

// Key returns a canonical description. Layouts with equal keys are
// compatible.
func (l *SetLayout) Key() string {
	return l.key
}
