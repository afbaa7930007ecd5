package descriptor

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gogpu/naga/hlsl"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/resource"
	"github.com/gogpu/cmdemu/shader"
)

func mustSetLayout(t *testing.T, bindings ...LayoutBinding) *SetLayout {
	t.Helper()
	l, err := NewSetLayout(bindings...)
	if err != nil {
		t.Fatalf("NewSetLayout: %v", err)
	}
	return l
}

func slotOf(t *testing.T, pl *PipelineLayout, set, binding uint32, stage hal.ShaderStage, class shader.RegisterClass) uint32 {
	t.Helper()
	m, ok := pl.Mapping(set, binding)
	if !ok {
		t.Fatalf("no mapping for %d.%d", set, binding)
	}
	for _, s := range m.Slots {
		if s.Stage == stage && s.Class == class {
			return s.Start
		}
	}
	t.Fatalf("binding %d.%d has no %s %s slot", set, binding, stage, class)
	return 0
}

func TestSetLayoutValidation(t *testing.T) {
	tests := []struct {
		name     string
		bindings []LayoutBinding
	}{
		{"duplicate", []LayoutBinding{
			{Binding: 1, Type: UniformBuffer, Visibility: hal.ShaderVertex},
			{Binding: 1, Type: Sampler, Visibility: hal.ShaderVertex},
		}},
		{"no visibility", []LayoutBinding{{Binding: 0, Type: UniformBuffer}}},
		{"unknown type", []LayoutBinding{{Binding: 0, Type: BindingType(99), Visibility: hal.ShaderCompute}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSetLayout(tt.bindings...); !errors.Is(err, hal.ErrInvalidCommand) {
				t.Errorf("error = %v, want ErrInvalidCommand", err)
			}
		})
	}
}

func TestSetLayoutSortedAndDynamic(t *testing.T) {
	l := mustSetLayout(t,
		LayoutBinding{Binding: 3, Type: DynamicUniformBuffer, Count: 2, Visibility: hal.ShaderVertex},
		LayoutBinding{Binding: 0, Type: SampledImage, Visibility: hal.ShaderFragment},
	)
	if got := l.Bindings(); got[0].Binding != 0 || got[1].Binding != 3 {
		t.Errorf("bindings not sorted: %+v", got)
	}
	if l.DynamicCount() != 2 {
		t.Errorf("DynamicCount = %d, want 2", l.DynamicCount())
	}
	if b, ok := l.Binding(0); !ok || b.Count != 1 {
		t.Errorf("Binding(0) = %+v, %v; want count defaulted to 1", b, ok)
	}
	if _, ok := l.Binding(2); ok {
		t.Error("Binding(2) should not exist")
	}
}

func TestPipelineLayoutAssignment(t *testing.T) {
	set0 := mustSetLayout(t,
		LayoutBinding{Binding: 0, Type: UniformBuffer, Visibility: hal.ShaderGraphics},
		LayoutBinding{Binding: 1, Type: CombinedImageSampler, Visibility: hal.ShaderFragment},
	)
	set1 := mustSetLayout(t,
		LayoutBinding{Binding: 0, Type: UniformBuffer, Visibility: hal.ShaderVertex},
		LayoutBinding{Binding: 2, Type: SampledImage, Count: 3, Visibility: hal.ShaderFragment},
	)
	pl, err := NewPipelineLayout(&LayoutDescriptor{Sets: []*SetLayout{set0, set1}})
	if err != nil {
		t.Fatalf("NewPipelineLayout: %v", err)
	}

	tests := []struct {
		set, binding uint32
		stage        hal.ShaderStage
		class        shader.RegisterClass
		want         uint32
	}{
		{0, 0, hal.ShaderVertex, shader.ClassConstantBuffer, 0},
		{0, 0, hal.ShaderFragment, shader.ClassConstantBuffer, 0},
		{0, 1, hal.ShaderFragment, shader.ClassShaderResource, 0},
		{0, 1, hal.ShaderFragment, shader.ClassSampler, 0},
		{1, 0, hal.ShaderVertex, shader.ClassConstantBuffer, 1},
		{1, 2, hal.ShaderFragment, shader.ClassShaderResource, 1},
	}
	for _, tt := range tests {
		if got := slotOf(t, pl, tt.set, tt.binding, tt.stage, tt.class); got != tt.want {
			t.Errorf("%d.%d %s %s = %d, want %d", tt.set, tt.binding, tt.stage, tt.class, got, tt.want)
		}
	}
	if got := pl.Used(hal.ShaderFragment, shader.ClassShaderResource); got != 4 {
		t.Errorf("Used(PS, t) = %d, want 4", got)
	}

	// Same input, same table.
	again, _ := NewPipelineLayout(&LayoutDescriptor{Sets: []*SetLayout{set0, set1}})
	if !reflect.DeepEqual(pl.mappings, again.mappings) {
		t.Error("slot assignment is not deterministic")
	}
}

func TestPipelineLayoutPinnedSlots(t *testing.T) {
	alloc := resource.NewHostAllocator(1)
	cs, err := shader.New(alloc, &shader.Descriptor{
		Stage: hal.ShaderCompute,
		Blob:  []byte{0},
		Reflection: shader.Reflection{Bindings: []shader.Binding{
			{Set: 0, Binding: 1, Class: shader.ClassUnorderedAccess, Slot: 0},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	set := mustSetLayout(t,
		LayoutBinding{Binding: 0, Type: StorageBuffer, Visibility: hal.ShaderCompute},
		LayoutBinding{Binding: 1, Type: StorageImage, Visibility: hal.ShaderCompute},
	)
	pl, err := NewPipelineLayout(&LayoutDescriptor{Sets: []*SetLayout{set}, Modules: []*shader.Module{cs}})
	if err != nil {
		t.Fatal(err)
	}
	if got := slotOf(t, pl, 0, 1, hal.ShaderCompute, shader.ClassUnorderedAccess); got != 0 {
		t.Errorf("pinned slot = %d, want 0", got)
	}
	if got := slotOf(t, pl, 0, 0, hal.ShaderCompute, shader.ClassUnorderedAccess); got != 1 {
		t.Errorf("auto slot = %d, want 1 (routed around pinned)", got)
	}
}

func TestPipelineLayoutLimits(t *testing.T) {
	set := mustSetLayout(t,
		LayoutBinding{Binding: 0, Type: StorageBuffer, Count: 8, Visibility: hal.ShaderCompute},
		LayoutBinding{Binding: 1, Type: StorageImage, Visibility: hal.ShaderCompute},
	)
	_, err := NewPipelineLayout(&LayoutDescriptor{Sets: []*SetLayout{set}})
	if !errors.Is(err, ErrSlotLimit) || !errors.Is(err, hal.ErrInvalidCommand) {
		t.Errorf("error = %v, want ErrSlotLimit", err)
	}

	cbs := mustSetLayout(t, LayoutBinding{Binding: 0, Type: UniformBuffer, Count: 14, Visibility: hal.ShaderVertex})
	if _, err := NewPipelineLayout(&LayoutDescriptor{Sets: []*SetLayout{cbs}}); err != nil {
		t.Errorf("14 constant buffers must fit: %v", err)
	}
	if _, err := NewPipelineLayout(&LayoutDescriptor{Sets: []*SetLayout{cbs}, PushConstantSize: 16}); !errors.Is(err, ErrSlotLimit) {
		t.Errorf("push constants must reserve a slot, error = %v", err)
	}
}

func TestPushConstantSlot(t *testing.T) {
	set := mustSetLayout(t, LayoutBinding{Binding: 0, Type: UniformBuffer, Visibility: hal.ShaderVertex})
	pl, err := NewPipelineLayout(&LayoutDescriptor{Sets: []*SetLayout{set}, PushConstantSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	if pl.PushConstantSlot() != 13 {
		t.Errorf("PushConstantSlot = %d, want 13", pl.PushConstantSlot())
	}
	if got := slotOf(t, pl, 0, 0, hal.ShaderVertex, shader.ClassConstantBuffer); got != 0 {
		t.Errorf("slot = %d, want 0", got)
	}
}

func TestHLSLOptions(t *testing.T) {
	set := mustSetLayout(t,
		LayoutBinding{Binding: 0, Type: UniformBuffer, Visibility: hal.ShaderFragment},
		LayoutBinding{Binding: 1, Type: SampledImage, Count: 4, Visibility: hal.ShaderFragment},
		LayoutBinding{Binding: 2, Type: Sampler, Visibility: hal.ShaderVertex},
	)
	pl, _ := NewPipelineLayout(&LayoutDescriptor{Sets: []*SetLayout{set}})
	opts := pl.HLSLOptions(hal.ShaderFragment)

	if opts.FakeMissingBindings {
		t.Error("FakeMissingBindings must be off")
	}
	if len(opts.BindingMap) != 2 {
		t.Fatalf("BindingMap has %d entries, want 2", len(opts.BindingMap))
	}
	tex := opts.BindingMap[hlsl.ResourceBinding{Group: 0, Binding: 1}]
	if tex.Register != 0 || tex.BindingArraySize == nil || *tex.BindingArraySize != 4 {
		t.Errorf("texture target = %+v", tex)
	}
}

func TestLayoutCache(t *testing.T) {
	c := NewLayoutCache()
	set := mustSetLayout(t, LayoutBinding{Binding: 0, Type: UniformBuffer, Visibility: hal.ShaderVertex})
	same := mustSetLayout(t, LayoutBinding{Binding: 0, Type: UniformBuffer, Visibility: hal.ShaderVertex})

	a, err := c.Get(&LayoutDescriptor{Sets: []*SetLayout{set}})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.Get(&LayoutDescriptor{Sets: []*SetLayout{same}})
	if a != b {
		t.Error("identical layouts not deduplicated")
	}
	other, _ := c.Get(&LayoutDescriptor{Sets: []*SetLayout{set}, PushConstantSize: 4})
	if other == a {
		t.Error("different layouts share an entry")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}
