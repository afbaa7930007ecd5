package shader

import (
	"errors"
	"testing"

	"github.com/gogpu/naga/hlsl"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/resource"
)

func TestNewModule(t *testing.T) {
	alloc := resource.NewHostAllocator(1)
	m, err := New(alloc, &Descriptor{
		Label: "vs",
		Stage: hal.ShaderVertex,
		Blob:  []byte{1, 2, 3, 4},
		Reflection: Reflection{Bindings: []Binding{
			{Set: 0, Binding: 0, Class: ClassConstantBuffer, Slot: 2},
		}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.EntryPoint() != "main" {
		t.Errorf("EntryPoint = %q, want main", m.EntryPoint())
	}
	if slot, ok := m.Reflection().Slot(0, 0, ClassConstantBuffer); !ok || slot != 2 {
		t.Errorf("Slot = %d, %v", slot, ok)
	}
	if _, ok := m.Reflection().Slot(0, 0, ClassShaderResource); ok {
		t.Error("unexpected slot for other class")
	}
	if alloc.Stats().Objects != 1 {
		t.Errorf("objects = %d", alloc.Stats().Objects)
	}

	m.Destroy()
	m.Destroy()
	if _, err := m.Native(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Native after Destroy error = %v", err)
	}
	if alloc.Stats().Objects != 0 {
		t.Error("native object not released")
	}
}

func TestNewModuleInvalid(t *testing.T) {
	alloc := resource.NewHostAllocator(1)
	tests := []struct {
		name string
		desc *Descriptor
	}{
		{"nil", nil},
		{"empty blob", &Descriptor{Stage: hal.ShaderVertex}},
		{"two stages", &Descriptor{Stage: hal.ShaderGraphics, Blob: []byte{0}}},
		{"slot clash", &Descriptor{Stage: hal.ShaderCompute, Blob: []byte{0}, Reflection: Reflection{
			Bindings: []Binding{
				{Set: 0, Binding: 0, Class: ClassUnorderedAccess, Slot: 0},
				{Set: 0, Binding: 1, Class: ClassUnorderedAccess, Slot: 0},
			},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(alloc, tt.desc); !errors.Is(err, hal.ErrInvalidCommand) {
				t.Errorf("error = %v, want ErrInvalidCommand", err)
			}
		})
	}
}

func TestRegisterClass(t *testing.T) {
	tests := []struct {
		class RegisterClass
		str   string
		reg   hlsl.RegisterType
	}{
		{ClassConstantBuffer, "b", hlsl.RegisterTypeB},
		{ClassShaderResource, "t", hlsl.RegisterTypeT},
		{ClassSampler, "s", hlsl.RegisterTypeS},
		{ClassUnorderedAccess, "u", hlsl.RegisterTypeU},
	}
	for _, tt := range tests {
		if tt.class.String() != tt.str || tt.class.HLSL() != tt.reg {
			t.Errorf("%d: %q/%v", tt.class, tt.class.String(), tt.class.HLSL())
		}
	}
}

func TestTranslateHLSLNilModule(t *testing.T) {
	if _, err := TranslateHLSL(nil, hlsl.DefaultOptions()); err == nil {
		t.Error("expected error for nil module")
	}
}
