package pipeline

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/resource"
	"github.com/gogpu/cmdemu/shader"
)

func newModule(t *testing.T, alloc resource.Allocator, stage hal.ShaderStage) *shader.Module {
	t.Helper()
	m, err := shader.New(alloc, &shader.Descriptor{Label: stage.String(), Stage: stage, Blob: []byte{1}})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func emptyLayout(t *testing.T) *descriptor.PipelineLayout {
	t.Helper()
	pl, err := descriptor.NewPipelineLayout(&descriptor.LayoutDescriptor{})
	if err != nil {
		t.Fatal(err)
	}
	return pl
}

func TestNewGraphics(t *testing.T) {
	alloc := resource.NewHostAllocator(1)
	vs := newModule(t, alloc, hal.ShaderVertex)
	fs := newModule(t, alloc, hal.ShaderFragment)

	g, err := NewGraphics(&GraphicsDescriptor{
		Label:         "tri",
		Layout:        emptyLayout(t),
		Vertex:        vs,
		Fragment:      fs,
		Topology:      gputypes.PrimitiveTopologyTriangleList,
		VertexBuffers: []VertexBufferLayout{{Stride: 12}},
	})
	if err != nil {
		t.Fatalf("NewGraphics: %v", err)
	}
	if g.ID() == 0 || g.BindPoint() != BindGraphics {
		t.Errorf("id=%d bind=%v", g.ID(), g.BindPoint())
	}
	if g.Stride(0) != 12 || g.Stride(1) != 0 {
		t.Errorf("Stride = %d, %d", g.Stride(0), g.Stride(1))
	}
	v, f := g.Shaders()
	if v == nil || f == nil {
		t.Error("native shaders not captured")
	}

	g2, _ := NewGraphics(&GraphicsDescriptor{Layout: emptyLayout(t), Vertex: vs})
	if g2.ID() == g.ID() {
		t.Error("pipeline IDs must be unique")
	}
}

func TestNewGraphicsErrors(t *testing.T) {
	alloc := resource.NewHostAllocator(1)
	vs := newModule(t, alloc, hal.ShaderVertex)
	cs := newModule(t, alloc, hal.ShaderCompute)
	layout := emptyLayout(t)

	tests := []struct {
		name string
		desc GraphicsDescriptor
	}{
		{"no layout", GraphicsDescriptor{Vertex: vs}},
		{"no vertex", GraphicsDescriptor{Layout: layout}},
		{"wrong stage", GraphicsDescriptor{Layout: layout, Vertex: cs}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGraphics(&tt.desc); !errors.Is(err, hal.ErrInvalidCommand) {
				t.Errorf("error = %v, want ErrInvalidCommand", err)
			}
		})
	}

	vs.Destroy()
	if _, err := NewGraphics(&GraphicsDescriptor{Layout: layout, Vertex: vs}); !errors.Is(err, shader.ErrDestroyed) {
		t.Errorf("destroyed module error = %v", err)
	}
}

func TestNewCompute(t *testing.T) {
	alloc := resource.NewHostAllocator(1)
	c, err := NewCompute(&ComputeDescriptor{Label: "fill", Layout: emptyLayout(t), Compute: newModule(t, alloc, hal.ShaderCompute)})
	if err != nil {
		t.Fatal(err)
	}
	if c.BindPoint() != BindCompute || c.Shader() == nil {
		t.Errorf("compute pipeline = %+v", c)
	}
	if _, err := NewCompute(&ComputeDescriptor{Layout: emptyLayout(t), Compute: newModule(t, alloc, hal.ShaderFragment)}); !errors.Is(err, hal.ErrInvalidCommand) {
		t.Errorf("wrong stage error = %v", err)
	}
}
