// Package pipeline defines graphics and compute pipeline objects: a
// pipeline layout plus the fixed native state replayed when the pipeline
// is bound.
package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/resource"
	"github.com/gogpu/cmdemu/shader"
)

// ID identifies a pipeline. Zero means "no pipeline".
type ID uint64

var nextID atomic.Uint64

// BindPoint selects the graphics or compute binding slots.
type BindPoint uint8

// Bind points.
const (
	BindGraphics BindPoint = iota
	BindCompute
)

func (b BindPoint) String() string {
	if b == BindCompute {
		return "compute"
	}
	return "graphics"
}

// Pipeline is implemented by *Graphics and *Compute.
type Pipeline interface {
	ID() ID
	Label() string
	BindPoint() BindPoint
	Layout() *descriptor.PipelineLayout
}

// VertexBufferLayout describes one vertex buffer slot.
type VertexBufferLayout struct {
	Stride       uint64
	StepInstance bool
}

// GraphicsDescriptor describes a graphics pipeline.
type GraphicsDescriptor struct {
	Label    string
	Layout   *descriptor.PipelineLayout
	Vertex   *shader.Module
	Fragment *shader.Module

	Topology      gputypes.PrimitiveTopology
	VertexBuffers []VertexBufferLayout
	ColorFormats  []gputypes.TextureFormat
	DepthFormat   gputypes.TextureFormat
}

// Graphics is an immutable graphics pipeline.
type Graphics struct {
	id       ID
	desc     GraphicsDescriptor
	vertex   resource.Native
	fragment resource.Native
}

// NewGraphics creates a graphics pipeline.
func NewGraphics(desc *GraphicsDescriptor) (*Graphics, error) {
	if desc.Layout == nil {
		return nil, fmt.Errorf("pipeline: %q: no layout: %w", desc.Label, hal.ErrInvalidCommand)
	}
	vs, err := stageNative(desc.Label, desc.Vertex, hal.ShaderVertex, true)
	if err != nil {
		return nil, err
	}
	fs, err := stageNative(desc.Label, desc.Fragment, hal.ShaderFragment, false)
	if err != nil {
		return nil, err
	}
	d := *desc
	d.VertexBuffers = append([]VertexBufferLayout(nil), desc.VertexBuffers...)
	d.ColorFormats = append([]gputypes.TextureFormat(nil), desc.ColorFormats...)
	return &Graphics{id: ID(nextID.Add(1)), desc: d, vertex: vs, fragment: fs}, nil
}

func stageNative(label string, m *shader.Module, stage hal.ShaderStage, required bool) (resource.Native, error) {
	if m == nil {
		if required {
			return nil, fmt.Errorf("pipeline: %q: missing %s module: %w", label, stage, hal.ErrInvalidCommand)
		}
		return nil, nil
	}
	if m.Stage() != stage {
		return nil, fmt.Errorf("pipeline: %q: %s module %q in %s slot: %w",
			label, m.Stage(), m.Label(), stage, hal.ErrInvalidCommand)
	}
	n, err := m.Native()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %q: %w", label, err)
	}
	return n, nil
}

func (g *Graphics) ID() ID                             { return g.id }
func (g *Graphics) Label() string                      { return g.desc.Label }
func (g *Graphics) BindPoint() BindPoint               { return BindGraphics }
func (g *Graphics) Layout() *descriptor.PipelineLayout { return g.desc.Layout }

// Topology returns the primitive topology.
func (g *Graphics) Topology() gputypes.PrimitiveTopology { return g.desc.Topology }

// VertexBuffers returns the vertex buffer layouts.
func (g *Graphics) VertexBuffers() []VertexBufferLayout { return g.desc.VertexBuffers }

// Stride returns the stride of vertex buffer slot i, or 0.
func (g *Graphics) Stride(i int) uint64 {
	if i < 0 || i >= len(g.desc.VertexBuffers) {
		return 0
	}
	return g.desc.VertexBuffers[i].Stride
}

// ColorFormats returns the render target formats.
func (g *Graphics) ColorFormats() []gputypes.TextureFormat { return g.desc.ColorFormats }

// DepthFormat returns the depth format, or TextureFormatUndefined.
func (g *Graphics) DepthFormat() gputypes.TextureFormat { return g.desc.DepthFormat }

// Shaders returns the native vertex and fragment shader objects. The
// fragment object is nil for depth-only pipelines.
func (g *Graphics) Shaders() (vertex, fragment resource.Native) { return g.vertex, g.fragment }

// ComputeDescriptor describes a compute pipeline.
type ComputeDescriptor struct {
	Label   string
	Layout  *descriptor.PipelineLayout
	Compute *shader.Module
}

// Compute is an immutable compute pipeline.
type Compute struct {
	id     ID
	desc   ComputeDescriptor
	native resource.Native
}

// NewCompute creates a compute pipeline.
func NewCompute(desc *ComputeDescriptor) (*Compute, error) {
	if desc.Layout == nil {
		return nil, fmt.Errorf("pipeline: %q: no layout: %w", desc.Label, hal.ErrInvalidCommand)
	}
	cs, err := stageNative(desc.Label, desc.Compute, hal.ShaderCompute, true)
	if err != nil {
		return nil, err
	}
	return &Compute{id: ID(nextID.Add(1)), desc: *desc, native: cs}, nil
}

func (c *Compute) ID() ID                             { return c.id }
func (c *Compute) Label() string                      { return c.desc.Label }
func (c *Compute) BindPoint() BindPoint               { return BindCompute }
func (c *Compute) Layout() *descriptor.PipelineLayout { return c.desc.Layout }

// Shader returns the native compute shader object.
func (c *Compute) Shader() resource.Native { return c.native }
