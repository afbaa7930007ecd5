package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cmdemu"
	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/pipeline"
	"github.com/gogpu/cmdemu/recording"
	"github.com/gogpu/cmdemu/resource"
	"github.com/gogpu/cmdemu/shader"
)

// scenario is a set of recorded buffers and the resources worth reporting.
type scenario struct {
	buffers []*recording.CommandBuffer
	watch   map[string]resource.Handle
}

type builder func(dev *cmdemu.Device) (*scenario, error)

var scenarios = map[string]builder{
	"triangle":      buildTriangle,
	"copy-dispatch": buildCopyDispatch,
	"round-trip":    buildRoundTrip,
}

func scenarioNames() []string {
	return slices.Sorted(maps.Keys(scenarios))
}

// record begins a buffer, runs steps until one fails, and ends it.
func record(dev *cmdemu.Device, label string, steps ...func(cb *recording.CommandBuffer) error) (*recording.CommandBuffer, error) {
	cb, err := dev.NewCommandBuffer(label)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(); err != nil {
		return nil, err
	}
	for _, step := range steps {
		if err := step(cb); err != nil {
			return nil, fmt.Errorf("record %q: %w", label, err)
		}
	}
	if err := cb.End(); err != nil {
		return nil, err
	}
	return cb, nil
}

// sources holds the WGSL entry point of each scenario stage.
var sources = map[hal.ShaderStage]string{
	hal.ShaderVertex: `
@vertex
fn main(@location(0) pos: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 1.0);
}
`,
	hal.ShaderFragment: `
@fragment
fn main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`,
	hal.ShaderCompute: `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] + 1u;
}
`,
}

// workBindings is the set layout of the compute scenarios: the data
// buffer the shader writes and a lookup image.
var workBindings = []descriptor.LayoutBinding{
	{Binding: 0, Type: descriptor.StorageBuffer, Visibility: hal.ShaderCompute},
	{Binding: 1, Type: descriptor.SampledImage, Visibility: hal.ShaderCompute},
}

// module compiles the stage's WGSL source and creates its module.
func module(dev *cmdemu.Device, stage hal.ShaderStage) (*shader.Module, error) {
	blob, err := shader.CompileWGSL(sources[stage])
	if err != nil {
		return nil, fmt.Errorf("%s shader: %w", stage, err)
	}
	return dev.CreateShaderModule(&shader.Descriptor{Label: stage.String(), Stage: stage, Blob: blob})
}

func buildTriangle(dev *cmdemu.Device) (*scenario, error) {
	rt, err := dev.CreateImage(&resource.ImageDescriptor{
		Label:     "backbuffer",
		Size:      gputypes.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Dimension: gputypes.TextureDimension2D,
		Usage:     gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, err
	}
	vb, err := dev.CreateBuffer(&resource.BufferDescriptor{Label: "vertices", Size: 36, Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst})
	if err != nil {
		return nil, err
	}
	layout, err := dev.CreatePipelineLayout(&descriptor.LayoutDescriptor{Label: "empty"})
	if err != nil {
		return nil, err
	}
	vs, err := module(dev, hal.ShaderVertex)
	if err != nil {
		return nil, err
	}
	fs, err := module(dev, hal.ShaderFragment)
	if err != nil {
		return nil, err
	}
	pso, err := dev.CreateGraphicsPipeline(&pipeline.GraphicsDescriptor{
		Label:         "triangle",
		Layout:        layout,
		Vertex:        vs,
		Fragment:      fs,
		Topology:      gputypes.PrimitiveTopologyTriangleList,
		VertexBuffers: []pipeline.VertexBufferLayout{{Stride: 12}},
		ColorFormats:  []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
	})
	if err != nil {
		return nil, err
	}

	upload, err := record(dev, "upload",
		func(cb *recording.CommandBuffer) error { return cb.UpdateBuffer(vb, 0, make([]byte, 36)) },
	)
	if err != nil {
		return nil, err
	}
	draw, err := record(dev, "draw",
		func(cb *recording.CommandBuffer) error {
			return cb.BeginRenderPass(&recording.RenderPassDescriptor{
				Colors: []recording.Attachment{{View: rt, Load: recording.LoadOpClear, ClearColor: [4]float32{0, 0, 0, 1}}},
				Area:   hal.Rect{Width: 64, Height: 64},
			})
		},
		func(cb *recording.CommandBuffer) error { return cb.BindGraphicsPipeline(pso) },
		func(cb *recording.CommandBuffer) error {
			return cb.SetViewport(hal.Viewport{Width: 64, Height: 64, MaxDepth: 1})
		},
		func(cb *recording.CommandBuffer) error {
			return cb.BindVertexBuffers(0, recording.VertexBinding{Buffer: vb})
		},
		func(cb *recording.CommandBuffer) error { return cb.Draw(3, 1, 0, 0) },
		func(cb *recording.CommandBuffer) error { return cb.EndRenderPass() },
	)
	if err != nil {
		return nil, err
	}
	return &scenario{
		buffers: []*recording.CommandBuffer{upload, draw},
		watch:   map[string]resource.Handle{"backbuffer": rt, "vertices": vb},
	}, nil
}

func buildCopyDispatch(dev *cmdemu.Device) (*scenario, error) {
	staging, err := dev.CreateBuffer(&resource.BufferDescriptor{Label: "staging", Size: 256, Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst})
	if err != nil {
		return nil, err
	}
	data, err := dev.CreateBuffer(&resource.BufferDescriptor{Label: "data", Size: 256, Usage: gputypes.BufferUsageCopyDst | gputypes.BufferUsageStorage})
	if err != nil {
		return nil, err
	}
	lut, err := dev.CreateImage(&resource.ImageDescriptor{
		Label:     "lut",
		Size:      gputypes.Extent3D{Width: 16, Height: 1, DepthOrArrayLayers: 1},
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Dimension: gputypes.TextureDimension2D,
		Usage:     gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	setl, err := dev.CreateSetLayout(workBindings...)
	if err != nil {
		return nil, err
	}
	layout, err := dev.CreatePipelineLayout(&descriptor.LayoutDescriptor{Label: "work", Sets: []*descriptor.SetLayout{setl}})
	if err != nil {
		return nil, err
	}
	cs, err := module(dev, hal.ShaderCompute)
	if err != nil {
		return nil, err
	}
	pso, err := dev.CreateComputePipeline(&pipeline.ComputeDescriptor{Label: "scan", Layout: layout, Compute: cs})
	if err != nil {
		return nil, err
	}
	set := descriptor.NewSet(setl, "work")
	if err := set.Write(0, 0, descriptor.Entry{Resource: data}); err != nil {
		return nil, err
	}
	if err := set.Write(1, 0, descriptor.Entry{Resource: lut}); err != nil {
		return nil, err
	}

	cb, err := record(dev, "copy-dispatch",
		func(cb *recording.CommandBuffer) error { return cb.UpdateBuffer(staging, 0, make([]byte, 256)) },
		func(cb *recording.CommandBuffer) error {
			return cb.CopyBufferToImage(staging, lut, recording.BufferImageCopy{Extent: gputypes.Extent3D{Width: 16, Height: 1, DepthOrArrayLayers: 1}})
		},
		func(cb *recording.CommandBuffer) error {
			return cb.CopyBuffer(staging, data, recording.BufferCopy{Size: 256})
		},
		func(cb *recording.CommandBuffer) error { return cb.BindComputePipeline(pso) },
		func(cb *recording.CommandBuffer) error {
			return cb.BindDescriptorSet(pipeline.BindCompute, layout, 0, set)
		},
		func(cb *recording.CommandBuffer) error { return cb.Dispatch(4, 1, 1) },
		func(cb *recording.CommandBuffer) error { return cb.Dispatch(4, 1, 1) },
	)
	if err != nil {
		return nil, err
	}
	return &scenario{
		buffers: []*recording.CommandBuffer{cb},
		watch:   map[string]resource.Handle{"staging": staging, "data": data, "lut": lut},
	}, nil
}

func buildRoundTrip(dev *cmdemu.Device) (*scenario, error) {
	buf, err := dev.CreateBuffer(&resource.BufferDescriptor{Label: "scratch", Size: 128})
	if err != nil {
		return nil, err
	}
	img, err := dev.CreateImage(&resource.ImageDescriptor{
		Label:     "target",
		Size:      gputypes.Extent3D{Width: 8, Height: 8, DepthOrArrayLayers: 1},
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Dimension: gputypes.TextureDimension2D,
	})
	if err != nil {
		return nil, err
	}
	cb, err := record(dev, "round-trip",
		func(cb *recording.CommandBuffer) error {
			return cb.PipelineBarrier(
				recording.Barrier{Resource: buf, OldState: hal.StateUndefined, NewState: hal.StateTransferDst},
				recording.Barrier{Resource: img, OldState: hal.StateUndefined, NewState: hal.StateTransferDst},
			)
		},
		func(cb *recording.CommandBuffer) error { return cb.FillBuffer(buf, 0, recording.WholeSize, 0xdeadbeef) },
		func(cb *recording.CommandBuffer) error { return cb.ClearImage(img, [4]float32{1, 0, 0, 1}, 0, 0) },
		func(cb *recording.CommandBuffer) error {
			return cb.PipelineBarrier(
				recording.Barrier{Resource: buf, OldState: hal.StateTransferDst, NewState: hal.StateGeneral},
				recording.Barrier{Resource: img, OldState: hal.StateTransferDst, NewState: hal.StateGeneral},
			)
		},
	)
	if err != nil {
		return nil, err
	}
	return &scenario{
		buffers: []*recording.CommandBuffer{cb},
		watch:   map[string]resource.Handle{"scratch": buf, "target": img},
	}, nil
}
