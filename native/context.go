// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/pipeline"
	"github.com/gogpu/cmdemu/resource"
)

// ErrDeferredUnsupported is returned by NewDeferred on backends without
// deferred contexts.
var ErrDeferredUnsupported = errors.New("native: deferred contexts not supported")

// View is a bindable native view of a resource. Offset and Size select a
// byte range of a buffer; a zero Size means the whole resource.
type View struct {
	// Handle is the bound handle, a view or the resource itself.
	Handle resource.Handle
	// Resource is the tracked buffer or image behind Handle.
	Resource resource.Handle
	Object   resource.Native
	Offset   uint64
	Size     uint64
}

// Same reports whether v and o bind the same range of the same object.
func (v View) Same(o View) bool {
	return v.Handle == o.Handle && v.Offset == o.Offset && v.Size == o.Size
}

// IsZero reports whether v is the null view, which unbinds a slot.
func (v View) IsZero() bool { return !v.Handle.IsValid() }

func (v View) String() string {
	if v.IsZero() {
		return "null"
	}
	if v.Offset == 0 && v.Size == 0 {
		return v.Handle.String()
	}
	return fmt.Sprintf("%v[%d+%d]", v.Handle, v.Offset, v.Size)
}

// VertexBuffer is a vertex buffer binding.
type VertexBuffer struct {
	View
	Stride uint64
}

// Footprint is the layout of image data in a buffer.
type Footprint struct {
	Offset       uint64
	BytesPerRow  uint32
	RowsPerImage uint32
}

// Location is one side of a texture copy: an image subresource region, or
// image data in a buffer when Footprint is set.
type Location struct {
	View      View
	Mip       uint32
	Origin    hal.Origin3D
	Footprint *Footprint
}

// Context is an implicit-state native context.
//
// Calls are not safe for concurrent use. Slot-range setters replace the
// slots [start, start+len(views)); a zero View unbinds its slot.
type Context interface {
	SetGraphicsPipeline(p *pipeline.Graphics)
	SetComputePipeline(p *pipeline.Compute)

	SetVertexBuffers(start uint32, buffers []VertexBuffer)
	SetIndexBuffer(v View, format gputypes.IndexFormat)
	SetRenderTargets(colors []View, depth View)
	SetViewports(viewports []hal.Viewport)
	SetScissors(rects []hal.Rect)
	SetBlendFactor(color [4]float32)
	SetStencilRef(ref uint32)

	SetConstantBuffers(stage hal.ShaderStage, start uint32, views []View)
	SetShaderResources(stage hal.ShaderStage, start uint32, views []View)
	SetSamplers(stage hal.ShaderStage, start uint32, views []View)
	SetUnorderedAccessViews(stage hal.ShaderStage, start uint32, views []View)
	SetPushConstants(stages hal.ShaderStage, slot, offset uint32, data []byte)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	DrawIndirect(args View, offset uint64)
	DrawIndexedIndirect(args View, offset uint64)
	Dispatch(x, y, z uint32)
	DispatchIndirect(args View, offset uint64)

	CopyBufferRegion(dst View, dstOffset uint64, src View, srcOffset, size uint64)
	CopyTextureRegion(dst, src Location, extent gputypes.Extent3D)
	UpdateSubresource(dst View, offset uint64, data []byte)
	ClearRenderTargetView(v View, color [4]float32)
	ClearDepthStencilView(v View, depth float32, stencil uint8)
	ClearUnorderedAccessView(v View, value uint32)
	ResolveSubresource(dst, src View)

	// UAVBarrier orders unordered-access work on v.
	UAVBarrier(v View)
	// Flush submits buffered work to the device.
	Flush()
	SetMarker(label string)

	// Status reports device loss. It returns nil while the device is healthy
	// and an error wrapping hal.ErrDeviceLost afterwards.
	Status() error
}

// CommandList is a finished deferred command list.
type CommandList interface {
	Label() string
}

// DeferredContext records calls into a command list.
type DeferredContext interface {
	Context

	// FinishCommandList closes the recording and returns the list. The
	// context starts a new list with cleared binding state.
	FinishCommandList(label string) (CommandList, error)
}

// Immediate is the device's immediate context.
type Immediate interface {
	Context

	// NewDeferred creates a deferred context, or fails with
	// ErrDeferredUnsupported.
	NewDeferred() (DeferredContext, error)

	// ExecuteCommandList plays a finished command list.
	ExecuteCommandList(list CommandList) error
}
