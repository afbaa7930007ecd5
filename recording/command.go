package recording

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/pipeline"
	"github.com/gogpu/cmdemu/resource"
)

// CommandType identifies the type of a command.
type CommandType uint8

const (
	// State commands
	CmdBindGraphicsPipeline CommandType = iota
	CmdBindComputePipeline
	CmdBindDescriptorSet
	CmdBindVertexBuffers
	CmdBindIndexBuffer
	CmdSetViewport
	CmdSetScissor
	CmdSetBlendConstants
	CmdSetStencilReference
	CmdPushConstants

	// Render pass commands
	CmdBeginRenderPass
	CmdEndRenderPass
	CmdClearAttachments

	// Work commands
	CmdDraw
	CmdDrawIndexed
	CmdDrawIndirect
	CmdDrawIndexedIndirect
	CmdDispatch
	CmdDispatchIndirect

	// Transfer commands
	CmdCopyBuffer
	CmdCopyImage
	CmdCopyBufferToImage
	CmdCopyImageToBuffer
	CmdUpdateBuffer
	CmdFillBuffer
	CmdClearImage
	CmdResolveImage

	// Synchronization and debug commands
	CmdPipelineBarrier
	CmdInsertDebugMarker
)

// commandTypeNames maps CommandType values to their string representation.
var commandTypeNames = [...]string{
	CmdBindGraphicsPipeline: "BindGraphicsPipeline",
	CmdBindComputePipeline:  "BindComputePipeline",
	CmdBindDescriptorSet:    "BindDescriptorSet",
	CmdBindVertexBuffers:    "BindVertexBuffers",
	CmdBindIndexBuffer:      "BindIndexBuffer",
	CmdSetViewport:          "SetViewport",
	CmdSetScissor:           "SetScissor",
	CmdSetBlendConstants:    "SetBlendConstants",
	CmdSetStencilReference:  "SetStencilReference",
	CmdPushConstants:        "PushConstants",
	CmdBeginRenderPass:      "BeginRenderPass",
	CmdEndRenderPass:        "EndRenderPass",
	CmdClearAttachments:     "ClearAttachments",
	CmdDraw:                 "Draw",
	CmdDrawIndexed:          "DrawIndexed",
	CmdDrawIndirect:         "DrawIndirect",
	CmdDrawIndexedIndirect:  "DrawIndexedIndirect",
	CmdDispatch:             "Dispatch",
	CmdDispatchIndirect:     "DispatchIndirect",
	CmdCopyBuffer:           "CopyBuffer",
	CmdCopyImage:            "CopyImage",
	CmdCopyBufferToImage:    "CopyBufferToImage",
	CmdCopyImageToBuffer:    "CopyImageToBuffer",
	CmdUpdateBuffer:         "UpdateBuffer",
	CmdFillBuffer:           "FillBuffer",
	CmdClearImage:           "ClearImage",
	CmdResolveImage:         "ResolveImage",
	CmdPipelineBarrier:      "PipelineBarrier",
	CmdInsertDebugMarker:    "InsertDebugMarker",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// IsTransfer reports whether c is a transfer command.
func (c CommandType) IsTransfer() bool {
	return c >= CmdCopyBuffer && c <= CmdResolveImage
}

// Command is the interface implemented by all command types.
type Command interface {
	// Type returns the CommandType for this command.
	Type() CommandType
}

// Use is one resource access of a command. Resource is always the tracked
// buffer or image; accesses through views are recorded on the parent.
type Use struct {
	Resource resource.Handle
	State    hal.UsageState
	Access   hal.Access
	Stage    hal.Stage
}

// Barrier is a resource usage transition.
type Barrier struct {
	Resource resource.Handle
	OldState hal.UsageState
	NewState hal.UsageState
	SrcStage hal.Stage
	DstStage hal.Stage

	// SrcQueue and DstQueue describe a queue ownership transfer when both
	// are set and differ.
	SrcQueue resource.QueueID
	DstQueue resource.QueueID
}

// QueueTransfer reports whether the barrier moves ownership between queues.
func (b Barrier) QueueTransfer() bool {
	return b.SrcQueue != resource.NoQueue && b.DstQueue != resource.NoQueue && b.SrcQueue != b.DstQueue
}

// LoadOp is what a render pass does with attachment contents on begin.
type LoadOp uint8

// Load operations.
const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

// Attachment is a render pass attachment.
type Attachment struct {
	// View is an image view or image. The zero handle means "none".
	View resource.Handle

	// Resolve receives the multisample resolve on EndRenderPass.
	Resolve resource.Handle

	Load         LoadOp
	ClearColor   [4]float32
	ClearDepth   float32
	ClearStencil uint8
}

// ClearValue is one attachment clear inside a render pass.
type ClearValue struct {
	// Attachment is the color attachment index. Ignored for depth clears.
	Attachment uint32
	Depth      bool
	Color      [4]float32
	DepthValue float32
	Stencil    uint8
}

// VertexBinding is one bound vertex buffer.
type VertexBinding struct {
	Buffer resource.Handle
	Offset uint64
}

// BufferCopy is one buffer to buffer copy region.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// ImageCopy is one image to image copy region.
type ImageCopy struct {
	SrcMip    uint32
	SrcOrigin hal.Origin3D
	DstMip    uint32
	DstOrigin hal.Origin3D
	Extent    gputypes.Extent3D
}

// BufferImageCopy is one buffer to image (or back) copy region.
type BufferImageCopy struct {
	BufferOffset uint64

	// BytesPerRow and RowsPerImage describe the buffer layout. Zero means
	// tightly packed.
	BytesPerRow  uint32
	RowsPerImage uint32

	Mip    uint32
	Origin hal.Origin3D
	Extent gputypes.Extent3D
}

// --------------------------------------------------------------------------
// State commands
// --------------------------------------------------------------------------

// BindGraphicsPipeline binds a graphics pipeline.
type BindGraphicsPipeline struct {
	Pipeline *pipeline.Graphics
}

func (BindGraphicsPipeline) Type() CommandType { return CmdBindGraphicsPipeline }

// BindComputePipeline binds a compute pipeline.
type BindComputePipeline struct {
	Pipeline *pipeline.Compute
}

func (BindComputePipeline) Type() CommandType { return CmdBindComputePipeline }

// BindDescriptorSet binds a descriptor set. Runs is the record-time
// snapshot of the set's native slot runs for the bind point.
type BindDescriptorSet struct {
	BindPoint pipeline.BindPoint
	Index     uint32
	Set       *descriptor.Set
	Runs      Span[descriptor.Run]
}

func (BindDescriptorSet) Type() CommandType { return CmdBindDescriptorSet }

// BindVertexBuffers binds vertex buffers starting at slot First.
type BindVertexBuffers struct {
	First   uint32
	Buffers Span[VertexBinding]
}

func (BindVertexBuffers) Type() CommandType { return CmdBindVertexBuffers }

// BindIndexBuffer binds the index buffer.
type BindIndexBuffer struct {
	Buffer resource.Handle
	Offset uint64
	Format gputypes.IndexFormat
}

func (BindIndexBuffer) Type() CommandType { return CmdBindIndexBuffer }

// SetViewport sets the viewports.
type SetViewport struct {
	Viewports Span[hal.Viewport]
}

func (SetViewport) Type() CommandType { return CmdSetViewport }

// SetScissor sets the scissor rectangles.
type SetScissor struct {
	Scissors Span[hal.Rect]
}

func (SetScissor) Type() CommandType { return CmdSetScissor }

// SetBlendConstants sets the blend factor.
type SetBlendConstants struct {
	Color [4]float32
}

func (SetBlendConstants) Type() CommandType { return CmdSetBlendConstants }

// SetStencilReference sets the stencil reference value.
type SetStencilReference struct {
	Reference uint32
}

func (SetStencilReference) Type() CommandType { return CmdSetStencilReference }

// PushConstants updates the push constant block, replayed into the
// constant buffer Slot reserved by the pipeline layout.
type PushConstants struct {
	Stages hal.ShaderStage
	Slot   uint32
	Offset uint32
	Data   Span[byte]
}

func (PushConstants) Type() CommandType { return CmdPushConstants }

// --------------------------------------------------------------------------
// Render pass commands
// --------------------------------------------------------------------------

// BeginRenderPass binds render targets and applies load operations.
type BeginRenderPass struct {
	Colors Span[Attachment]
	Depth  Attachment
	Area   hal.Rect
}

func (BeginRenderPass) Type() CommandType { return CmdBeginRenderPass }

// EndRenderPass ends the current pass and performs resolves.
type EndRenderPass struct {
	Colors Span[Attachment]
}

func (EndRenderPass) Type() CommandType { return CmdEndRenderPass }

// ClearAttachments clears attachments of the current pass.
type ClearAttachments struct {
	Clears Span[ClearValue]
	Colors Span[Attachment]
	Depth  Attachment
}

func (ClearAttachments) Type() CommandType { return CmdClearAttachments }

// --------------------------------------------------------------------------
// Work commands
// --------------------------------------------------------------------------

// Draw draws non-indexed primitives.
type Draw struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

func (Draw) Type() CommandType { return CmdDraw }

// DrawIndexed draws indexed primitives.
type DrawIndexed struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

func (DrawIndexed) Type() CommandType { return CmdDrawIndexed }

// DrawIndirect draws with arguments read from Buffer.
type DrawIndirect struct {
	Buffer    resource.Handle
	Offset    uint64
	DrawCount uint32
	Stride    uint32
}

func (DrawIndirect) Type() CommandType { return CmdDrawIndirect }

// DrawIndexedIndirect draws indexed primitives with arguments read from Buffer.
type DrawIndexedIndirect struct {
	Buffer    resource.Handle
	Offset    uint64
	DrawCount uint32
	Stride    uint32
}

func (DrawIndexedIndirect) Type() CommandType { return CmdDrawIndexedIndirect }

// Dispatch dispatches compute work groups.
type Dispatch struct {
	X, Y, Z uint32
}

func (Dispatch) Type() CommandType { return CmdDispatch }

// DispatchIndirect dispatches with group counts read from Buffer.
type DispatchIndirect struct {
	Buffer resource.Handle
	Offset uint64
}

func (DispatchIndirect) Type() CommandType { return CmdDispatchIndirect }

// --------------------------------------------------------------------------
// Transfer commands
// --------------------------------------------------------------------------

// CopyBuffer copies regions between buffers.
type CopyBuffer struct {
	Src, Dst resource.Handle
	Regions  Span[BufferCopy]
}

func (CopyBuffer) Type() CommandType { return CmdCopyBuffer }

// CopyImage copies regions between images.
type CopyImage struct {
	Src, Dst resource.Handle
	Regions  Span[ImageCopy]
}

func (CopyImage) Type() CommandType { return CmdCopyImage }

// CopyBufferToImage uploads buffer data into an image.
type CopyBufferToImage struct {
	Buffer  resource.Handle
	Image   resource.Handle
	Regions Span[BufferImageCopy]
}

func (CopyBufferToImage) Type() CommandType { return CmdCopyBufferToImage }

// CopyImageToBuffer reads image data back into a buffer.
type CopyImageToBuffer struct {
	Image   resource.Handle
	Buffer  resource.Handle
	Regions Span[BufferImageCopy]
}

func (CopyImageToBuffer) Type() CommandType { return CmdCopyImageToBuffer }

// UpdateBuffer writes inline data into a buffer.
type UpdateBuffer struct {
	Dst    resource.Handle
	Offset uint64
	Data   Span[byte]
}

func (UpdateBuffer) Type() CommandType { return CmdUpdateBuffer }

// FillBuffer fills a buffer range with a 32-bit value.
type FillBuffer struct {
	Dst    resource.Handle
	Offset uint64
	Size   uint64
	Value  uint32
}

func (FillBuffer) Type() CommandType { return CmdFillBuffer }

// ClearImage clears a whole image outside a render pass.
type ClearImage struct {
	Image   resource.Handle
	Color   [4]float32
	Depth   float32
	Stencil uint8
}

func (ClearImage) Type() CommandType { return CmdClearImage }

// ResolveImage resolves a multisampled image into a single-sampled one.
type ResolveImage struct {
	Src, Dst resource.Handle
}

func (ResolveImage) Type() CommandType { return CmdResolveImage }

// --------------------------------------------------------------------------
// Synchronization and debug commands
// --------------------------------------------------------------------------

// PipelineBarrier is an explicit transition list. The hazard tracker
// applies it as authoritative.
type PipelineBarrier struct {
	Barriers Span[Barrier]
}

func (PipelineBarrier) Type() CommandType { return CmdPipelineBarrier }

// InsertDebugMarker inserts a named marker into the native stream.
type InsertDebugMarker struct {
	Label string
}

func (InsertDebugMarker) Type() CommandType { return CmdInsertDebugMarker }
