package recording

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/pipeline"
	"github.com/gogpu/cmdemu/resource"
)

// Native limits checked at record time.
const (
	MaxColorAttachments = 8
	MaxVertexBuffers    = 16
	MaxViewports        = 16
	MaxUpdateSize       = 65536

	// WholeSize selects the rest of a buffer from an offset.
	WholeSize = ^uint64(0)
)

// Indirect argument sizes in bytes.
const (
	drawArgsSize        = 16
	drawIndexedArgsSize = 20
	dispatchArgsSize    = 12
)

// BindGraphicsPipeline binds p for subsequent draws.
func (cb *CommandBuffer) BindGraphicsPipeline(p *pipeline.Graphics) error {
	if err := cb.recording(CmdBindGraphicsPipeline.String()); err != nil {
		return err
	}
	if p == nil {
		return cb.invalid(CmdBindGraphicsPipeline, "nil pipeline")
	}
	cb.graphics = p
	cb.append(BindGraphicsPipeline{Pipeline: p}, nil)
	return nil
}

// BindComputePipeline binds p for subsequent dispatches.
func (cb *CommandBuffer) BindComputePipeline(p *pipeline.Compute) error {
	if err := cb.recording(CmdBindComputePipeline.String()); err != nil {
		return err
	}
	if p == nil {
		return cb.invalid(CmdBindComputePipeline, "nil pipeline")
	}
	cb.compute = p
	cb.append(BindComputePipeline{Pipeline: p}, nil)
	return nil
}

// BindDescriptorSet binds set at index of layout for bind point bp. The
// set's contents are snapshotted now; later writes to the set do not change
// the recorded bind.
func (cb *CommandBuffer) BindDescriptorSet(bp pipeline.BindPoint, layout *descriptor.PipelineLayout, index uint32, set *descriptor.Set, dynamicOffsets ...uint32) error {
	const t = CmdBindDescriptorSet
	if err := cb.recording(t.String()); err != nil {
		return err
	}
	if layout == nil || set == nil {
		return cb.invalid(t, "nil layout or set")
	}
	if int(index) >= layout.SetCount() {
		return cb.invalid(t, "set index %d outside layout with %d sets", index, layout.SetCount())
	}
	runs, err := layout.Runs(int(index), set, dynamicOffsets, cb.lookup)
	if err != nil {
		return cb.fail(t.String(), err)
	}
	visible := hal.ShaderGraphics
	if bp == pipeline.BindCompute {
		visible = hal.ShaderCompute
	}
	kept := runs[:0]
	for _, r := range runs {
		if r.Stage&visible != 0 {
			kept = append(kept, r)
		}
	}
	uses, err := cb.setUses(kept)
	if err != nil {
		return cb.fail(t.String(), err)
	}
	if cb.sets[bp] == nil {
		cb.sets[bp] = make(map[uint32]boundSet)
	}
	cb.sets[bp][index] = boundSet{uses: uses}
	cb.append(BindDescriptorSet{BindPoint: bp, Index: index, Set: set, Runs: cb.pool.Runs.Add(kept...)}, nil)
	return nil
}

// BindVertexBuffers binds buffers to vertex slots starting at first.
func (cb *CommandBuffer) BindVertexBuffers(first uint32, buffers ...VertexBinding) error {
	const t = CmdBindVertexBuffers
	if err := cb.recording(t.String()); err != nil {
		return err
	}
	if len(buffers) == 0 || int(first)+len(buffers) > MaxVertexBuffers {
		return cb.invalid(t, "slots [%d, %d) outside %d vertex buffer slots", first, int(first)+len(buffers), MaxVertexBuffers)
	}
	for _, b := range buffers {
		_, info, err := cb.buffer(t, b.Buffer)
		if err != nil {
			return err
		}
		if b.Offset >= info.Size {
			return cb.invalid(t, "offset %d outside buffer of %d bytes", b.Offset, info.Size)
		}
	}
	if cb.vertex == nil {
		cb.vertex = make(map[uint32]VertexBinding)
	}
	for i, b := range buffers {
		// #nosec G115 -- bounded by MaxVertexBuffers
		cb.vertex[first+uint32(i)] = b
	}
	cb.append(BindVertexBuffers{First: first, Buffers: cb.pool.Vertex.Add(buffers...)}, nil)
	return nil
}

// BindIndexBuffer binds the index buffer.
func (cb *CommandBuffer) BindIndexBuffer(buf resource.Handle, offset uint64, format gputypes.IndexFormat) error {
	const t = CmdBindIndexBuffer
	if err := cb.recording(t.String()); err != nil {
		return err
	}
	_, info, err := cb.buffer(t, buf)
	if err != nil {
		return err
	}
	if offset >= info.Size {
		return cb.invalid(t, "offset %d outside buffer of %d bytes", offset, info.Size)
	}
	c := BindIndexBuffer{Buffer: buf, Offset: offset, Format: format}
	cb.index = &c
	cb.append(c, nil)
	return nil
}

// SetViewport sets the viewports.
func (cb *CommandBuffer) SetViewport(viewports ...hal.Viewport) error {
	if err := cb.recording(CmdSetViewport.String()); err != nil {
		return err
	}
	if len(viewports) == 0 || len(viewports) > MaxViewports {
		return cb.invalid(CmdSetViewport, "%d viewports", len(viewports))
	}
	cb.append(SetViewport{Viewports: cb.pool.Viewports.Add(viewports...)}, nil)
	return nil
}

// SetScissor sets the scissor rectangles.
func (cb *CommandBuffer) SetScissor(rects ...hal.Rect) error {
	if err := cb.recording(CmdSetScissor.String()); err != nil {
		return err
	}
	if len(rects) == 0 || len(rects) > MaxViewports {
		return cb.invalid(CmdSetScissor, "%d scissors", len(rects))
	}
	cb.append(SetScissor{Scissors: cb.pool.Scissors.Add(rects...)}, nil)
	return nil
}

// SetBlendConstants sets the blend factor.
func (cb *CommandBuffer) SetBlendConstants(color [4]float32) error {
	if err := cb.recording(CmdSetBlendConstants.String()); err != nil {
		return err
	}
	cb.append(SetBlendConstants{Color: color}, nil)
	return nil
}

// SetStencilReference sets the stencil reference value.
func (cb *CommandBuffer) SetStencilReference(ref uint32) error {
	if err := cb.recording(CmdSetStencilReference.String()); err != nil {
		return err
	}
	cb.append(SetStencilReference{Reference: ref}, nil)
	return nil
}

// PushConstants writes data at offset into the push constant block of layout.
func (cb *CommandBuffer) PushConstants(layout *descriptor.PipelineLayout, stages hal.ShaderStage, offset uint32, data []byte) error {
	const t = CmdPushConstants
	if err := cb.recording(t.String()); err != nil {
		return err
	}
	if layout == nil || stages == 0 {
		return cb.invalid(t, "nil layout or no stages")
	}
	size := layout.PushConstantSize()
	if len(data) == 0 || offset%4 != 0 || len(data)%4 != 0 || uint64(offset)+uint64(len(data)) > uint64(size) {
		return cb.invalid(t, "range [%d, %d) outside %d-byte block or unaligned", offset, int(offset)+len(data), size)
	}
	cb.append(PushConstants{
		Stages: stages,
		Slot:   layout.PushConstantSlot(),
		Offset: offset,
		Data:   cb.pool.Bytes.Add(data...),
	}, nil)
	return nil
}

// RenderPassDescriptor describes a render pass.
type RenderPassDescriptor struct {
	Colors []Attachment
	Depth  Attachment
	Area   hal.Rect
}

// BeginRenderPass starts a render pass.
func (cb *CommandBuffer) BeginRenderPass(desc *RenderPassDescriptor) error {
	const t = CmdBeginRenderPass
	if err := cb.recording(t.String()); err != nil {
		return err
	}
	if cb.pass != nil {
		return cb.invalid(t, "render pass already open")
	}
	if desc == nil || (len(desc.Colors) == 0 && !desc.Depth.View.IsValid()) {
		return cb.invalid(t, "no attachments")
	}
	if len(desc.Colors) > MaxColorAttachments {
		return cb.invalid(t, "%d color attachments, max %d", len(desc.Colors), MaxColorAttachments)
	}

	cb.scratch.reset()
	for i, a := range desc.Colors {
		tracked, info, err := cb.image(t, a.View)
		if err != nil {
			return err
		}
		if resource.IsDepthFormat(info.Format) {
			return cb.invalid(t, "color attachment %d has depth format", i)
		}
		access := hal.AccessWrite
		if a.Load == LoadOpLoad {
			access = hal.AccessReadWrite
		}
		if err := cb.addUse(t, Use{Resource: tracked, State: hal.StateColorAttachment, Access: access, Stage: hal.StageColorAttachmentOutput}); err != nil {
			return err
		}
		if !a.Resolve.IsValid() {
			continue
		}
		rtracked, rinfo, err := cb.image(t, a.Resolve)
		if err != nil {
			return err
		}
		if info.SampleCount <= 1 || rinfo.SampleCount != 1 || info.Format != rinfo.Format {
			return cb.invalid(t, "color attachment %d: resolve needs a multisampled source and single-sampled target of one format", i)
		}
		if err := cb.addUse(t, Use{Resource: rtracked, State: hal.StateColorAttachment, Access: hal.AccessWrite, Stage: hal.StageColorAttachmentOutput}); err != nil {
			return err
		}
	}
	if desc.Depth.View.IsValid() {
		tracked, info, err := cb.image(t, desc.Depth.View)
		if err != nil {
			return err
		}
		if !resource.IsDepthFormat(info.Format) {
			return cb.invalid(t, "depth attachment has color format")
		}
		access := hal.AccessWrite
		if desc.Depth.Load == LoadOpLoad {
			access = hal.AccessReadWrite
		}
		err = cb.addUse(t, Use{
			Resource: tracked,
			State:    hal.StateDepthAttachment,
			Access:   access,
			Stage:    hal.StageEarlyFragmentTests | hal.StageLateFragmentTests,
		})
		if err != nil {
			return err
		}
	}

	ps := &passState{
		colors:      cb.pool.Attachments.Add(desc.Colors...),
		depth:       desc.Depth,
		attachments: make(map[resource.Handle]hal.UsageState, len(cb.scratch.list)),
	}
	for _, u := range cb.scratch.list {
		ps.attachments[u.Resource] = u.State
	}
	cb.pass = ps
	cb.append(BeginRenderPass{Colors: ps.colors, Depth: desc.Depth, Area: desc.Area}, cb.scratch.list)
	return nil
}

// EndRenderPass ends the current render pass.
func (cb *CommandBuffer) EndRenderPass() error {
	if err := cb.recording(CmdEndRenderPass.String()); err != nil {
		return err
	}
	if cb.pass == nil {
		return cb.invalid(CmdEndRenderPass, "no render pass open")
	}
	cb.append(EndRenderPass{Colors: cb.pass.colors}, nil)
	cb.pass = nil
	return nil
}

// ClearAttachments clears attachments of the open render pass.
func (cb *CommandBuffer) ClearAttachments(clears ...ClearValue) error {
	const t = CmdClearAttachments
	if err := cb.recording(t.String()); err != nil {
		return err
	}
	if cb.pass == nil {
		return cb.invalid(t, "no render pass open")
	}
	for _, c := range clears {
		if c.Depth && !cb.pass.depth.View.IsValid() {
			return cb.invalid(t, "depth clear without depth attachment")
		}
		if !c.Depth && int(c.Attachment) >= cb.pass.colors.Len() {
			return cb.invalid(t, "color attachment %d of %d", c.Attachment, cb.pass.colors.Len())
		}
	}
	cb.append(ClearAttachments{
		Clears: cb.pool.Clears.Add(clears...),
		Colors: cb.pass.colors,
		Depth:  cb.pass.depth,
	}, nil)
	return nil
}

// Draw records a non-indexed draw.
func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if err := cb.draw(CmdDraw, false, resource.Handle{}, 0, 0); err != nil {
		return err
	}
	cb.append(Draw{
		VertexCount:   vertexCount,
		InstanceCount: instanceCount,
		FirstVertex:   firstVertex,
		FirstInstance: firstInstance,
	}, cb.scratch.list)
	return nil
}

// DrawIndexed records an indexed draw.
func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) error {
	if err := cb.draw(CmdDrawIndexed, true, resource.Handle{}, 0, 0); err != nil {
		return err
	}
	cb.append(DrawIndexed{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		BaseVertex:    baseVertex,
		FirstInstance: firstInstance,
	}, cb.scratch.list)
	return nil
}

// DrawIndirect records draws with arguments read from buf.
func (cb *CommandBuffer) DrawIndirect(buf resource.Handle, offset uint64, drawCount, stride uint32) error {
	if err := cb.draw(CmdDrawIndirect, false, buf, offset, indirectSpan(drawArgsSize, drawCount, stride)); err != nil {
		return err
	}
	cb.append(DrawIndirect{Buffer: buf, Offset: offset, DrawCount: drawCount, Stride: stride}, cb.scratch.list)
	return nil
}

// DrawIndexedIndirect records indexed draws with arguments read from buf.
func (cb *CommandBuffer) DrawIndexedIndirect(buf resource.Handle, offset uint64, drawCount, stride uint32) error {
	if err := cb.draw(CmdDrawIndexedIndirect, true, buf, offset, indirectSpan(drawIndexedArgsSize, drawCount, stride)); err != nil {
		return err
	}
	cb.append(DrawIndexedIndirect{Buffer: buf, Offset: offset, DrawCount: drawCount, Stride: stride}, cb.scratch.list)
	return nil
}

func indirectSpan(argSize uint64, count, stride uint32) uint64 {
	if count <= 1 {
		return argSize
	}
	return uint64(count-1)*uint64(stride) + argSize
}

// draw runs the checks shared by draw commands and leaves the uses in
// cb.scratch.
func (cb *CommandBuffer) draw(t CommandType, indexed bool, args resource.Handle, offset, argBytes uint64) error {
	if err := cb.recording(t.String()); err != nil {
		return err
	}
	if cb.graphics == nil {
		return cb.invalid(t, "no graphics pipeline bound")
	}
	if indexed && cb.index == nil {
		return cb.invalid(t, "no index buffer bound")
	}
	if err := cb.workUses(t, pipeline.BindGraphics, cb.graphics.Layout()); err != nil {
		return err
	}
	if indexed {
		tracked, _, err := cb.track(cb.index.Buffer)
		if err != nil {
			return cb.fail(t.String(), err)
		}
		if err := cb.addUse(t, Use{Resource: tracked, State: hal.StateIndexBuffer, Access: hal.AccessRead, Stage: hal.StageVertexInput}); err != nil {
			return err
		}
	}
	if args.IsValid() {
		if err := cb.indirect(t, args, offset, argBytes, hal.StageDrawIndirect); err != nil {
			return err
		}
	}
	return cb.checkFeedback(t)
}

// indirect validates an indirect argument buffer and adds its use.
func (cb *CommandBuffer) indirect(t CommandType, buf resource.Handle, offset, size uint64, stage hal.Stage) error {
	tracked, info, err := cb.buffer(t, buf)
	if err != nil {
		return err
	}
	if offset%4 != 0 || offset+size > info.Size {
		return cb.invalid(t, "indirect arguments [%d, %d) unaligned or outside buffer of %d bytes", offset, offset+size, info.Size)
	}
	return cb.addUse(t, Use{Resource: tracked, State: hal.StateIndirectArgument, Access: hal.AccessRead, Stage: stage})
}

// Dispatch records a compute dispatch.
func (cb *CommandBuffer) Dispatch(x, y, z uint32) error {
	if err := cb.dispatch(CmdDispatch, resource.Handle{}, 0); err != nil {
		return err
	}
	cb.append(Dispatch{X: x, Y: y, Z: z}, cb.scratch.list)
	return nil
}

// DispatchIndirect records a dispatch with group counts read from buf.
func (cb *CommandBuffer) DispatchIndirect(buf resource.Handle, offset uint64) error {
	if err := cb.dispatch(CmdDispatchIndirect, buf, offset); err != nil {
		return err
	}
	cb.append(DispatchIndirect{Buffer: buf, Offset: offset}, cb.scratch.list)
	return nil
}

func (cb *CommandBuffer) dispatch(t CommandType, args resource.Handle, offset uint64) error {
	if err := cb.recording(t.String()); err != nil {
		return err
	}
	if cb.pass != nil {
		return cb.invalid(t, "dispatch inside a render pass")
	}
	if cb.compute == nil {
		return cb.invalid(t, "no compute pipeline bound")
	}
	if err := cb.workUses(t, pipeline.BindCompute, cb.compute.Layout()); err != nil {
		return err
	}
	if args.IsValid() {
		return cb.indirect(t, args, offset, dispatchArgsSize, hal.StageDrawIndirect)
	}
	return nil
}

// transfer runs the checks shared by transfer commands.
func (cb *CommandBuffer) transfer(t CommandType) error {
	if err := cb.recording(t.String()); err != nil {
		return err
	}
	if cb.pass != nil {
		return cb.invalid(t, "transfer inside a render pass")
	}
	cb.scratch.reset()
	return nil
}

func (cb *CommandBuffer) transferUse(t CommandType, h resource.Handle, state hal.UsageState) error {
	access := hal.AccessWrite
	if state == hal.StateTransferSrc {
		access = hal.AccessRead
	}
	return cb.addUse(t, Use{Resource: h, State: state, Access: access, Stage: hal.StageTransfer})
}

// CopyBuffer copies regions from src to dst.
func (cb *CommandBuffer) CopyBuffer(src, dst resource.Handle, regions ...BufferCopy) error {
	const t = CmdCopyBuffer
	if err := cb.transfer(t); err != nil {
		return err
	}
	if len(regions) == 0 {
		return cb.invalid(t, "no regions")
	}
	srcT, srcInfo, err := cb.buffer(t, src)
	if err != nil {
		return err
	}
	dstT, dstInfo, err := cb.buffer(t, dst)
	if err != nil {
		return err
	}
	for i, r := range regions {
		if r.Size == 0 || r.Size%4 != 0 || r.SrcOffset%4 != 0 || r.DstOffset%4 != 0 {
			return cb.invalid(t, "region %d: zero or unaligned (src %d, dst %d, size %d)", i, r.SrcOffset, r.DstOffset, r.Size)
		}
		if r.SrcOffset+r.Size > srcInfo.Size || r.DstOffset+r.Size > dstInfo.Size {
			return cb.invalid(t, "region %d: outside source (%d bytes) or destination (%d bytes)", i, srcInfo.Size, dstInfo.Size)
		}
	}
	if err := cb.transferUse(t, srcT, hal.StateTransferSrc); err != nil {
		return err
	}
	if err := cb.transferUse(t, dstT, hal.StateTransferDst); err != nil {
		return err
	}
	cb.append(CopyBuffer{Src: src, Dst: dst, Regions: cb.pool.BufferCopies.Add(regions...)}, cb.scratch.list)
	return nil
}

// CopyImage copies regions from src to dst.
func (cb *CommandBuffer) CopyImage(src, dst resource.Handle, regions ...ImageCopy) error {
	const t = CmdCopyImage
	if err := cb.transfer(t); err != nil {
		return err
	}
	if len(regions) == 0 {
		return cb.invalid(t, "no regions")
	}
	srcT, srcInfo, err := cb.image(t, src)
	if err != nil {
		return err
	}
	dstT, dstInfo, err := cb.image(t, dst)
	if err != nil {
		return err
	}
	if srcInfo.Format != dstInfo.Format || srcInfo.SampleCount != dstInfo.SampleCount {
		return cb.invalid(t, "format or sample count mismatch")
	}
	for i, r := range regions {
		if err := checkImageRegion(srcInfo, r.SrcMip, r.SrcOrigin, r.Extent); err != nil {
			return cb.invalid(t, "region %d source: %v", i, err)
		}
		if err := checkImageRegion(dstInfo, r.DstMip, r.DstOrigin, r.Extent); err != nil {
			return cb.invalid(t, "region %d destination: %v", i, err)
		}
	}
	if err := cb.transferUse(t, srcT, hal.StateTransferSrc); err != nil {
		return err
	}
	if err := cb.transferUse(t, dstT, hal.StateTransferDst); err != nil {
		return err
	}
	cb.append(CopyImage{Src: src, Dst: dst, Regions: cb.pool.ImageCopies.Add(regions...)}, cb.scratch.list)
	return nil
}

func (cb *CommandBuffer) bufferImage(t CommandType, buf, img resource.Handle, toImage bool, regions []BufferImageCopy) error {
	if err := cb.transfer(t); err != nil {
		return err
	}
	if len(regions) == 0 {
		return cb.invalid(t, "no regions")
	}
	bufT, bufInfo, err := cb.buffer(t, buf)
	if err != nil {
		return err
	}
	imgT, imgInfo, err := cb.image(t, img)
	if err != nil {
		return err
	}
	if imgInfo.SampleCount > 1 {
		return cb.invalid(t, "multisampled image")
	}
	for i, r := range regions {
		if r.BufferOffset%4 != 0 {
			return cb.invalid(t, "region %d: buffer offset %d unaligned", i, r.BufferOffset)
		}
		if err := checkImageRegion(imgInfo, r.Mip, r.Origin, r.Extent); err != nil {
			return cb.invalid(t, "region %d: %v", i, err)
		}
		if end := r.BufferOffset + bufferFootprint(r, imgInfo.Format); end > bufInfo.Size {
			return cb.invalid(t, "region %d: needs %d buffer bytes, buffer has %d", i, end, bufInfo.Size)
		}
	}
	bufState, imgState := hal.StateTransferSrc, hal.StateTransferDst
	if !toImage {
		bufState, imgState = hal.StateTransferDst, hal.StateTransferSrc
	}
	if err := cb.transferUse(t, bufT, bufState); err != nil {
		return err
	}
	return cb.transferUse(t, imgT, imgState)
}

// CopyBufferToImage uploads buffer data into image regions.
func (cb *CommandBuffer) CopyBufferToImage(buf, img resource.Handle, regions ...BufferImageCopy) error {
	if err := cb.bufferImage(CmdCopyBufferToImage, buf, img, true, regions); err != nil {
		return err
	}
	cb.append(CopyBufferToImage{Buffer: buf, Image: img, Regions: cb.pool.BufferImages.Add(regions...)}, cb.scratch.list)
	return nil
}

// CopyImageToBuffer reads image regions back into a buffer.
func (cb *CommandBuffer) CopyImageToBuffer(img, buf resource.Handle, regions ...BufferImageCopy) error {
	if err := cb.bufferImage(CmdCopyImageToBuffer, buf, img, false, regions); err != nil {
		return err
	}
	cb.append(CopyImageToBuffer{Image: img, Buffer: buf, Regions: cb.pool.BufferImages.Add(regions...)}, cb.scratch.list)
	return nil
}

// UpdateBuffer writes data into dst at offset. The data is copied.
func (cb *CommandBuffer) UpdateBuffer(dst resource.Handle, offset uint64, data []byte) error {
	const t = CmdUpdateBuffer
	if err := cb.transfer(t); err != nil {
		return err
	}
	tracked, info, err := cb.buffer(t, dst)
	if err != nil {
		return err
	}
	n := uint64(len(data))
	if n == 0 || n%4 != 0 || offset%4 != 0 || n > MaxUpdateSize || offset+n > info.Size {
		return cb.invalid(t, "%d bytes at %d: empty, unaligned, over %d or outside buffer of %d", n, offset, MaxUpdateSize, info.Size)
	}
	if err := cb.transferUse(t, tracked, hal.StateTransferDst); err != nil {
		return err
	}
	cb.append(UpdateBuffer{Dst: dst, Offset: offset, Data: cb.pool.Bytes.Add(data...)}, cb.scratch.list)
	return nil
}

// FillBuffer fills size bytes of dst at offset with value. Use WholeSize
// for the rest of the buffer.
func (cb *CommandBuffer) FillBuffer(dst resource.Handle, offset, size uint64, value uint32) error {
	const t = CmdFillBuffer
	if err := cb.transfer(t); err != nil {
		return err
	}
	tracked, info, err := cb.buffer(t, dst)
	if err != nil {
		return err
	}
	if size == WholeSize && offset < info.Size {
		size = (info.Size - offset) &^ 3
	}
	if size == 0 || size%4 != 0 || offset%4 != 0 || offset+size > info.Size {
		return cb.invalid(t, "%d bytes at %d: empty, unaligned or outside buffer of %d", size, offset, info.Size)
	}
	if err := cb.transferUse(t, tracked, hal.StateTransferDst); err != nil {
		return err
	}
	cb.append(FillBuffer{Dst: dst, Offset: offset, Size: size, Value: value}, cb.scratch.list)
	return nil
}

// ClearImage clears img outside a render pass. Depth images are cleared
// to depth and stencil, others to color.
func (cb *CommandBuffer) ClearImage(img resource.Handle, color [4]float32, depth float32, stencil uint8) error {
	const t = CmdClearImage
	if err := cb.transfer(t); err != nil {
		return err
	}
	tracked, _, err := cb.image(t, img)
	if err != nil {
		return err
	}
	if err := cb.transferUse(t, tracked, hal.StateTransferDst); err != nil {
		return err
	}
	cb.append(ClearImage{Image: img, Color: color, Depth: depth, Stencil: stencil}, cb.scratch.list)
	return nil
}

// ResolveImage resolves multisampled src into dst.
func (cb *CommandBuffer) ResolveImage(src, dst resource.Handle) error {
	const t = CmdResolveImage
	if err := cb.transfer(t); err != nil {
		return err
	}
	srcT, srcInfo, err := cb.image(t, src)
	if err != nil {
		return err
	}
	dstT, dstInfo, err := cb.image(t, dst)
	if err != nil {
		return err
	}
	if srcInfo.SampleCount <= 1 || dstInfo.SampleCount != 1 {
		return cb.invalid(t, "resolve from %d to %d samples", srcInfo.SampleCount, dstInfo.SampleCount)
	}
	if srcInfo.Format != dstInfo.Format || srcInfo.Extent != dstInfo.Extent {
		return cb.invalid(t, "format or extent mismatch")
	}
	if err := cb.transferUse(t, srcT, hal.StateTransferSrc); err != nil {
		return err
	}
	if err := cb.transferUse(t, dstT, hal.StateTransferDst); err != nil {
		return err
	}
	cb.append(ResolveImage{Src: src, Dst: dst}, cb.scratch.list)
	return nil
}

// PipelineBarrier records explicit transitions. Views are recorded on their
// parent resource. Zero stages mean all commands.
func (cb *CommandBuffer) PipelineBarrier(barriers ...Barrier) error {
	const t = CmdPipelineBarrier
	if err := cb.recording(t.String()); err != nil {
		return err
	}
	if len(barriers) == 0 {
		return cb.invalid(t, "no barriers")
	}
	if cb.pass != nil {
		return cb.invalid(t, "barrier inside a render pass")
	}
	out := make([]Barrier, len(barriers))
	for i, b := range barriers {
		tracked, info, err := cb.track(b.Resource)
		if err != nil {
			return cb.fail(t.String(), err)
		}
		if !info.Kind.Tracked() && !info.Kind.IsView() {
			return cb.invalid(t, "barrier %d on a %s", i, info.Kind)
		}
		if !b.OldState.Valid() || !b.NewState.Valid() || b.NewState == hal.StateUndefined {
			return cb.invalid(t, "barrier %d: transition %s -> %s", i, b.OldState, b.NewState)
		}
		b.Resource = tracked
		if b.SrcStage == hal.StageNone {
			b.SrcStage = hal.StageAllCommands
		}
		if b.DstStage == hal.StageNone {
			b.DstStage = hal.StageAllCommands
		}
		out[i] = b
	}
	cb.append(PipelineBarrier{Barriers: cb.pool.Barriers.Add(out...)}, nil)
	return nil
}

// InsertDebugMarker inserts a named marker.
func (cb *CommandBuffer) InsertDebugMarker(label string) error {
	if err := cb.recording(CmdInsertDebugMarker.String()); err != nil {
		return err
	}
	cb.append(InsertDebugMarker{Label: label}, nil)
	return nil
}
