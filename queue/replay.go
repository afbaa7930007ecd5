package queue

import (
	"maps"
	"slices"

	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/internal/hazard"
	"github.com/gogpu/cmdemu/internal/statecache"
	"github.com/gogpu/cmdemu/native"
	"github.com/gogpu/cmdemu/pipeline"
	"github.com/gogpu/cmdemu/recording"
	"github.com/gogpu/cmdemu/resource"
)

// replayer translates one command buffer into native calls. Descriptor
// sets and vertex buffers are recorded at bind time and flushed into the
// state cache at each draw or dispatch, after that command's barriers.
type replayer struct {
	cache    *statecache.Cache
	ctx      native.Context
	tbl      *resource.Table
	barriers *native.BarrierTable
	pool     *recording.ArgPool

	graphics *pipeline.Graphics
	compute  *pipeline.Compute
	sets     [2]map[uint32][]descriptor.Run
	vertex   map[uint32]recording.VertexBinding
}

// replay issues cb on the context behind c, realizing plan's barriers
// before each command.
func replay(c *statecache.Cache, tbl *resource.Table, bt *native.BarrierTable, cb *recording.CommandBuffer, plan *hazard.Plan) {
	r := &replayer{
		cache:    c,
		ctx:      c.Context(),
		tbl:      tbl,
		barriers: bt,
		pool:     cb.Pool(),
		vertex:   make(map[uint32]recording.VertexBinding),
	}
	for i := range cb.Len() {
		for _, b := range plan.Pre[i] {
			realize(c, tbl, bt, b)
		}
		r.command(cb.Command(i))
	}
}

// realize performs the native actions for one transition.
func realize(c *statecache.Cache, tbl *resource.Table, bt *native.BarrierTable, b recording.Barrier) {
	info, err := tbl.Lookup(b.Resource)
	if err != nil {
		logger().Warn("queue: barrier on dead resource", "resource", b.Resource, "err", err)
		return
	}
	for _, a := range bt.Lookup(info.Kind, b.OldState, b.NewState) {
		switch a {
		case native.ActionFlush:
			c.Context().Flush()
		case native.ActionUAVBarrier:
			c.Context().UAVBarrier(native.View{Handle: b.Resource, Resource: b.Resource, Object: info.Native})
		case native.ActionUnbindShaderResource:
			c.UnbindShaderResource(b.Resource)
		case native.ActionUnbindRenderTarget:
			c.UnbindRenderTarget(b.Resource)
		case native.ActionUnbindUnorderedAccess:
			c.UnbindUnorderedAccess(b.Resource)
		}
	}
}

func (r *replayer) command(cmd recording.Command) {
	switch c := cmd.(type) {
	case recording.BindGraphicsPipeline:
		r.graphics = c.Pipeline
		r.cache.SetGraphicsPipeline(c.Pipeline)
	case recording.BindComputePipeline:
		r.compute = c.Pipeline
		r.cache.SetComputePipeline(c.Pipeline)
	case recording.BindDescriptorSet:
		if r.sets[c.BindPoint] == nil {
			r.sets[c.BindPoint] = make(map[uint32][]descriptor.Run)
		}
		r.sets[c.BindPoint][c.Index] = r.pool.Runs.Get(c.Runs)
	case recording.BindVertexBuffers:
		for i, vb := range r.pool.Vertex.Get(c.Buffers) {
			// #nosec G115 -- bounded by MaxVertexBuffers
			r.vertex[c.First+uint32(i)] = vb
		}
	case recording.BindIndexBuffer:
		r.cache.SetIndexBuffer(r.view(c.Buffer, c.Offset, 0), c.Format)
	case recording.SetViewport:
		r.cache.SetViewports(r.pool.Viewports.Get(c.Viewports))
	case recording.SetScissor:
		r.cache.SetScissors(r.pool.Scissors.Get(c.Scissors))
	case recording.SetBlendConstants:
		r.cache.SetBlendFactor(c.Color)
	case recording.SetStencilReference:
		r.cache.SetStencilRef(c.Reference)
	case recording.PushConstants:
		r.ctx.SetPushConstants(c.Stages, c.Slot, c.Offset, r.pool.Bytes.Get(c.Data))

	case recording.BeginRenderPass:
		r.beginPass(c)
	case recording.EndRenderPass:
		for _, a := range r.pool.Attachments.Get(c.Colors) {
			if a.Resolve.IsValid() {
				r.ctx.ResolveSubresource(r.view(a.Resolve, 0, 0), r.view(a.View, 0, 0))
			}
		}
	case recording.ClearAttachments:
		colors := r.pool.Attachments.Get(c.Colors)
		for _, cv := range r.pool.Clears.Get(c.Clears) {
			if cv.Depth {
				r.ctx.ClearDepthStencilView(r.view(c.Depth.View, 0, 0), cv.DepthValue, cv.Stencil)
				continue
			}
			r.ctx.ClearRenderTargetView(r.view(colors[cv.Attachment].View, 0, 0), cv.Color)
		}

	case recording.Draw:
		r.flushGraphics()
		r.ctx.Draw(c.VertexCount, c.InstanceCount, c.FirstVertex, c.FirstInstance)
	case recording.DrawIndexed:
		r.flushGraphics()
		r.ctx.DrawIndexed(c.IndexCount, c.InstanceCount, c.FirstIndex, c.BaseVertex, c.FirstInstance)
	case recording.DrawIndirect:
		r.flushGraphics()
		args := r.view(c.Buffer, 0, 0)
		for i := range uint64(c.DrawCount) {
			r.ctx.DrawIndirect(args, c.Offset+i*uint64(c.Stride))
		}
	case recording.DrawIndexedIndirect:
		r.flushGraphics()
		args := r.view(c.Buffer, 0, 0)
		for i := range uint64(c.DrawCount) {
			r.ctx.DrawIndexedIndirect(args, c.Offset+i*uint64(c.Stride))
		}
	case recording.Dispatch:
		r.flushSets(pipeline.BindCompute, r.compute.Layout())
		r.ctx.Dispatch(c.X, c.Y, c.Z)
	case recording.DispatchIndirect:
		r.flushSets(pipeline.BindCompute, r.compute.Layout())
		r.ctx.DispatchIndirect(r.view(c.Buffer, 0, 0), c.Offset)

	case recording.CopyBuffer:
		dst, src := r.view(c.Dst, 0, 0), r.view(c.Src, 0, 0)
		for _, reg := range r.pool.BufferCopies.Get(c.Regions) {
			r.ctx.CopyBufferRegion(dst, reg.DstOffset, src, reg.SrcOffset, reg.Size)
		}
	case recording.CopyImage:
		dst, src := r.view(c.Dst, 0, 0), r.view(c.Src, 0, 0)
		for _, reg := range r.pool.ImageCopies.Get(c.Regions) {
			r.ctx.CopyTextureRegion(
				native.Location{View: dst, Mip: reg.DstMip, Origin: reg.DstOrigin},
				native.Location{View: src, Mip: reg.SrcMip, Origin: reg.SrcOrigin},
				reg.Extent)
		}
	case recording.CopyBufferToImage:
		for _, reg := range r.pool.BufferImages.Get(c.Regions) {
			buf, img := r.bufferImage(c.Buffer, c.Image, reg)
			r.ctx.CopyTextureRegion(img, buf, reg.Extent)
		}
	case recording.CopyImageToBuffer:
		for _, reg := range r.pool.BufferImages.Get(c.Regions) {
			buf, img := r.bufferImage(c.Buffer, c.Image, reg)
			r.ctx.CopyTextureRegion(buf, img, reg.Extent)
		}
	case recording.UpdateBuffer:
		r.ctx.UpdateSubresource(r.view(c.Dst, 0, 0), c.Offset, r.pool.Bytes.Get(c.Data))
	case recording.FillBuffer:
		r.ctx.ClearUnorderedAccessView(r.view(c.Dst, c.Offset, c.Size), c.Value)
	case recording.ClearImage:
		v := r.view(c.Image, 0, 0)
		if info, err := r.tbl.Lookup(c.Image); err == nil && resource.IsDepthFormat(info.Format) {
			r.ctx.ClearDepthStencilView(v, c.Depth, c.Stencil)
			break
		}
		r.ctx.ClearRenderTargetView(v, c.Color)
	case recording.ResolveImage:
		r.ctx.ResolveSubresource(r.view(c.Dst, 0, 0), r.view(c.Src, 0, 0))

	case recording.PipelineBarrier:
		// Realized from the plan.
	case recording.InsertDebugMarker:
		r.ctx.SetMarker(c.Label)
	}
}

func (r *replayer) beginPass(c recording.BeginRenderPass) {
	atts := r.pool.Attachments.Get(c.Colors)
	colors := make([]native.View, len(atts))
	for i, a := range atts {
		colors[i] = r.view(a.View, 0, 0)
	}
	depth := r.view(c.Depth.View, 0, 0)
	r.cache.SetRenderTargets(colors, depth)
	for i, a := range atts {
		if a.Load == recording.LoadOpClear {
			r.ctx.ClearRenderTargetView(colors[i], a.ClearColor)
		}
	}
	if c.Depth.View.IsValid() && c.Depth.Load == recording.LoadOpClear {
		r.ctx.ClearDepthStencilView(depth, c.Depth.ClearDepth, c.Depth.ClearStencil)
	}
}

// flushGraphics binds the vertex buffers and descriptor sets for a draw.
func (r *replayer) flushGraphics() {
	r.flushVertex()
	r.flushSets(pipeline.BindGraphics, r.graphics.Layout())
}

// flushVertex binds the recorded vertex buffers as contiguous slot runs,
// with strides from the bound pipeline.
func (r *replayer) flushVertex() {
	slots := slices.Sorted(maps.Keys(r.vertex))
	for i := 0; i < len(slots); {
		j := i
		var run []native.VertexBuffer
		for j < len(slots) && slots[j] == slots[i]+uint32(j-i) { // #nosec G115 -- bounded by MaxVertexBuffers
			vb := r.vertex[slots[j]]
			run = append(run, native.VertexBuffer{
				View:   r.view(vb.Buffer, vb.Offset, 0),
				Stride: r.graphics.Stride(int(slots[j])),
			})
			j++
		}
		r.cache.SetVertexBuffers(slots[i], run)
		i = j
	}
}

// flushSets binds the descriptor sets of bp that layout can address, in
// set order.
func (r *replayer) flushSets(bp pipeline.BindPoint, layout *descriptor.PipelineLayout) {
	sets := r.sets[bp]
	for _, idx := range slices.Sorted(maps.Keys(sets)) {
		if int(idx) >= layout.SetCount() {
			continue
		}
		for _, run := range sets[idx] {
			views := make([]native.View, len(run.Items))
			for i, it := range run.Items {
				views[i] = r.view(it.Resource, it.Offset, it.Size)
			}
			r.cache.BindSlots(run.Stage, run.Class, run.Start, views)
		}
	}
}

// bufferImage returns the two copy locations of a buffer/image region.
func (r *replayer) bufferImage(buf, img resource.Handle, reg recording.BufferImageCopy) (bufLoc, imgLoc native.Location) {
	fp := &native.Footprint{
		Offset:       reg.BufferOffset,
		BytesPerRow:  reg.BytesPerRow,
		RowsPerImage: reg.RowsPerImage,
	}
	if info, err := r.tbl.Lookup(img); err == nil && fp.BytesPerRow == 0 {
		// #nosec G115 -- row pitch of a valid image fits uint32
		fp.BytesPerRow = uint32(resource.BytesPerTexel(info.Format) * uint64(reg.Extent.Width))
	}
	if fp.RowsPerImage == 0 {
		fp.RowsPerImage = reg.Extent.Height
	}
	bufLoc = native.Location{View: r.view(buf, 0, 0), Footprint: fp}
	imgLoc = native.Location{View: r.view(img, 0, 0), Mip: reg.Mip, Origin: reg.Origin}
	return bufLoc, imgLoc
}

// view returns the native view of h. Views resolve to their parent for
// hazard-driven unbinding.
func (r *replayer) view(h resource.Handle, offset, size uint64) native.View {
	if !h.IsValid() {
		return native.View{}
	}
	v := native.View{Handle: h, Resource: h, Offset: offset, Size: size}
	info, err := r.tbl.Lookup(h)
	if err != nil {
		return v
	}
	v.Object = info.Native
	if info.Kind.IsView() {
		v.Resource = info.Parent
	}
	return v
}
