// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package statecache suppresses redundant native state-setting calls.
//
// A Cache mirrors what was last sent to one native context and forwards a
// call only when the requested binding differs. Slot-range binds forward
// just the smallest sub-range that changed. The snapshot is updated on
// every request, so it always equals the context's real binding state.
package statecache

import (
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/native"
	"github.com/gogpu/cmdemu/pipeline"
	"github.com/gogpu/cmdemu/resource"
	"github.com/gogpu/cmdemu/shader"
)

// Stats counts forwarded and suppressed requests.
type Stats struct {
	Issued  uint64
	Skipped uint64
}

const stageCount = 3

// Cache is the bound-state snapshot of one native context. It is not safe
// for concurrent use.
type Cache struct {
	ctx    native.Context
	limits descriptor.Limits
	stats  Stats

	graphics *pipeline.Graphics
	compute  *pipeline.Compute

	vertex      []native.VertexBuffer
	index       native.View
	indexFormat gputypes.IndexFormat
	indexKnown  bool

	colors   []native.View
	depth    native.View
	rtKnown  bool
	viewport []hal.Viewport
	scissor  []hal.Rect
	blend    *[4]float32
	stencil  *uint32

	slots [stageCount][shader.ClassCount][]native.View
}

// New returns a cache in front of ctx. Slot tables are sized by limits.
func New(ctx native.Context, limits descriptor.Limits) *Cache {
	c := &Cache{ctx: ctx, limits: limits}
	c.Invalidate()
	return c
}

// Context returns the native context behind the cache.
func (c *Cache) Context() native.Context { return c.ctx }

// Stats returns the request counters.
func (c *Cache) Stats() Stats { return c.stats }

// Invalidate forgets the snapshot, as after the context's state was
// cleared. Every following request is forwarded once.
func (c *Cache) Invalidate() {
	c.graphics, c.compute = nil, nil
	c.vertex = nil
	c.index, c.indexFormat, c.indexKnown = native.View{}, 0, false
	c.colors, c.depth, c.rtKnown = nil, native.View{}, false
	c.viewport, c.scissor = nil, nil
	c.blend, c.stencil = nil, nil
	for s := range c.slots {
		for cl := range c.slots[s] {
			// #nosec G115 -- cl < ClassCount
			c.slots[s][cl] = make([]native.View, c.limits.Of(shader.RegisterClass(cl)))
		}
	}
}

func (c *Cache) skip() bool {
	c.stats.Skipped++
	return false
}

func (c *Cache) issue() bool {
	c.stats.Issued++
	return true
}

// SetGraphicsPipeline binds p. It reports whether a native call was made.
func (c *Cache) SetGraphicsPipeline(p *pipeline.Graphics) bool {
	if c.graphics == p {
		return c.skip()
	}
	c.graphics = p
	c.ctx.SetGraphicsPipeline(p)
	return c.issue()
}

// SetComputePipeline binds p.
func (c *Cache) SetComputePipeline(p *pipeline.Compute) bool {
	if c.compute == p {
		return c.skip()
	}
	c.compute = p
	c.ctx.SetComputePipeline(p)
	return c.issue()
}

// SetVertexBuffers binds buffers from slot start.
func (c *Cache) SetVertexBuffers(start uint32, buffers []native.VertexBuffer) bool {
	if end := int(start) + len(buffers); end > len(c.vertex) {
		c.vertex = append(c.vertex, make([]native.VertexBuffer, end-len(c.vertex))...)
	}
	cur := c.vertex[start : int(start)+len(buffers)]
	lo, hi := changed(cur, buffers, func(a, b native.VertexBuffer) bool {
		return a.Same(b.View) && a.Stride == b.Stride
	})
	if lo == hi {
		return c.skip()
	}
	copy(cur, buffers)
	// #nosec G115 -- lo is bounded by the vertex slot count
	c.ctx.SetVertexBuffers(start+uint32(lo), slices.Clone(buffers[lo:hi]))
	return c.issue()
}

// SetIndexBuffer binds the index buffer.
func (c *Cache) SetIndexBuffer(v native.View, format gputypes.IndexFormat) bool {
	if c.indexKnown && c.index.Same(v) && c.indexFormat == format {
		return c.skip()
	}
	c.index, c.indexFormat, c.indexKnown = v, format, true
	c.ctx.SetIndexBuffer(v, format)
	return c.issue()
}

// SetRenderTargets binds the output merger targets.
func (c *Cache) SetRenderTargets(colors []native.View, depth native.View) bool {
	if c.rtKnown && c.depth.Same(depth) && slices.EqualFunc(c.colors, colors, native.View.Same) {
		return c.skip()
	}
	c.colors, c.depth, c.rtKnown = slices.Clone(colors), depth, true
	c.ctx.SetRenderTargets(slices.Clone(colors), depth)
	return c.issue()
}

// SetViewports sets the viewports.
func (c *Cache) SetViewports(v []hal.Viewport) bool {
	if c.viewport != nil && slices.Equal(c.viewport, v) {
		return c.skip()
	}
	c.viewport = slices.Clone(v)
	c.ctx.SetViewports(slices.Clone(v))
	return c.issue()
}

// SetScissors sets the scissor rectangles.
func (c *Cache) SetScissors(r []hal.Rect) bool {
	if c.scissor != nil && slices.Equal(c.scissor, r) {
		return c.skip()
	}
	c.scissor = slices.Clone(r)
	c.ctx.SetScissors(slices.Clone(r))
	return c.issue()
}

// SetBlendFactor sets the blend constants.
func (c *Cache) SetBlendFactor(color [4]float32) bool {
	if c.blend != nil && *c.blend == color {
		return c.skip()
	}
	c.blend = &color
	c.ctx.SetBlendFactor(color)
	return c.issue()
}

// SetStencilRef sets the stencil reference.
func (c *Cache) SetStencilRef(ref uint32) bool {
	if c.stencil != nil && *c.stencil == ref {
		return c.skip()
	}
	c.stencil = &ref
	c.ctx.SetStencilRef(ref)
	return c.issue()
}

// BindSlots binds views to the slots [start, start+len(views)) of one
// stage and register class, forwarding only the changed sub-range.
func (c *Cache) BindSlots(stage hal.ShaderStage, class shader.RegisterClass, start uint32, views []native.View) bool {
	table := &c.slots[stageSlot(stage)][class]
	if end := int(start) + len(views); end > len(*table) {
		*table = append(*table, make([]native.View, end-len(*table))...)
	}
	cur := (*table)[start : int(start)+len(views)]
	lo, hi := changed(cur, views, native.View.Same)
	if lo == hi {
		return c.skip()
	}
	copy(cur, views)
	// #nosec G115 -- lo is bounded by the slot limit
	c.forward(stage, class, start+uint32(lo), slices.Clone(views[lo:hi]))
	return c.issue()
}

func (c *Cache) forward(stage hal.ShaderStage, class shader.RegisterClass, start uint32, views []native.View) {
	switch class {
	case shader.ClassConstantBuffer:
		c.ctx.SetConstantBuffers(stage, start, views)
	case shader.ClassShaderResource:
		c.ctx.SetShaderResources(stage, start, views)
	case shader.ClassSampler:
		c.ctx.SetSamplers(stage, start, views)
	case shader.ClassUnorderedAccess:
		c.ctx.SetUnorderedAccessViews(stage, start, views)
	}
}

// Bound returns the view in a slot.
func (c *Cache) Bound(stage hal.ShaderStage, class shader.RegisterClass, slot uint32) native.View {
	table := c.slots[stageSlot(stage)][class]
	if int(slot) >= len(table) {
		return native.View{}
	}
	return table[slot]
}

// UnbindShaderResource clears every shader resource slot, in every stage,
// that reads res. It returns the number of native calls made.
func (c *Cache) UnbindShaderResource(res resource.Handle) int {
	return c.unbind(shader.ClassShaderResource, res)
}

// UnbindUnorderedAccess clears every unordered-access slot, in every
// stage, that holds res. It returns the number of native calls made.
func (c *Cache) UnbindUnorderedAccess(res resource.Handle) int {
	return c.unbind(shader.ClassUnorderedAccess, res)
}

func (c *Cache) unbind(class shader.RegisterClass, res resource.Handle) int {
	n := 0
	for s, stage := range [stageCount]hal.ShaderStage{hal.ShaderVertex, hal.ShaderFragment, hal.ShaderCompute} {
		table := c.slots[s][class]
		for i := 0; i < len(table); {
			if table[i].IsZero() || table[i].Resource != res {
				i++
				continue
			}
			j := i
			for j < len(table) && !table[j].IsZero() && table[j].Resource == res {
				j++
			}
			// #nosec G115 -- bounded by the slot limit
			c.BindSlots(stage, class, uint32(i), make([]native.View, j-i))
			n++
			i = j
		}
	}
	return n
}

// UnbindRenderTarget removes res from the bound render targets. It
// reports whether a native call was made.
func (c *Cache) UnbindRenderTarget(res resource.Handle) bool {
	found := false
	colors := slices.Clone(c.colors)
	for i, v := range colors {
		if !v.IsZero() && v.Resource == res {
			colors[i] = native.View{}
			found = true
		}
	}
	depth := c.depth
	if !depth.IsZero() && depth.Resource == res {
		depth = native.View{}
		found = true
	}
	if !found {
		return false
	}
	return c.SetRenderTargets(colors, depth)
}

// RenderTargets returns the bound render targets.
func (c *Cache) RenderTargets() (colors []native.View, depth native.View) {
	return slices.Clone(c.colors), c.depth
}

// changed returns the smallest range [lo, hi) where want differs from cur.
func changed[T any](cur, want []T, same func(a, b T) bool) (lo, hi int) {
	lo = 0
	for lo < len(want) && same(cur[lo], want[lo]) {
		lo++
	}
	if lo == len(want) {
		return lo, lo
	}
	hi = len(want)
	for hi > lo && same(cur[hi-1], want[hi-1]) {
		hi--
	}
	return lo, hi
}

func stageSlot(s hal.ShaderStage) int {
	switch s {
	case hal.ShaderFragment:
		return 1
	case hal.ShaderCompute:
		return 2
	}
	return 0
}
