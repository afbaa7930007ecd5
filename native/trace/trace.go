// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package trace provides a native replay target that records every call
// instead of driving a device.
//
// Importing the package registers it as the "trace" backend. The recorded
// call log is what tests and the cmdemu CLI inspect: each Call is one
// native API call with its arguments rendered as text.
package trace

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/native"
	"github.com/gogpu/cmdemu/pipeline"
)

func init() {
	native.Register("trace", func() native.Immediate { return New() })
}

// ErrForeignCommandList is returned when executing a list produced by
// another backend.
var ErrForeignCommandList = errors.New("trace: command list from another backend")

// Call is one recorded native call.
type Call struct {
	Op   string
	Args string
}

func (c Call) String() string { return c.Op + "(" + c.Args + ")" }

// Context is a recording native context. The zero value is not usable;
// call New.
type Context struct {
	mu        sync.Mutex
	calls     []Call
	lost      error
	loseAfter int

	// parent is the immediate context of a deferred context.
	parent *Context
}

var (
	_ native.Immediate       = (*Context)(nil)
	_ native.DeferredContext = (*deferred)(nil)
)

// New returns an immediate trace context.
func New() *Context {
	return &Context{loseAfter: -1}
}

// Calls returns a copy of the call log.
func (c *Context) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Count returns how many calls named op were recorded.
func (c *Context) Count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Op == op {
			n++
		}
	}
	return n
}

// Reset clears the call log.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = c.calls[:0]
}

// Dump renders the call log one call per line.
func (c *Context) Dump() string {
	var b strings.Builder
	for i, call := range c.Calls() {
		fmt.Fprintf(&b, "%4d  %s\n", i, call)
	}
	return b.String()
}

// LoseDevice makes Status report err, wrapped with hal.ErrDeviceLost.
func (c *Context) LoseDevice(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loseLocked(err)
}

// LoseAfter loses the device once n more calls have been recorded.
func (c *Context) LoseAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loseAfter = n
}

func (c *Context) loseLocked(err error) {
	if c.lost != nil {
		return
	}
	if err == nil {
		err = errors.New("device removed")
	}
	c.lost = fmt.Errorf("trace: %w: %w", hal.ErrDeviceLost, err)
	logger().Warn("trace: device lost", "err", err, "calls", len(c.calls))
}

// Status implements native.Context.
func (c *Context) Status() error {
	if c.parent != nil {
		return c.parent.Status()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lost
}

func (c *Context) add(op, format string, args ...any) {
	call := Call{Op: op, Args: fmt.Sprintf(format, args...)}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	if c.loseAfter > 0 {
		c.loseAfter--
		if c.loseAfter == 0 {
			c.loseLocked(nil)
		}
	}
}

func views(vs []native.View) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func location(l native.Location) string {
	if l.Footprint != nil {
		return fmt.Sprintf("%v@%d/%d/%d", l.View, l.Footprint.Offset, l.Footprint.BytesPerRow, l.Footprint.RowsPerImage)
	}
	return fmt.Sprintf("%v mip%d (%d,%d,%d)", l.View, l.Mip, l.Origin.X, l.Origin.Y, l.Origin.Z)
}

func (c *Context) SetGraphicsPipeline(p *pipeline.Graphics) {
	c.add("SetGraphicsPipeline", "%d %q", p.ID(), p.Label())
}

func (c *Context) SetComputePipeline(p *pipeline.Compute) {
	c.add("SetComputePipeline", "%d %q", p.ID(), p.Label())
}

func (c *Context) SetVertexBuffers(start uint32, buffers []native.VertexBuffer) {
	parts := make([]string, len(buffers))
	for i, b := range buffers {
		parts[i] = fmt.Sprintf("%v/%d", b.View, b.Stride)
	}
	c.add("SetVertexBuffers", "%d [%s]", start, strings.Join(parts, " "))
}

func (c *Context) SetIndexBuffer(v native.View, format gputypes.IndexFormat) {
	c.add("SetIndexBuffer", "%v %v", v, format)
}

func (c *Context) SetRenderTargets(colors []native.View, depth native.View) {
	c.add("SetRenderTargets", "%s %v", views(colors), depth)
}

func (c *Context) SetViewports(viewports []hal.Viewport) {
	c.add("SetViewports", "%v", viewports)
}

func (c *Context) SetScissors(rects []hal.Rect) {
	c.add("SetScissors", "%v", rects)
}

func (c *Context) SetBlendFactor(color [4]float32) {
	c.add("SetBlendFactor", "%v", color)
}

func (c *Context) SetStencilRef(ref uint32) {
	c.add("SetStencilRef", "%d", ref)
}

func (c *Context) SetConstantBuffers(stage hal.ShaderStage, start uint32, vs []native.View) {
	c.add("SetConstantBuffers", "%s %d %s", stage, start, views(vs))
}

func (c *Context) SetShaderResources(stage hal.ShaderStage, start uint32, vs []native.View) {
	c.add("SetShaderResources", "%s %d %s", stage, start, views(vs))
}

func (c *Context) SetSamplers(stage hal.ShaderStage, start uint32, vs []native.View) {
	c.add("SetSamplers", "%s %d %s", stage, start, views(vs))
}

func (c *Context) SetUnorderedAccessViews(stage hal.ShaderStage, start uint32, vs []native.View) {
	c.add("SetUnorderedAccessViews", "%s %d %s", stage, start, views(vs))
}

func (c *Context) SetPushConstants(stages hal.ShaderStage, slot, offset uint32, data []byte) {
	c.add("SetPushConstants", "%s b%d +%d %d bytes", stages, slot, offset, len(data))
}

func (c *Context) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.add("Draw", "%d %d %d %d", vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *Context) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	c.add("DrawIndexed", "%d %d %d %d %d", indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (c *Context) DrawIndirect(args native.View, offset uint64) {
	c.add("DrawIndirect", "%v +%d", args, offset)
}

func (c *Context) DrawIndexedIndirect(args native.View, offset uint64) {
	c.add("DrawIndexedIndirect", "%v +%d", args, offset)
}

func (c *Context) Dispatch(x, y, z uint32) {
	c.add("Dispatch", "%d %d %d", x, y, z)
}

func (c *Context) DispatchIndirect(args native.View, offset uint64) {
	c.add("DispatchIndirect", "%v +%d", args, offset)
}

func (c *Context) CopyBufferRegion(dst native.View, dstOffset uint64, src native.View, srcOffset, size uint64) {
	c.add("CopyBufferRegion", "%v+%d <- %v+%d %d", dst, dstOffset, src, srcOffset, size)
}

func (c *Context) CopyTextureRegion(dst, src native.Location, extent gputypes.Extent3D) {
	c.add("CopyTextureRegion", "%s <- %s %dx%dx%d", location(dst), location(src),
		extent.Width, extent.Height, extent.DepthOrArrayLayers)
}

func (c *Context) UpdateSubresource(dst native.View, offset uint64, data []byte) {
	c.add("UpdateSubresource", "%v+%d %d bytes", dst, offset, len(data))
}

func (c *Context) ClearRenderTargetView(v native.View, color [4]float32) {
	c.add("ClearRenderTargetView", "%v %v", v, color)
}

func (c *Context) ClearDepthStencilView(v native.View, depth float32, stencil uint8) {
	c.add("ClearDepthStencilView", "%v %g %d", v, depth, stencil)
}

func (c *Context) ClearUnorderedAccessView(v native.View, value uint32) {
	c.add("ClearUnorderedAccessView", "%v %#x", v, value)
}

func (c *Context) ResolveSubresource(dst, src native.View) {
	c.add("ResolveSubresource", "%v <- %v", dst, src)
}

func (c *Context) UAVBarrier(v native.View) {
	c.add("UAVBarrier", "%v", v)
}

func (c *Context) Flush() {
	c.add("Flush", "")
}

func (c *Context) SetMarker(label string) {
	c.add("SetMarker", "%q", label)
}

// CommandList is a finished deferred trace list.
type CommandList struct {
	label string
	calls []Call
}

// Label implements native.CommandList.
func (l *CommandList) Label() string { return l.label }

// Calls returns the recorded calls of the list.
func (l *CommandList) Calls() []Call { return l.calls }

type deferred struct {
	*Context
}

// NewDeferred implements native.Immediate.
func (c *Context) NewDeferred() (native.DeferredContext, error) {
	if c.parent != nil {
		return nil, fmt.Errorf("trace: nested deferred context: %w", hal.ErrInvalidState)
	}
	return deferred{&Context{parent: c, loseAfter: -1}}, nil
}

// FinishCommandList implements native.DeferredContext.
func (d deferred) FinishCommandList(label string) (native.CommandList, error) {
	if err := d.Status(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	list := &CommandList{label: label, calls: d.calls}
	d.calls = nil
	return list, nil
}

// ExecuteCommandList implements native.Immediate.
func (c *Context) ExecuteCommandList(list native.CommandList) error {
	l, ok := list.(*CommandList)
	if !ok {
		return ErrForeignCommandList
	}
	if err := c.Status(); err != nil {
		return err
	}
	c.add("ExecuteCommandList", "%q", l.label)
	for _, call := range l.calls {
		c.add(call.Op, "%s", call.Args)
	}
	return nil
}
