// Package cmdemu emulates explicit, Vulkan-style command buffers on top of
// an implicit-state native API.
//
// # Overview
//
// Applications record commands into command buffers, bind resources through
// descriptor sets, and submit buffers to queues. The engine tracks the
// usage state of every buffer and image, infers the barriers an explicit
// API would require, and replays the commands against a native immediate
// context that has no notion of barriers or descriptor sets.
//
// # Quick Start
//
//	dev, err := cmdemu.New()
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	img, _ := dev.CreateImage(&resource.ImageDescriptor{
//	    Size:   gputypes.Extent3D{Width: 640, Height: 480, DepthOrArrayLayers: 1},
//	    Format: gputypes.TextureFormatRGBA8Unorm,
//	})
//	cb, _ := dev.NewCommandBuffer("frame")
//	_ = cb.Begin()
//	_ = cb.BeginRenderPass(&recording.RenderPassDescriptor{
//	    Colors: []recording.Attachment{{View: img, Load: recording.LoadOpClear}},
//	})
//	_ = cb.BindGraphicsPipeline(pso)
//	_ = cb.Draw(3, 1, 0, 0)
//	_ = cb.EndRenderPass()
//	_ = cb.End()
//
//	f := fence.New("frame")
//	err = dev.Submit(ctx, queue.Submission{Buffers: []*recording.CommandBuffer{cb}, Fence: f})
//
// # Architecture
//
// The library is organized into:
//   - resource: handle table, allocators, usage-flag checks
//   - recording: command buffers and their static checks
//   - descriptor, shader, pipeline: binding model and pipeline objects
//   - internal/hazard: barrier inference and per-submission state snapshots
//   - internal/statecache: redundant native call elimination
//   - queue: submission, replay, fences, semaphores, device loss
//   - native: the replay target interface and barrier action table
//
// # Backends
//
// Native contexts come from the registry in package native. The trace
// backend, which records every native call, is always registered and is
// the default.
package cmdemu
