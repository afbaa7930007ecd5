package queue

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/fence"
	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/internal/hazard"
	"github.com/gogpu/cmdemu/native/trace"
	"github.com/gogpu/cmdemu/pipeline"
	"github.com/gogpu/cmdemu/recording"
	"github.com/gogpu/cmdemu/resource"
	"github.com/gogpu/cmdemu/shader"
)

type fixture struct {
	tbl      *resource.Table
	arena    *hazard.Arena
	ctx      *trace.Context
	layout   *descriptor.PipelineLayout
	setl     *descriptor.SetLayout
	graphics *pipeline.Graphics
	compute  *pipeline.Compute
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	alloc := resource.NewHostAllocator(4)
	tbl, err := resource.NewTable(alloc)
	if err != nil {
		t.Fatal(err)
	}
	setl, err := descriptor.NewSetLayout(
		descriptor.LayoutBinding{Binding: 0, Type: descriptor.StorageBuffer, Visibility: hal.ShaderCompute},
		descriptor.LayoutBinding{Binding: 1, Type: descriptor.SampledImage, Visibility: hal.ShaderFragment | hal.ShaderCompute},
	)
	if err != nil {
		t.Fatal(err)
	}
	layout, err := descriptor.NewPipelineLayout(&descriptor.LayoutDescriptor{Sets: []*descriptor.SetLayout{setl}})
	if err != nil {
		t.Fatal(err)
	}
	module := func(stage hal.ShaderStage) *shader.Module {
		m, err := shader.New(alloc, &shader.Descriptor{Label: stage.String(), Stage: stage, Blob: []byte{1}})
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
	g, err := pipeline.NewGraphics(&pipeline.GraphicsDescriptor{
		Label:    "tri",
		Layout:   layout,
		Vertex:   module(hal.ShaderVertex),
		Fragment: module(hal.ShaderFragment),
		Topology: gputypes.PrimitiveTopologyTriangleList,
	})
	if err != nil {
		t.Fatal(err)
	}
	c, err := pipeline.NewCompute(&pipeline.ComputeDescriptor{Label: "cs", Layout: layout, Compute: module(hal.ShaderCompute)})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		tbl:      tbl,
		arena:    hazard.NewArena(tbl),
		ctx:      trace.New(),
		layout:   layout,
		setl:     setl,
		graphics: g,
		compute:  c,
	}
}

func (f *fixture) queue(t *testing.T, deferred int) *Queue {
	t.Helper()
	q, err := New(Config{ID: 1, Label: "gfx", Context: f.ctx, Table: f.tbl, Arena: f.arena, Deferred: deferred})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func (f *fixture) buffer(t *testing.T, size uint64) resource.Handle {
	t.Helper()
	h, err := f.tbl.CreateBuffer(&resource.BufferDescriptor{Size: size})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func (f *fixture) image(t *testing.T) resource.Handle {
	t.Helper()
	h, err := f.tbl.CreateImage(&resource.ImageDescriptor{
		Size:      gputypes.Extent3D{Width: 8, Height: 8, DepthOrArrayLayers: 1},
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Dimension: gputypes.TextureDimension2D,
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// record returns an executable buffer holding the commands of fn.
func (f *fixture) record(t *testing.T, label string, fn func(cb *recording.CommandBuffer) error) *recording.CommandBuffer {
	t.Helper()
	cb, err := recording.New(f.tbl, label)
	if err != nil {
		t.Fatal(err)
	}
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := fn(cb); err != nil {
		t.Fatal(err)
	}
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
	return cb
}

func (f *fixture) triangle(t *testing.T, target resource.Handle) *recording.CommandBuffer {
	t.Helper()
	return f.record(t, "tri", func(cb *recording.CommandBuffer) error {
		err := cb.BeginRenderPass(&recording.RenderPassDescriptor{
			Colors: []recording.Attachment{{View: target, Load: recording.LoadOpClear, ClearColor: [4]float32{0, 0, 0, 1}}},
		})
		if err != nil {
			return err
		}
		if err := cb.BindGraphicsPipeline(f.graphics); err != nil {
			return err
		}
		if err := cb.Draw(3, 1, 0, 0); err != nil {
			return err
		}
		return cb.EndRenderPass()
	})
}

// copyDispatch copies into dst and runs two dispatches writing it.
func (f *fixture) copyDispatch(t *testing.T, src, dst, img resource.Handle) *recording.CommandBuffer {
	t.Helper()
	set := descriptor.NewSet(f.setl, "work")
	if err := set.Write(0, 0, descriptor.Entry{Resource: dst}); err != nil {
		t.Fatal(err)
	}
	if err := set.Write(1, 0, descriptor.Entry{Resource: img}); err != nil {
		t.Fatal(err)
	}
	return f.record(t, "copy", func(cb *recording.CommandBuffer) error {
		if err := cb.CopyBuffer(src, dst, recording.BufferCopy{Size: 64}); err != nil {
			return err
		}
		if err := cb.BindComputePipeline(f.compute); err != nil {
			return err
		}
		if err := cb.BindDescriptorSet(pipeline.BindCompute, f.layout, 0, set); err != nil {
			return err
		}
		if err := cb.Dispatch(4, 1, 1); err != nil {
			return err
		}
		return cb.Dispatch(4, 1, 1)
	})
}

func (f *fixture) state(t *testing.T, h resource.Handle) hal.UsageState {
	t.Helper()
	st, err := f.arena.State(h)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func ops(calls []trace.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}

func TestTriangle(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, 0)
	img := f.image(t)
	cb := f.triangle(t, img)
	fc := fence.New("frame")

	if err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{cb}, Fence: fc}); err != nil {
		t.Fatal(err)
	}
	if got := f.ctx.Count("SetGraphicsPipeline"); got != 1 {
		t.Errorf("SetGraphicsPipeline calls = %d, want 1", got)
	}
	if got := f.ctx.Count("Draw"); got != 1 {
		t.Errorf("Draw calls = %d, want 1", got)
	}
	if got := f.ctx.Count("ClearRenderTargetView"); got != 1 {
		t.Errorf("ClearRenderTargetView calls = %d, want 1", got)
	}
	if fc.Status() != fence.Signaled {
		t.Errorf("fence = %s", fc.Status())
	}
	if err := fc.Wait(0); err != nil {
		t.Errorf("fence wait = %v", err)
	}
	if cb.Status() != recording.StatusExecutable {
		t.Errorf("buffer = %s", cb.Status())
	}
	if st := f.state(t, img); st != hal.StateColorAttachment {
		t.Errorf("target state = %s", st)
	}
	if q.InUse(img) {
		t.Error("target still in use after completion")
	}
	if f.arena.Pending() != 0 {
		t.Errorf("%d pending snapshots", f.arena.Pending())
	}

	// Resubmitting binds nothing new.
	f.ctx.Reset()
	if err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{cb}}); err != nil {
		t.Fatal(err)
	}
	want := []string{"ClearRenderTargetView", "Draw"}
	if got := ops(f.ctx.Calls()); !slices.Equal(got, want) {
		t.Errorf("steady state calls = %v, want %v", got, want)
	}
	if s := q.CacheStats(); s.Skipped == 0 {
		t.Errorf("cache stats = %+v", s)
	}
}

func TestCopyThenDispatch(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, 0)
	src, dst, img := f.buffer(t, 256), f.buffer(t, 256), f.image(t)
	cb := f.copyDispatch(t, src, dst, img)

	if err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{cb}}); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"CopyBufferRegion",
		"SetComputePipeline",
		"SetShaderResources",
		"SetUnorderedAccessViews",
		"Dispatch",
		"UAVBarrier",
		"Dispatch",
	}
	if got := ops(f.ctx.Calls()); !slices.Equal(got, want) {
		t.Errorf("calls:\n%s\nwant %v", f.ctx.Dump(), want)
	}
	for h, want := range map[resource.Handle]hal.UsageState{
		src: hal.StateTransferSrc,
		dst: hal.StateUnorderedAccess,
		img: hal.StateShaderResource,
	} {
		if got := f.state(t, h); got != want {
			t.Errorf("state of %v = %s, want %s", h, got, want)
		}
	}
}

func TestSubmitRecordingBuffer(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, 0)
	img := f.image(t)
	ok := f.triangle(t, img)
	open, err := recording.New(f.tbl, "open")
	if err != nil {
		t.Fatal(err)
	}
	if err := open.Begin(); err != nil {
		t.Fatal(err)
	}
	fc := fence.New("f")

	err = q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{ok, open}, Fence: fc})
	if !errors.Is(err, hal.ErrInvalidState) {
		t.Fatalf("Submit = %v, want ErrInvalidState", err)
	}
	if n := len(f.ctx.Calls()); n != 0 {
		t.Errorf("%d native calls from a rejected submission", n)
	}
	if fc.Pending() || fc.Status() != fence.Unsignaled {
		t.Errorf("fence pending=%t status=%s", fc.Pending(), fc.Status())
	}
	if ok.Status() != recording.StatusExecutable || open.Status() != recording.StatusRecording {
		t.Errorf("statuses = %s, %s", ok.Status(), open.Status())
	}
	if st := f.state(t, img); st != hal.StateUndefined {
		t.Errorf("target state = %s after rejection", st)
	}
}

func TestHazardFailureAppliesNothing(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, 0)
	img := f.image(t)
	buf := f.buffer(t, 64)
	good := f.triangle(t, img)
	bad := f.record(t, "bad", func(cb *recording.CommandBuffer) error {
		return cb.PipelineBarrier(recording.Barrier{Resource: buf, OldState: hal.StateTransferSrc, NewState: hal.StateTransferDst})
	})

	err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{good, bad}})
	if !errors.Is(err, hal.ErrHazardMismatch) {
		t.Fatalf("Submit = %v, want ErrHazardMismatch", err)
	}
	if n := len(f.ctx.Calls()); n != 0 {
		t.Errorf("%d native calls from a rejected submission", n)
	}
	if good.Status() != recording.StatusExecutable {
		t.Errorf("good buffer = %s", good.Status())
	}
	if bad.Status() != recording.StatusInvalid || !errors.Is(bad.Err(), hal.ErrHazardMismatch) {
		t.Errorf("bad buffer = %s (%v)", bad.Status(), bad.Err())
	}
	if st := f.state(t, img); st != hal.StateUndefined {
		t.Errorf("target state = %s after rejection", st)
	}
	if f.arena.Pending() != 0 {
		t.Errorf("%d pending snapshots", f.arena.Pending())
	}
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, 0)
	buf := f.buffer(t, 64)
	cb := f.record(t, "rt", func(cb *recording.CommandBuffer) error {
		if err := cb.PipelineBarrier(recording.Barrier{Resource: buf, OldState: hal.StateUndefined, NewState: hal.StateTransferDst}); err != nil {
			return err
		}
		if err := cb.FillBuffer(buf, 0, recording.WholeSize, 7); err != nil {
			return err
		}
		return cb.PipelineBarrier(recording.Barrier{Resource: buf, OldState: hal.StateTransferDst, NewState: hal.StateGeneral})
	})

	for i := range 3 {
		if err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{cb}}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if st := f.state(t, buf); st != hal.StateGeneral {
			t.Fatalf("submit %d: state = %s", i, st)
		}
	}
	if got := f.ctx.Count("ClearUnorderedAccessView"); got != 3 {
		t.Errorf("fills = %d", got)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	run := func() []trace.Call {
		f := newFixture(t)
		q := f.queue(t, 0)
		src, dst, img := f.buffer(t, 256), f.buffer(t, 256), f.image(t)
		bufs := []*recording.CommandBuffer{f.copyDispatch(t, src, dst, img), f.triangle(t, f.image(t))}
		if err := q.Submit(context.Background(), Submission{Buffers: bufs}); err != nil {
			t.Fatal(err)
		}
		calls := f.ctx.Calls()
		// Pipeline IDs are process-wide.
		for i, c := range calls {
			if c.Op == "SetGraphicsPipeline" || c.Op == "SetComputePipeline" {
				calls[i].Args = ""
			}
		}
		return calls
	}
	a, b := run(), run()
	if !slices.Equal(a, b) {
		t.Errorf("replays differ:\n%v\n%v", a, b)
	}
}

func TestSemaphores(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, 0)
	cb := f.triangle(t, f.image(t))
	sem := fence.NewSemaphore("s")
	bufs := []*recording.CommandBuffer{cb}

	if err := q.Submit(context.Background(), Submission{Buffers: bufs, Signal: sem}); err != nil {
		t.Fatal(err)
	}
	if !sem.Signaled() {
		t.Fatal("semaphore not signaled")
	}
	if err := q.Submit(context.Background(), Submission{Buffers: bufs, Wait: []*fence.Semaphore{sem}}); err != nil {
		t.Fatal(err)
	}
	if sem.Signaled() {
		t.Fatal("wait did not consume the semaphore")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	fc := fence.New("f")
	err := q.Submit(ctx, Submission{Buffers: bufs, Wait: []*fence.Semaphore{sem}, Fence: fc})
	if !errors.Is(err, hal.ErrTimeout) {
		t.Fatalf("Submit = %v, want ErrTimeout", err)
	}
	if fc.Pending() || f.arena.Pending() != 0 || cb.Status() != recording.StatusExecutable {
		t.Errorf("timed out submission left fence=%t snapshots=%d buffer=%s", fc.Pending(), f.arena.Pending(), cb.Status())
	}

	// A timeout on a later wait gives back the signals already consumed.
	first := fence.NewSemaphore("first")
	if err := first.Signal(); err != nil {
		t.Fatal(err)
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	err = q.Submit(ctx2, Submission{Buffers: bufs, Wait: []*fence.Semaphore{first, sem}})
	if !errors.Is(err, hal.ErrTimeout) {
		t.Fatalf("Submit = %v, want ErrTimeout", err)
	}
	if !first.Signaled() {
		t.Error("timed out submission consumed an earlier semaphore")
	}
	if f.ctx.Count("Draw") != 2 {
		t.Errorf("Draw calls = %d, want 2", f.ctx.Count("Draw"))
	}
}

func TestDeviceLoss(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, 0)
	img := f.image(t)
	cb := f.triangle(t, img)
	fc := fence.New("f")
	f.ctx.LoseAfter(1)

	err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{cb}, Fence: fc})
	if !errors.Is(err, hal.ErrDeviceLost) {
		t.Fatalf("Submit = %v, want ErrDeviceLost", err)
	}
	if fc.Status() != fence.Lost {
		t.Errorf("fence = %s", fc.Status())
	}
	if err := fc.Wait(time.Second); !errors.Is(err, hal.ErrDeviceLost) {
		t.Errorf("fence wait = %v", err)
	}
	if cb.Status() != recording.StatusInvalid {
		t.Errorf("buffer = %s", cb.Status())
	}
	if q.InUse(img) || f.arena.Pending() != 0 {
		t.Error("lost submission still tracked")
	}
	if st := f.state(t, img); st != hal.StateUndefined {
		t.Errorf("lost submission committed %s", st)
	}

	next := f.triangle(t, img)
	if err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{next}}); !errors.Is(err, hal.ErrDeviceLost) {
		t.Errorf("Submit after loss = %v", err)
	}
	if err := q.WaitIdle(context.Background()); !errors.Is(err, hal.ErrDeviceLost) {
		t.Errorf("WaitIdle after loss = %v", err)
	}
}

func TestSharedHealth(t *testing.T) {
	f := newFixture(t)
	health := new(Health)
	a, err := New(Config{ID: 1, Context: f.ctx, Table: f.tbl, Arena: f.arena, Health: health})
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(Config{ID: 2, Context: trace.New(), Table: f.tbl, Arena: f.arena, Health: health})
	if err != nil {
		t.Fatal(err)
	}
	health.Fail(errors.New("hung"))
	cb := f.triangle(t, f.image(t))
	for _, q := range []*Queue{a, b} {
		if err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{cb}}); !errors.Is(err, hal.ErrDeviceLost) {
			t.Errorf("queue %d: Submit = %v", q.ID(), err)
		}
	}
}

func TestDeferred(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, 2)
	src, dst, img := f.buffer(t, 256), f.buffer(t, 256), f.image(t)
	tri := f.triangle(t, f.image(t))
	work := f.copyDispatch(t, src, dst, img)

	f1, f2 := fence.New("f1"), fence.New("f2")
	if err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{tri, work}, Fence: f1}); err != nil {
		t.Fatal(err)
	}
	if err := f1.Wait(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{tri}, Fence: f2}); err != nil {
		t.Fatal(err)
	}
	if err := f2.Wait(5 * time.Second); err != nil {
		t.Fatal(err)
	}

	var lists []string
	for _, c := range f.ctx.Calls() {
		if c.Op == "ExecuteCommandList" {
			lists = append(lists, c.Args)
		}
	}
	want := []string{`"tri"`, `"copy"`, `"tri"`}
	if !slices.Equal(lists, want) {
		t.Errorf("executed lists = %v, want %v", lists, want)
	}
	if got := f.ctx.Count("Draw"); got != 2 {
		t.Errorf("Draw calls = %d, want 2", got)
	}
	if got := f.ctx.Count("Dispatch"); got != 2 {
		t.Errorf("Dispatch calls = %d, want 2", got)
	}
	if err := q.WaitIdle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tri.Status() != recording.StatusExecutable || f.state(t, dst) != hal.StateUnorderedAccess {
		t.Errorf("buffer = %s, dst = %s", tri.Status(), f.state(t, dst))
	}
}

type presenter struct {
	images []resource.Handle
}

func (p *presenter) Present(image resource.Handle, _ resource.Native) error {
	p.images = append(p.images, image)
	return nil
}

func TestPresent(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, 0)
	img := f.image(t)
	if err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{f.triangle(t, img)}}); err != nil {
		t.Fatal(err)
	}
	p := new(presenter)
	if err := q.Present(context.Background(), p, img); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(p.images, []resource.Handle{img}) {
		t.Errorf("presented %v", p.images)
	}
	if st := f.state(t, img); st != hal.StatePresent {
		t.Errorf("state = %s", st)
	}
	if got := f.ctx.Count("SetRenderTargets"); got != 2 {
		t.Errorf("SetRenderTargets calls = %d, want bind and unbind", got)
	}
	if got := f.ctx.Count("Flush"); got != 1 {
		t.Errorf("Flush calls = %d", got)
	}

	if err := q.Present(context.Background(), p, f.buffer(t, 16)); !errors.Is(err, resource.ErrWrongKind) {
		t.Errorf("present buffer = %v", err)
	}
}

func TestClosedQueue(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, 1)
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	cb := f.triangle(t, f.image(t))
	if err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{cb}}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit = %v", err)
	}
	if _, err := New(Config{Table: f.tbl}); !errors.Is(err, ErrNoContext) {
		t.Errorf("New without context = %v", err)
	}
}

func TestDuplicateBuffer(t *testing.T) {
	f := newFixture(t)
	q := f.queue(t, 0)
	cb := f.triangle(t, f.image(t))
	err := q.Submit(context.Background(), Submission{Buffers: []*recording.CommandBuffer{cb, cb}})
	if !errors.Is(err, hal.ErrInvalidState) {
		t.Fatalf("Submit = %v, want ErrInvalidState", err)
	}
	if cb.Status() != recording.StatusExecutable {
		t.Errorf("buffer = %s", cb.Status())
	}
}
