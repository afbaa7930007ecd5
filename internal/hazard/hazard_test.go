// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hazard

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/recording"
	"github.com/gogpu/cmdemu/resource"
)

// step is one hand-built command: either uses or explicit barriers.
type step struct {
	uses     []recording.Use
	barriers []recording.Barrier
}

type seq struct {
	label string
	steps []step
}

func (s *seq) Label() string { return s.label }
func (s *seq) Len() int      { return len(s.steps) }
func (s *seq) Command(i int) recording.Command {
	if len(s.steps[i].barriers) > 0 {
		return recording.PipelineBarrier{}
	}
	return recording.Dispatch{}
}
func (s *seq) Uses(i int) []recording.Use          { return s.steps[i].uses }
func (s *seq) Barriers(i int) []recording.Barrier { return s.steps[i].barriers }

func newTable(t *testing.T) *resource.Table {
	t.Helper()
	tbl, err := resource.NewTable(resource.NewHostAllocator(1))
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func newBuffer(t *testing.T, tbl *resource.Table, owner resource.QueueID) resource.Handle {
	t.Helper()
	h, err := tbl.CreateBuffer(&resource.BufferDescriptor{Size: 64, Owner: owner})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func use(h resource.Handle, st hal.UsageState, a hal.Access, stage hal.Stage) step {
	return step{uses: []recording.Use{{Resource: h, State: st, Access: a, Stage: stage}}}
}

func barrier(h resource.Handle, from, to hal.UsageState) step {
	return step{barriers: []recording.Barrier{{Resource: h, OldState: from, NewState: to,
		SrcStage: hal.StageAllCommands, DstStage: hal.StageAllCommands}}}
}

func TestBarrierInference(t *testing.T) {
	const (
		ua = hal.StateUnorderedAccess
		sr = hal.StateShaderResource
		cs = hal.StageComputeShader
		fs = hal.StageFragmentShader
	)
	tests := []struct {
		name  string
		steps func(h resource.Handle) []step
		want  []int // barrier count before each command
	}{
		{"write then read in another stage", func(h resource.Handle) []step {
			return []step{use(h, ua, hal.AccessWrite, cs), use(h, ua, hal.AccessRead, fs)}
		}, []int{1, 1}},
		{"write then read in the same stage", func(h resource.Handle) []step {
			return []step{use(h, ua, hal.AccessWrite, cs), use(h, ua, hal.AccessRead, cs)}
		}, []int{1, 0}},
		{"read then read", func(h resource.Handle) []step {
			return []step{use(h, sr, hal.AccessRead, fs), use(h, sr, hal.AccessRead, fs)}
		}, []int{1, 0}},
		{"read then read in another stage", func(h resource.Handle) []step {
			return []step{use(h, sr, hal.AccessRead, fs), use(h, sr, hal.AccessRead, cs)}
		}, []int{1, 0}},
		{"write after write", func(h resource.Handle) []step {
			return []step{use(h, ua, hal.AccessWrite, cs), use(h, ua, hal.AccessWrite, cs)}
		}, []int{1, 1}},
		{"write after read", func(h resource.Handle) []step {
			return []step{use(h, ua, hal.AccessRead, cs), use(h, ua, hal.AccessWrite, cs)}
		}, []int{1, 1}},
		{"state change", func(h resource.Handle) []step {
			return []step{use(h, ua, hal.AccessWrite, cs), use(h, sr, hal.AccessRead, cs)}
		}, []int{1, 1}},
		{"explicit barrier clears stage memory", func(h resource.Handle) []step {
			return []step{use(h, ua, hal.AccessWrite, cs), barrier(h, ua, ua), use(h, ua, hal.AccessRead, fs)}
		}, []int{1, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := newTable(t)
			h := newBuffer(t, tbl, resource.NoQueue)
			arena := NewArena(tbl)
			_, plans, err := arena.Plan(1, &seq{label: tt.name, steps: tt.steps(h)})
			if err != nil {
				t.Fatal(err)
			}
			for i, want := range tt.want {
				if got := len(plans[0].Pre[i]); got != want {
					t.Errorf("command %d: %d barriers, want %d: %+v", i, got, want, plans[0].Pre[i])
				}
			}
		})
	}
}

func TestSynthesizedBarrier(t *testing.T) {
	tbl := newTable(t)
	h := newBuffer(t, tbl, resource.NoQueue)
	arena := NewArena(tbl)
	_, plans, err := arena.Plan(1, &seq{steps: []step{
		use(h, hal.StateTransferDst, hal.AccessWrite, hal.StageTransfer),
		use(h, hal.StateShaderResource, hal.AccessRead, hal.StageComputeShader),
	}})
	if err != nil {
		t.Fatal(err)
	}
	b := plans[0].Pre[1][0]
	want := recording.Barrier{
		Resource: h,
		OldState: hal.StateTransferDst,
		NewState: hal.StateShaderResource,
		SrcStage: hal.StageTransfer,
		DstStage: hal.StageComputeShader,
	}
	if b != want {
		t.Errorf("barrier = %+v\nwant %+v", b, want)
	}
	if plans[0].Synthesized != 2 || plans[0].Barriers() != 2 {
		t.Errorf("synthesized = %d", plans[0].Synthesized)
	}
}

func TestExplicitMismatch(t *testing.T) {
	tbl := newTable(t)
	h := newBuffer(t, tbl, resource.NoQueue)
	arena := NewArena(tbl)
	_, _, err := arena.Plan(1, &seq{label: "bad", steps: []step{
		use(h, hal.StateTransferDst, hal.AccessWrite, hal.StageTransfer),
		barrier(h, hal.StateShaderResource, hal.StateUnorderedAccess),
	}})
	if !errors.Is(err, hal.ErrHazardMismatch) {
		t.Fatalf("err = %v, want ErrHazardMismatch", err)
	}
	var ce *hal.CommandError
	if !errors.As(err, &ce) || ce.Index != 1 || ce.Buffer != "bad" {
		t.Errorf("error not located: %v", err)
	}
	if arena.Pending() != 0 {
		t.Error("failed plan was pushed")
	}
	if st, _ := arena.State(h); st != hal.StateUndefined {
		t.Errorf("state after failed plan = %s", st)
	}
}

func TestRoundTrip(t *testing.T) {
	tbl := newTable(t)
	img, err := tbl.CreateImage(&resource.ImageDescriptor{
		Size:   gputypes.Extent3D{Width: 4, Height: 4},
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		t.Fatal(err)
	}
	arena := NewArena(tbl)
	id, _, err := arena.Plan(1, &seq{steps: []step{
		barrier(img, hal.StateUndefined, hal.StateColorAttachment),
		use(img, hal.StateColorAttachment, hal.AccessWrite, hal.StageColorAttachmentOutput),
		barrier(img, hal.StateColorAttachment, hal.StateShaderResource),
		use(img, hal.StateShaderResource, hal.AccessRead, hal.StageFragmentShader),
		barrier(img, hal.StateShaderResource, hal.StateGeneral),
	}})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if st, _ := arena.State(img); st != hal.StateGeneral {
		t.Errorf("pending state = %s", st)
	}
	if st, _ := tbl.State(img); st != hal.StateUndefined {
		t.Errorf("ledger changed before completion: %s", st)
	}
	if err := arena.Complete(id); err != nil {
		t.Fatal(err)
	}
	if st, _ := tbl.State(img); st != hal.StateGeneral {
		t.Errorf("committed state = %s", st)
	}
}

func TestUsageFlags(t *testing.T) {
	tbl := newTable(t)
	h, err := tbl.CreateBuffer(&resource.BufferDescriptor{Size: 16, Usage: gputypes.BufferUsageCopyDst})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = NewArena(tbl).Plan(1, &seq{steps: []step{
		use(h, hal.StateUnorderedAccess, hal.AccessWrite, hal.StageComputeShader),
	}})
	if !errors.Is(err, hal.ErrInvalidCommand) {
		t.Errorf("err = %v, want ErrInvalidCommand", err)
	}
}

func TestStateCarriesAcrossSubmissions(t *testing.T) {
	tbl := newTable(t)
	h := newBuffer(t, tbl, resource.NoQueue)
	arena := NewArena(tbl)

	first, _, err := arena.Plan(1, &seq{steps: []step{use(h, hal.StateTransferDst, hal.AccessWrite, hal.StageTransfer)}})
	if err != nil {
		t.Fatal(err)
	}
	// Pending state is inherited: the explicit barrier must declare
	// TransferDst even though the ledger still says Undefined.
	second, _, err := arena.Plan(1, &seq{steps: []step{barrier(h, hal.StateTransferDst, hal.StateShaderResource)}})
	if err != nil {
		t.Fatalf("second plan: %v", err)
	}
	if arena.Pending() != 2 {
		t.Fatalf("pending = %d", arena.Pending())
	}
	if err := arena.Complete(second); err != nil {
		t.Fatal(err)
	}
	if arena.Pending() != 0 {
		t.Errorf("older submission not committed: %d pending", arena.Pending())
	}
	if st, _ := tbl.State(h); st != hal.StateShaderResource {
		t.Errorf("committed = %s", st)
	}
	if err := arena.Complete(first); !errors.Is(err, ErrUnknownSubmission) {
		t.Errorf("completing twice = %v", err)
	}
}

func TestRetire(t *testing.T) {
	tbl := newTable(t)
	h := newBuffer(t, tbl, resource.NoQueue)
	arena := NewArena(tbl)
	id, _, err := arena.Plan(1, &seq{steps: []step{use(h, hal.StateTransferDst, hal.AccessWrite, hal.StageTransfer)}})
	if err != nil {
		t.Fatal(err)
	}
	arena.Retire(id)
	if st, _ := arena.State(h); st != hal.StateUndefined {
		t.Errorf("retired state leaked: %s", st)
	}
}

func TestMultipleSequencesJoinErrors(t *testing.T) {
	tbl := newTable(t)
	a, b := newBuffer(t, tbl, resource.NoQueue), newBuffer(t, tbl, resource.NoQueue)
	arena := NewArena(tbl)
	_, _, err := arena.Plan(1,
		&seq{label: "one", steps: []step{barrier(a, hal.StateGeneral, hal.StateTransferSrc)}},
		&seq{label: "two", steps: []step{use(b, hal.StateTransferDst, hal.AccessWrite, hal.StageTransfer)}},
		&seq{label: "three", steps: []step{barrier(b, hal.StateGeneral, hal.StateTransferSrc)}},
	)
	var ces []*hal.CommandError
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var ce *hal.CommandError
		if errors.As(e, &ce) {
			ces = append(ces, ce)
		}
	}
	if len(ces) != 2 || ces[0].Buffer != "one" || ces[1].Buffer != "three" {
		t.Errorf("joined errors = %v", err)
	}
}

func TestCrossQueueOwnership(t *testing.T) {
	tbl := newTable(t)
	h := newBuffer(t, tbl, 1)
	arena := NewArena(tbl)

	_, _, err := arena.Plan(2, &seq{steps: []step{use(h, hal.StateTransferSrc, hal.AccessRead, hal.StageTransfer)}})
	if !errors.Is(err, hal.ErrHazardMismatch) {
		t.Fatalf("foreign use = %v, want ErrHazardMismatch", err)
	}

	transfer := step{barriers: []recording.Barrier{{
		Resource: h, OldState: hal.StateUndefined, NewState: hal.StateTransferSrc,
		SrcQueue: 1, DstQueue: 2,
	}}}
	id, _, err := arena.Plan(1, &seq{steps: []step{transfer}})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := arena.Plan(2, &seq{steps: []step{use(h, hal.StateTransferSrc, hal.AccessRead, hal.StageTransfer)}}); err != nil {
		t.Errorf("use after transfer: %v", err)
	}
	if err := arena.Complete(id); err != nil {
		t.Fatal(err)
	}
	if q, _ := arena.Owner(h); q != 2 {
		t.Errorf("owner = %d", q)
	}
}

func TestDanglingAtScan(t *testing.T) {
	tbl := newTable(t)
	h := newBuffer(t, tbl, resource.NoQueue)
	if err := tbl.Destroy(h); err != nil {
		t.Fatal(err)
	}
	_, _, err := NewArena(tbl).Plan(1, &seq{steps: []step{use(h, hal.StateTransferDst, hal.AccessWrite, hal.StageTransfer)}})
	if !errors.Is(err, hal.ErrDanglingResource) {
		t.Errorf("err = %v", err)
	}
}

func BenchmarkPlan(b *testing.B) {
	tbl, _ := resource.NewTable(resource.NewHostAllocator(64))
	var steps []step
	for range 64 {
		h, _ := tbl.CreateBuffer(&resource.BufferDescriptor{Size: 64})
		steps = append(steps,
			use(h, hal.StateTransferDst, hal.AccessWrite, hal.StageTransfer),
			use(h, hal.StateShaderResource, hal.AccessRead, hal.StageComputeShader))
	}
	s := &seq{steps: steps}
	arena := NewArena(tbl)
	for b.Loop() {
		id, _, err := arena.Plan(1, s)
		if err != nil {
			b.Fatal(err)
		}
		arena.Retire(id)
	}
}
