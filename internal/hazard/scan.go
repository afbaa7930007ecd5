// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hazard

import (
	"fmt"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/recording"
	"github.com/gogpu/cmdemu/resource"
)

// Sequence is a recorded command sequence. *recording.CommandBuffer
// implements it.
type Sequence interface {
	Label() string
	Len() int
	Command(i int) recording.Command
	Uses(i int) []recording.Use
	Barriers(i int) []recording.Barrier
}

// Plan is the synchronization for one sequence.
type Plan struct {
	// Pre holds, per command, the barriers to realize before it: the
	// command's own barriers for a PipelineBarrier, synthesized ones
	// otherwise.
	Pre [][]recording.Barrier

	// Synthesized counts automatically inserted barriers.
	Synthesized int
}

// Barriers returns the total number of barriers in the plan.
func (p *Plan) Barriers() int {
	n := 0
	for _, b := range p.Pre {
		n += len(b)
	}
	return n
}

type entry struct {
	info   resource.Info
	state  hal.UsageState
	owner  resource.QueueID
	entry0 resource.QueueID
	writes hal.Stage
	reads  hal.Stage
}

// baseFunc returns the state and owner a resource enters a scan with.
type baseFunc func(h resource.Handle) (hal.UsageState, resource.QueueID, resource.Info, error)

// scanner tracks resources across the sequences of one submission.
type scanner struct {
	queue   resource.QueueID
	base    baseFunc
	entries map[resource.Handle]*entry
}

func newScanner(queue resource.QueueID, base baseFunc) *scanner {
	return &scanner{queue: queue, base: base, entries: make(map[resource.Handle]*entry)}
}

// lookup returns the entry of h in the overlay, falling back to the
// submission entries and then the base.
func (s *scanner) lookup(overlay map[resource.Handle]*entry, h resource.Handle) (*entry, error) {
	if e, ok := overlay[h]; ok {
		return e, nil
	}
	var e entry
	if prev, ok := s.entries[h]; ok {
		e = *prev
	} else {
		st, owner, info, err := s.base(h)
		if err != nil {
			return nil, err
		}
		e = entry{info: info, state: st, owner: owner, entry0: owner}
	}
	// Stage memory does not carry across sequences.
	e.writes, e.reads = 0, 0
	overlay[h] = &e
	return &e, nil
}

// scan plans seq. On success the sequence's final states become the
// starting point of the next sequence; on failure nothing changes.
func (s *scanner) scan(seq Sequence) (*Plan, error) {
	overlay := make(map[resource.Handle]*entry)
	plan := &Plan{Pre: make([][]recording.Barrier, seq.Len())}

	for i := range seq.Len() {
		locate := func(err error) error {
			return &hal.CommandError{Buffer: seq.Label(), Index: i, Command: seq.Command(i).Type().String(), Err: err}
		}
		if bs := seq.Barriers(i); len(bs) > 0 {
			for _, b := range bs {
				if err := s.explicit(overlay, b); err != nil {
					return nil, locate(err)
				}
			}
			plan.Pre[i] = bs
			continue
		}
		for _, u := range seq.Uses(i) {
			b, err := s.use(overlay, u)
			if err != nil {
				return nil, locate(err)
			}
			if b != nil {
				plan.Pre[i] = append(plan.Pre[i], *b)
				plan.Synthesized++
			}
		}
	}
	for h, e := range overlay {
		s.entries[h] = e
	}
	return plan, nil
}

func (s *scanner) explicit(overlay map[resource.Handle]*entry, b recording.Barrier) error {
	e, err := s.lookup(overlay, b.Resource)
	if err != nil {
		return err
	}
	if b.OldState != hal.StateUndefined && b.OldState != e.state {
		return fmt.Errorf("hazard: %v declared %s but is tracked as %s: %w",
			b.Resource, b.OldState, e.state, hal.ErrHazardMismatch)
	}
	if err := resource.CheckState(e.info, b.NewState); err != nil {
		return err
	}
	if b.QueueTransfer() {
		if e.owner != resource.NoQueue && e.owner != b.SrcQueue {
			return fmt.Errorf("hazard: %v transferred from queue %d but owned by queue %d: %w",
				b.Resource, b.SrcQueue, e.owner, hal.ErrHazardMismatch)
		}
		e.owner = b.DstQueue
	}
	e.state = b.NewState
	e.writes, e.reads = 0, 0
	return nil
}

// use applies one access and returns the barrier it needs, if any.
func (s *scanner) use(overlay map[resource.Handle]*entry, u recording.Use) (*recording.Barrier, error) {
	e, err := s.lookup(overlay, u.Resource)
	if err != nil {
		return nil, err
	}
	if e.owner != resource.NoQueue && e.owner != s.queue {
		return nil, fmt.Errorf("hazard: %v is owned by queue %d, used on queue %d without a transfer: %w",
			u.Resource, e.owner, s.queue, hal.ErrHazardMismatch)
	}
	if err := resource.CheckState(e.info, u.State); err != nil {
		return nil, err
	}

	var need bool
	switch {
	case e.state != u.State:
		need = true
	case u.Access.Writes():
		need = e.writes != 0 || e.reads != 0
	default:
		need = e.writes != 0 && e.writes != u.Stage
	}

	var b *recording.Barrier
	if need {
		src := e.writes | e.reads
		if src == hal.StageNone {
			src = hal.StageTopOfPipe
		}
		b = &recording.Barrier{
			Resource: u.Resource,
			OldState: e.state,
			NewState: u.State,
			SrcStage: src,
			DstStage: u.Stage,
		}
		e.state = u.State
		e.writes, e.reads = 0, 0
	}
	if u.Access.Writes() {
		e.writes = u.Stage
		e.reads = 0
	} else {
		e.reads |= u.Stage
	}
	return b, nil
}

// final returns the states at the end of all scanned sequences, and the
// owners that changed.
func (s *scanner) final() (map[resource.Handle]hal.UsageState, map[resource.Handle]resource.QueueID) {
	states := make(map[resource.Handle]hal.UsageState, len(s.entries))
	owners := make(map[resource.Handle]resource.QueueID)
	for h, e := range s.entries {
		states[h] = e.state
		if e.owner != e.entry0 {
			owners[h] = e.owner
		}
	}
	return states, owners
}
