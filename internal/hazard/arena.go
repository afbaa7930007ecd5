// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hazard

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	xmaps "golang.org/x/exp/maps"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/resource"
)

// ErrUnknownSubmission is returned when completing a submission the arena
// does not hold.
var ErrUnknownSubmission = errors.New("hazard: unknown submission")

// SubmissionID identifies planned work in the Arena.
type SubmissionID uint64

// snapshot is the final state of one pending submission.
type snapshot struct {
	id     SubmissionID
	queue  resource.QueueID
	states map[resource.Handle]hal.UsageState
	owners map[resource.Handle]resource.QueueID
	done   bool
}

// Arena tracks the usage state of every resource of one table across
// queues. It is safe for concurrent use; planning is serialized.
type Arena struct {
	tbl *resource.Table

	mu      sync.Mutex
	next    SubmissionID
	pending []snapshot
	owners  map[resource.Handle]resource.QueueID
}

// NewArena returns an arena over the states committed in tbl's ledger.
func NewArena(tbl *resource.Table) *Arena {
	return &Arena{tbl: tbl, owners: make(map[resource.Handle]resource.QueueID)}
}

// Plan scans seqs in order as one submission on queue. When every
// sequence plans cleanly, the final states are pushed as a pending
// snapshot and its ID is returned. Otherwise the per-sequence errors are
// joined, the plans of the failed sequences are nil and the arena is
// unchanged.
func (a *Arena) Plan(queue resource.QueueID, seqs ...Sequence) (SubmissionID, []*Plan, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ledger := a.tbl.Ledger()
	ledger.Lock()
	s := newScanner(queue, a.base)
	plans := make([]*Plan, len(seqs))
	var errs []error
	for i, seq := range seqs {
		p, err := s.scan(seq)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		plans[i] = p
	}
	ledger.Unlock()

	if err := errors.Join(errs...); err != nil {
		return 0, plans, err
	}
	states, owners := s.final()
	a.next++
	a.pending = append(a.pending, snapshot{id: a.next, queue: queue, states: states, owners: owners})
	logger().Debug("hazard: planned", "submission", a.next, "queue", queue,
		"buffers", len(seqs), "resources", len(states))
	return a.next, plans, nil
}

// base resolves the state a resource enters a scan with. The caller holds
// a.mu and the ledger lock.
func (a *Arena) base(h resource.Handle) (hal.UsageState, resource.QueueID, resource.Info, error) {
	info, err := a.tbl.Lookup(h)
	if err != nil {
		return 0, 0, info, err
	}
	owner, ok := a.owners[h]
	if !ok {
		owner = info.Owner
	}
	for i := len(a.pending) - 1; i >= 0; i-- {
		if o, ok := a.pending[i].owners[h]; ok {
			owner = o
			break
		}
	}
	for i := len(a.pending) - 1; i >= 0; i-- {
		if st, ok := a.pending[i].states[h]; ok {
			return st, owner, info, nil
		}
	}
	st, err := a.tbl.Ledger().State(h)
	return st, owner, info, err
}

// Complete marks the snapshot of id, and every older pending submission
// on the same queue, as executed. Snapshots reach the ledger in plan
// order: a completed snapshot stays pending while an older one, planned on
// another queue, has not completed.
func (a *Arena) Complete(id SubmissionID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.index(id)
	if n < 0 || a.pending[n].done {
		return fmt.Errorf("hazard: complete %d: %w", id, ErrUnknownSubmission)
	}
	queue := a.pending[n].queue
	for i := range a.pending[:n+1] {
		if a.pending[i].queue == queue {
			a.pending[i].done = true
		}
	}
	a.commit()
	return nil
}

// commit moves the leading run of completed snapshots into the ledger.
// The caller holds a.mu.
func (a *Arena) commit() {
	k := 0
	for k < len(a.pending) && a.pending[k].done {
		k++
	}
	if k == 0 {
		return
	}
	ledger := a.tbl.Ledger()
	ledger.Lock()
	for _, snap := range a.pending[:k] {
		ledger.Commit(snap.states)
		xmaps.Copy(a.owners, snap.owners)
	}
	ledger.Unlock()
	rest := copy(a.pending, a.pending[k:])
	clear(a.pending[rest:])
	a.pending = a.pending[:rest]
}

// Retire discards the snapshot of id without committing it, as when the
// device was lost before the work completed.
func (a *Arena) Retire(id SubmissionID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.index(id)
	if n < 0 {
		return
	}
	a.pending = slices.Delete(a.pending, n, n+1)
	a.commit()
}

// RetireAll discards every pending snapshot.
func (a *Arena) RetireAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.pending)
	a.pending = a.pending[:0]
}

// Pending returns the number of pending snapshots.
func (a *Arena) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// State returns the newest tracked state of h, pending or committed.
func (a *Arena) State(h resource.Handle) (hal.UsageState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ledger := a.tbl.Ledger()
	ledger.Lock()
	defer ledger.Unlock()
	st, _, _, err := a.base(h)
	return st, err
}

// Owner returns the queue currently owning h, or resource.NoQueue.
func (a *Arena) Owner(h resource.Handle) (resource.QueueID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ledger := a.tbl.Ledger()
	ledger.Lock()
	defer ledger.Unlock()
	_, owner, _, err := a.base(h)
	return owner, err
}

func (a *Arena) index(id SubmissionID) int {
	for i, s := range a.pending {
		if s.id == id {
			return i
		}
	}
	return -1
}
