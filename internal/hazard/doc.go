// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package hazard derives the synchronization a recorded command sequence
// needs and owns the tracked usage state of every resource.
//
// A scan walks the sequence once, keeping per resource the usage state,
// the stage of the last write and the stages that read since. A barrier is
// synthesized before a command when it needs the resource in another
// state, writes after an earlier write or read, or reads what an earlier
// command in a different stage wrote. Reads in the same state after reads
// need nothing.
//
// Explicit barriers are authoritative: they set the tracked state
// directly. One whose declared old state disagrees with the tracked state
// fails with hal.ErrHazardMismatch; an Undefined old state discards the
// contents and always matches.
//
// The Arena keeps the final states of submissions still pending on a
// queue, newest first, over the committed states in the resource ledger.
// A new scan starts from the newest state of each resource; completion
// commits a snapshot to the ledger.
package hazard
