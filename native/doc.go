// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native defines the replay target: the implicit-state native
// context that recorded command buffers are played back against.
//
// A native context holds one mutable binding state. Pipelines, vertex and
// index buffers, render targets and per-stage slot ranges are set with
// individual calls, and work calls consume whatever is bound at the time.
// There are no command buffers and no user-managed barriers; the context
// serializes its own work. Deferred contexts record calls into a command
// list that is later executed on the immediate context.
//
// Backends register a Factory by name, following the database/sql driver
// pattern:
//
//	func init() {
//		native.Register("trace", func() native.Immediate { return trace.New() })
//	}
//
// Resource-state transitions have no native primitive. BarrierTable maps
// each (kind, old state, new state) transition to the native actions that
// realize it.
package native
