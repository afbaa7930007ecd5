// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"strings"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/resource"
)

// Action is a native operation realizing part of a state transition.
type Action uint8

// Barrier actions.
const (
	// ActionNone needs no native call; the context serializes the work.
	ActionNone Action = iota
	// ActionFlush submits buffered work to the device.
	ActionFlush
	// ActionUAVBarrier orders unordered-access work on the resource.
	ActionUAVBarrier
	// ActionUnbindShaderResource clears every shader resource slot holding
	// the resource so it can be bound for writing.
	ActionUnbindShaderResource
	// ActionUnbindRenderTarget removes the resource from the bound render
	// targets.
	ActionUnbindRenderTarget
	// ActionUnbindUnorderedAccess clears every unordered-access slot
	// holding the resource so it can be bound for reading.
	ActionUnbindUnorderedAccess
)

var actionNames = [...]string{
	ActionNone:                  "None",
	ActionFlush:                 "Flush",
	ActionUAVBarrier:            "UAVBarrier",
	ActionUnbindShaderResource:  "UnbindShaderResource",
	ActionUnbindRenderTarget:    "UnbindRenderTarget",
	ActionUnbindUnorderedAccess: "UnbindUnorderedAccess",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "Unknown"
}

// AnyState matches every state in a BarrierTable rule.
const AnyState hal.UsageState = 0xFF

// AnyKind matches every resource kind in a BarrierTable rule.
const AnyKind = resource.KindInvalid

type barrierKey struct {
	kind     resource.Kind
	from, to hal.UsageState
}

// BarrierTable maps state transitions to native actions.
//
// Lookup prefers the most specific rule: an exact key, then AnyState for
// the new state, then for the old state, then both; each first with the
// resource kind and then with AnyKind. A transition matching no rule needs
// no native action.
type BarrierTable struct {
	rules map[barrierKey][]Action
}

// NewBarrierTable returns an empty table.
func NewBarrierTable() *BarrierTable {
	return &BarrierTable{rules: make(map[barrierKey][]Action)}
}

// Set installs the actions for a transition and returns t. Passing no
// actions installs an explicit "nothing to do" rule that shadows less
// specific rules.
func (t *BarrierTable) Set(kind resource.Kind, from, to hal.UsageState, actions ...Action) *BarrierTable {
	t.rules[barrierKey{kind, from, to}] = append([]Action(nil), actions...)
	return t
}

// Lookup returns the actions for a transition of a resource of kind from
// one state to another. The result must not be modified.
func (t *BarrierTable) Lookup(kind resource.Kind, from, to hal.UsageState) []Action {
	for _, k := range [...]resource.Kind{kind, AnyKind} {
		for _, key := range [...]barrierKey{
			{k, from, to},
			{k, from, AnyState},
			{k, AnyState, to},
			{k, AnyState, AnyState},
		} {
			if a, ok := t.rules[key]; ok {
				return a
			}
		}
	}
	return nil
}

// Len returns the number of rules.
func (t *BarrierTable) Len() int { return len(t.rules) }

// DefaultBarrierTable returns the transition mapping for an
// auto-serializing context:
//
//	UnorderedAccess -> any              UAVBarrier
//	UnorderedAccess -> read or target   UnbindUnorderedAccess
//	ShaderResource  -> writable state   UnbindShaderResource
//	attachment      -> any other state  UnbindRenderTarget
//	any             -> Present          Flush
//
// Read-to-read and transfer transitions need nothing.
func DefaultBarrierTable() *BarrierTable {
	t := NewBarrierTable()
	for _, kind := range [...]resource.Kind{resource.KindBuffer, resource.KindImage} {
		for old := hal.StateUndefined; old.Valid(); old++ {
			for next := hal.StateUndefined; next.Valid(); next++ {
				if a := defaultActions(kind, old, next); len(a) > 0 {
					t.Set(kind, old, next, a...)
				}
			}
		}
	}
	return t
}

func defaultActions(kind resource.Kind, old, next hal.UsageState) []Action {
	var out []Action
	if old == hal.StateUnorderedAccess {
		out = append(out, ActionUAVBarrier)
	}
	if old == next {
		return out
	}
	if old == hal.StateUnorderedAccess && (next.ReadOnly() || attachment(next)) {
		out = append(out, ActionUnbindUnorderedAccess)
	}
	if old == hal.StateShaderResource && !next.ReadOnly() {
		out = append(out, ActionUnbindShaderResource)
	}
	if kind == resource.KindImage && attachment(old) {
		out = append(out, ActionUnbindRenderTarget)
	}
	if next == hal.StatePresent {
		out = append(out, ActionFlush)
	}
	return out
}

func attachment(s hal.UsageState) bool {
	return s == hal.StateColorAttachment || s == hal.StateDepthAttachment
}

// FormatActions renders actions joined by "+", or "None".
func FormatActions(actions []Action) string {
	if len(actions) == 0 {
		return ActionNone.String()
	}
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = a.String()
	}
	return strings.Join(parts, "+")
}
