package matcher

import (
	"ecsrt/internal/handle"
	"ecsrt/internal/stage"
	"ecsrt/internal/table"
)

// Invocation is the row-batch record an action sees on every call: instead
// of raw first/last row pointers and a stride, actions index into the
// current table by row and column — idiomatic here, since ecsrt never
// hands out raw pointers into component storage.
type Invocation struct {
	World      handle.Entity // world handle surfaced for logging/introspection
	SystemID   handle.Entity
	Table      *table.Table
	Row        uint32
	Offsets    []int64
	Columns    []handle.Entity
	RefsEntity []handle.Entity // terminated by handle.None sentinel
	RefsData   []interface{}
	DeltaTime  float64
	Param      interface{}

	// Stage is this invocation's deferred-write buffer. Mutating calls made
	// from inside an action must go through it (AddComponent/RemoveComponent/
	// SetComponent below), never the world façade directly — see the
	// staging design notes on why structural writes inside a system are
	// always staged.
	Stage *stage.Stage

	// InterruptedBy lets the action stop the current run_system call after
	// this row; the runner checks it after every invocation.
	InterruptedBy handle.Entity
}

// AddComponent stages a component add against the entity currently being
// iterated (or any other live entity); it takes effect at the next phase
// barrier.
func (inv *Invocation) AddComponent(e, c handle.Entity) { inv.Stage.AddComponent(e, c) }

// RemoveComponent stages a component remove.
func (inv *Invocation) RemoveComponent(e, c handle.Entity) { inv.Stage.RemoveComponent(e, c) }

// SetComponentDeferred stages a component value write that should only
// become visible at the next phase barrier (distinct from Set, which writes
// the current table in place and is always safe since it never changes a
// row's family).
func (inv *Invocation) SetComponentDeferred(e, c handle.Entity, v interface{}) {
	inv.Stage.SetComponent(e, c, v)
}

// Get reads column i's value for the current row, resolving through a
// table column for direct offsets or the refs array for indirect ones.
func (inv *Invocation) Get(i int) interface{} {
	off := inv.Offsets[i]
	if off >= 0 {
		v, _ := inv.Table.GetComponent(inv.Row, inv.Columns[i])
		return v
	}
	idx := int(-off) - 1
	if idx < len(inv.RefsData) {
		return inv.RefsData[idx]
	}
	return nil
}

// Set writes column i's value for the current row. Indirect (negative
// offset) columns are read-only from the iterating row's perspective — the
// data lives on another entity (prefab/shared/system source) — so Set is a
// no-op for them.
func (inv *Invocation) Set(i int, v interface{}) {
	if inv.Offsets[i] >= 0 {
		inv.Table.SetComponent(inv.Row, inv.Columns[i], v)
	}
}

// ColumnCount returns the number of columns in this invocation.
func (inv *Invocation) ColumnCount() int { return len(inv.Offsets) }
