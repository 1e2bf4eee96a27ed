// Package table owns the dense columnar row storage for each family and the
// entity-move protocol that transfers a row between tables.
package table

import (
	"ecsrt/internal/family"
	"ecsrt/internal/handle"
)

// Column is one component's storage within a Table: a Go slice standing in
// for the packed C byte buffer (see DESIGN.md's alignment/layout decision),
// plus the byte offset that buffer would have used, kept for descriptor
// compatibility and diagnostics.
type Column struct {
	Component handle.Entity
	Offset    uintptr
	data      []interface{}
}

func (c *Column) get(row uint32) interface{} { return c.data[row] }
func (c *Column) set(row uint32, v interface{}) { c.data[row] = v }

// Table is the dense row store bound to a single family.
type Table struct {
	Family      handle.FamilyID
	RowSize     uintptr
	columns     []*Column
	byComponent map[handle.Entity]*Column
	entities    []handle.Entity // row -> entity, for swap-remove bookkeeping
}

func newTable(f handle.FamilyID, comps []handle.Entity, reg *family.Registry) *Table {
	t := &Table{
		Family:      f,
		byComponent: make(map[handle.Entity]*Column, len(comps)),
	}
	var offset uintptr
	for _, c := range comps {
		rec, _ := reg.Component(c)
		if rec.Align > 0 {
			offset = alignUp(offset, rec.Align)
		}
		col := &Column{Component: c, Offset: offset}
		t.columns = append(t.columns, col)
		t.byComponent[c] = col
		offset += rec.Size
	}
	t.RowSize = offset
	return t
}

func alignUp(offset, align uintptr) uintptr {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// RowCount returns the number of live rows.
func (t *Table) RowCount() uint32 { return uint32(len(t.entities)) }

// Components returns the table's component handles in layout order.
func (t *Table) Components() []handle.Entity {
	out := make([]handle.Entity, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.Component
	}
	return out
}

// Entity returns the entity occupying row.
func (t *Table) Entity(row uint32) handle.Entity { return t.entities[row] }

// HasComponents reports whether every handle in comps has a column here.
func (t *Table) HasComponents(comps []handle.Entity) bool {
	for _, c := range comps {
		if _, ok := t.byComponent[c]; !ok {
			return false
		}
	}
	return true
}

// ColumnOffset returns the byte offset of component c's column, or -1 if c
// is absent from this table — the signal the matcher uses to fall back to
// indirect reference resolution.
func (t *Table) ColumnOffset(c handle.Entity) int64 {
	col, ok := t.byComponent[c]
	if !ok {
		return -1
	}
	return int64(col.Offset)
}

// GetComponent reads row's value for component c.
func (t *Table) GetComponent(row uint32, c handle.Entity) (interface{}, bool) {
	col, ok := t.byComponent[c]
	if !ok {
		return nil, false
	}
	return col.get(row), true
}

// SetComponent writes row's value for component c. Reports whether c has a
// column in this table.
func (t *Table) SetComponent(row uint32, c handle.Entity, v interface{}) bool {
	col, ok := t.byComponent[c]
	if !ok {
		return false
	}
	col.set(row, v)
	return true
}

// Insert appends an uninitialized row for e and returns its index.
func (t *Table) Insert(e handle.Entity) uint32 {
	row := uint32(len(t.entities))
	t.entities = append(t.entities, e)
	for _, col := range t.columns {
		col.data = append(col.data, nil)
	}
	return row
}

// Delete swap-removes row, moving the last row into its place. It reports
// the entity that was moved (handle.None, false if row was already last).
func (t *Table) Delete(row uint32) (moved handle.Entity, didMove bool) {
	last := uint32(len(t.entities) - 1)
	if row != last {
		t.entities[row] = t.entities[last]
		for _, col := range t.columns {
			col.data[row] = col.data[last]
		}
		moved, didMove = t.entities[row], true
	}
	t.entities = t.entities[:last]
	for _, col := range t.columns {
		col.data = col.data[:last]
	}
	return moved, didMove
}
