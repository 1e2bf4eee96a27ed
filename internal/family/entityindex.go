package family

import (
	"sync"

	"ecsrt/internal/handle"
)

// EntityIndex maps a live entity handle to its packed (family, row)
// location. Row index 0 is a valid row, not a sentinel; absence is
// expressed by the entity being missing from the map entirely.
type EntityIndex struct {
	mu   sync.RWMutex
	rows map[handle.Entity]uint64
}

// NewEntityIndex returns an empty EntityIndex.
func NewEntityIndex() *EntityIndex {
	return &EntityIndex{rows: make(map[handle.Entity]uint64)}
}

// Set records e's location, overwriting any previous entry.
func (ix *EntityIndex) Set(e handle.Entity, f handle.FamilyID, row uint32) {
	ix.mu.Lock()
	ix.rows[e] = handle.PackRow(f, row)
	ix.mu.Unlock()
}

// Get returns e's current (family, row), or ok=false if e is not live.
func (ix *EntityIndex) Get(e handle.Entity) (f handle.FamilyID, row uint32, ok bool) {
	ix.mu.RLock()
	v, found := ix.rows[e]
	ix.mu.RUnlock()
	if !found {
		return 0, 0, false
	}
	f, row = handle.UnpackRow(v)
	return f, row, true
}

// FamilyOf returns e's current family, dropping the row. Satisfies the
// locator signature Registry.BindEntityLocator expects.
func (ix *EntityIndex) FamilyOf(e handle.Entity) (handle.FamilyID, bool) {
	f, _, ok := ix.Get(e)
	return f, ok
}

// Delete removes e from the index (used after full entity deletion, not
// after a move — moves call Set with the new location instead).
func (ix *EntityIndex) Delete(e handle.Entity) {
	ix.mu.Lock()
	delete(ix.rows, e)
	ix.mu.Unlock()
}

// Live reports whether e currently has a recorded location.
func (ix *EntityIndex) Live(e handle.Entity) bool {
	_, _, ok := ix.Get(e)
	return ok
}
