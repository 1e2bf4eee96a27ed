package table

import (
	"sync"

	"ecsrt/internal/family"
	"ecsrt/internal/handle"
)

// Store owns every table, keyed by family, and the entity index used by the
// move protocol.
type Store struct {
	mu     sync.RWMutex
	reg    *family.Registry
	index  *family.EntityIndex
	tables map[handle.FamilyID]*Table
}

// NewStore returns an empty Store bound to reg and index.
func NewStore(reg *family.Registry, index *family.EntityIndex) *Store {
	return &Store{
		reg:    reg,
		index:  index,
		tables: make(map[handle.FamilyID]*Table),
	}
}

// GetOrCreate lazily materializes the table for family f.
func (s *Store) GetOrCreate(f handle.FamilyID) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[f]; ok {
		return t
	}
	t := newTable(f, s.reg.Components(f), s.reg)
	s.tables[f] = t
	return t
}

// Table returns the table for family f, if it has been created.
func (s *Store) Table(f handle.FamilyID) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[f]
	return t, ok
}

// Tables returns every table currently materialized. Order is unspecified;
// callers that need determinism (tests, introspection) should sort by
// Family.
func (s *Store) Tables() []*Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	return out
}

// MoveResult reports the bookkeeping side effects of a Commit, so a caller
// that owns notification dispatch can fire OnAdd/OnRemove/OnSet without the
// table store needing to know about systems at all. (The world façade does
// not use Commit; it replays the move itself to interleave notifications.)
type MoveResult struct {
	OldFamily   handle.FamilyID
	NewFamily   handle.FamilyID
	NewRow      uint32
	HadOld      bool
	DisplacedBy handle.Entity // entity swapped into the vacated old row, if any
}

// Commit moves entity e into family newFamily: allocate a row in the
// destination table, copy every component shared between old and new
// families, delete the old row (updating the entity index for whichever
// entity the swap-remove displaced), then record e's new location.
func (s *Store) Commit(e handle.Entity, newFamily handle.FamilyID) MoveResult {
	oldFamily, oldRow, hadOld := s.index.Get(e)

	newTbl := s.GetOrCreate(newFamily)
	newRow := newTbl.Insert(e)

	var displaced handle.Entity
	if hadOld {
		oldTbl := s.GetOrCreate(oldFamily)
		for _, c := range newTbl.Components() {
			if v, ok := oldTbl.GetComponent(oldRow, c); ok {
				newTbl.SetComponent(newRow, c, v)
			}
		}
		moved, didMove := oldTbl.Delete(oldRow)
		if didMove {
			s.index.Set(moved, oldFamily, oldRow)
			displaced = moved
		}
	}

	s.index.Set(e, newFamily, newRow)
	return MoveResult{
		OldFamily:   oldFamily,
		NewFamily:   newFamily,
		NewRow:      newRow,
		HadOld:      hadOld,
		DisplacedBy: displaced,
	}
}

// Remove deletes e entirely: it is removed from its table and the entity
// index, with no destination family.
func (s *Store) Remove(e handle.Entity) {
	f, row, ok := s.index.Get(e)
	if !ok {
		return
	}
	t := s.GetOrCreate(f)
	moved, didMove := t.Delete(row)
	if didMove {
		s.index.Set(moved, f, row)
	}
	s.index.Delete(e)
}
