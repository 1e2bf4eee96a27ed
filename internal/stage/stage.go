// Package stage implements the per-thread deferred-mutation layer: writes
// issued while a system runs are buffered here and replayed against the
// main world at the next phase barrier, in deterministic order.
package stage

import (
	"sort"
	"sync"

	"ecsrt/internal/handle"
)

// OpKind names one kind of deferred mutation.
type OpKind int

const (
	OpAddComponent OpKind = iota
	OpRemoveComponent
	OpSetComponent
	OpNewEntity
	OpDeleteEntity
)

// Op is one recorded deferred mutation. Seq gives a stable replay order
// among ops touching the same entity within one stage.
type Op struct {
	Kind      OpKind
	Entity    handle.Entity
	Component handle.Entity
	Value     interface{}
	Family    handle.FamilyID // NewEntity's requested family
	Seq       uint64
}

// Stage is a per-thread scratch buffer of pending ops. ThreadID orders
// stages relative to each other during a merge; worker index is a
// reasonable choice for it.
type Stage struct {
	ThreadID int

	mu  sync.Mutex
	ops []Op
	seq uint64
}

// New returns an empty stage identified by threadID.
func New(threadID int) *Stage {
	return &Stage{ThreadID: threadID}
}

// AddComponent stages a component add.
func (s *Stage) AddComponent(e, c handle.Entity) {
	s.append(Op{Kind: OpAddComponent, Entity: e, Component: c})
}

// RemoveComponent stages a component remove.
func (s *Stage) RemoveComponent(e, c handle.Entity) {
	s.append(Op{Kind: OpRemoveComponent, Entity: e, Component: c})
}

// SetComponent stages a component value write.
func (s *Stage) SetComponent(e, c handle.Entity, v interface{}) {
	s.append(Op{Kind: OpSetComponent, Entity: e, Component: c, Value: v})
}

// NewEntity stages the allocation of entity e into family f. The handle
// itself is allocated eagerly by the world (handles must be unique and
// stable even before the stage merges), only its table placement is
// deferred.
func (s *Stage) NewEntity(e handle.Entity, f handle.FamilyID) {
	s.append(Op{Kind: OpNewEntity, Entity: e, Family: f})
}

// DeleteEntity stages an entity deletion.
func (s *Stage) DeleteEntity(e handle.Entity) {
	s.append(Op{Kind: OpDeleteEntity, Entity: e})
}

func (s *Stage) append(op Op) {
	s.mu.Lock()
	op.Seq = s.seq
	s.seq++
	s.ops = append(s.ops, op)
	s.mu.Unlock()
}

// Drain removes and returns every pending op, resetting the stage for reuse.
func (s *Stage) Drain() []Op {
	s.mu.Lock()
	ops := s.ops
	s.ops = nil
	s.mu.Unlock()
	return ops
}

// Pending reports the number of ops waiting to be merged, useful for
// skipping an empty merge cheaply.
func (s *Stage) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// MergeAll replays every stage's pending ops against apply in a
// deterministic order: stages ordered by ThreadID, and within each stage,
// ops ordered entity-ascending then by sequence within that entity.
func MergeAll(stages []*Stage, apply func(Op)) {
	ordered := append([]*Stage(nil), stages...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ThreadID < ordered[j].ThreadID })

	for _, st := range ordered {
		ops := st.Drain()
		if len(ops) == 0 {
			continue
		}
		sort.SliceStable(ops, func(i, j int) bool {
			if ops[i].Entity != ops[j].Entity {
				return ops[i].Entity < ops[j].Entity
			}
			return ops[i].Seq < ops[j].Seq
		})
		for _, op := range ops {
			apply(op)
		}
	}
}
