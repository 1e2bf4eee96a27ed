// Package matcher decides whether a table satisfies a system's signature
// and, for each match, precomputes the per-column offsets and indirect
// reference slots the runner needs to iterate the table at speed.
package matcher

import (
	"ecsrt/internal/family"
	"ecsrt/internal/handle"
	"ecsrt/internal/signature"
	"ecsrt/internal/table"
)

// Kind is a system's phase or non-phase trigger.
type Kind int

const (
	PreFrame Kind = iota
	OnLoad
	PostLoad
	OnFrame
	OnStore
	PostStore
	PostFrame
	OnDemand
	OnAdd
	OnRemove
	OnSet
)

func (k Kind) String() string {
	switch k {
	case PreFrame:
		return "PreFrame"
	case OnLoad:
		return "OnLoad"
	case PostLoad:
		return "PostLoad"
	case OnFrame:
		return "OnFrame"
	case OnStore:
		return "OnStore"
	case PostStore:
		return "PostStore"
	case PostFrame:
		return "PostFrame"
	case OnDemand:
		return "OnDemand"
	case OnAdd:
		return "OnAdd"
	case OnRemove:
		return "OnRemove"
	case OnSet:
		return "OnSet"
	default:
		return "Unknown"
	}
}

// RefSource names where an indirect column's value comes from.
type RefSource int

const (
	RefSystemSelf RefSource = iota
	RefComponentOwner
	RefPrefabChain
)

// Ref is one entry in a descriptor's side array: the entity a column's data
// actually lives on, when the offset slot for that column is negative.
type Ref struct {
	Source RefSource
	Entity handle.Entity
}

// Descriptor is the precomputed (system, table) match record.
type Descriptor struct {
	TableFamily  handle.FamilyID
	Offsets      []int64         // per column: non-negative byte offset, or -(1+refIndex)
	Components   []handle.Entity // per column: resolved component handle
	Refs         []Ref
	RefComponent []handle.Entity // parallel to Refs: which component that ref resolves
}

// System is a declared system's static shape plus its mutable runtime
// state (enabled flag, periodic accumulator, active/inactive descriptors,
// accumulated time).
type System struct {
	Name    string
	Self    handle.Entity // this system's own entity handle, used by FromSystem columns
	Kind    Kind
	Action  func(*Invocation)
	Columns []signature.Column

	andFromEntity handle.FamilyID
	andFromSystem handle.FamilyID

	Enabled    bool
	Period     float64
	TimePassed float64
	TimeSpent  float64 // seconds; accumulated only when the world measures system time

	ActiveTables   []*Descriptor
	InactiveTables []*Descriptor
}

// BuildSystem derives and_from_entity/and_from_system once at registration.
func BuildSystem(name string, kind Kind, columns []signature.Column, action func(*Invocation), reg *family.Registry) *System {
	var entityAnd, systemAnd []handle.Entity
	for _, c := range columns {
		if c.Op != signature.And {
			continue
		}
		switch c.Source {
		case signature.FromEntity:
			entityAnd = append(entityAnd, c.Component)
		case signature.FromSystem:
			systemAnd = append(systemAnd, c.Component)
		}
	}
	return &System{
		Name:          name,
		Kind:          kind,
		Action:        action,
		Columns:       columns,
		andFromEntity: reg.Register(handle.None, entityAnd),
		andFromSystem: reg.Register(handle.None, systemAnd),
		Enabled:       true,
	}
}

// AndFromSystem returns the family of the system's (FromSystem, And)
// columns. The world commits these components onto the system's own entity
// at declaration, so FromSystem refs resolve to real storage.
func (s *System) AndFromSystem() handle.FamilyID { return s.andFromSystem }

// Locator resolves an entity to its current family, used to look up a
// component-of-a-component owner's own membership and a prefab's family.
type Locator interface {
	FamilyOf(e handle.Entity) (handle.FamilyID, bool)
}

// MatchTable implements match_table: whether tableFamily satisfies sys's
// signature.
func MatchTable(reg *family.Registry, loc Locator, sys *System, tableFamily handle.FamilyID) bool {
	if reg.IsPrefabFamily(tableFamily) {
		return false
	}
	if entityCols := reg.Components(sys.andFromEntity); len(entityCols) > 0 {
		if reg.Contains(tableFamily, sys.andFromEntity, true, true) == handle.None {
			return false
		}
	}

	tableComps := reg.Components(tableFamily)

	for _, col := range sys.Columns {
		switch col.Op {
		case signature.And:
			if col.Source == signature.FromComponent {
				if anyCarries(reg, loc, tableComps, col.Component) == handle.None {
					return false
				}
			}
		case signature.Or:
			switch col.Source {
			case signature.FromEntity:
				if reg.Contains(tableFamily, col.Family, false, true) == handle.None {
					return false
				}
			case signature.FromComponent:
				if !anyCarriesAnyOf(reg, loc, tableComps, col.Family) {
					return false
				}
			}
		case signature.Not:
			switch col.Source {
			case signature.FromEntity:
				if reg.Contains(tableFamily, reg.Singleton(col.Component), true, true) != handle.None {
					return false
				}
			case signature.FromComponent:
				if anyCarries(reg, loc, tableComps, col.Component) != handle.None {
					return false
				}
			}
		case signature.Optional:
			// never rejects
		}
	}
	return true
}

// AddTable installs a descriptor for tableFamily against sys, resolving
// every column to a direct offset or an indirect reference as described in
// the install algorithm.
func AddTable(reg *family.Registry, loc Locator, store *table.Store, sys *System, self handle.Entity, tableFamily handle.FamilyID) *Descriptor {
	t := store.GetOrCreate(tableFamily)
	tableComps := t.Components()

	desc := &Descriptor{
		TableFamily: tableFamily,
		Offsets:     make([]int64, len(sys.Columns)),
		Components:  make([]handle.Entity, len(sys.Columns)),
	}

	addRef := func(r Ref, comp handle.Entity) int64 {
		desc.Refs = append(desc.Refs, r)
		desc.RefComponent = append(desc.RefComponent, comp)
		return -(int64(len(desc.Refs)))
	}

	for i, col := range sys.Columns {
		switch {
		case col.Source == signature.FromHandle:
			desc.Offsets[i] = 0
			desc.Components[i] = col.Component

		case col.Source == signature.FromSystem:
			desc.Components[i] = col.Component
			desc.Offsets[i] = addRef(Ref{Source: RefSystemSelf, Entity: self}, col.Component)

		case col.Source == signature.FromComponent:
			comp := col.Component
			if col.Op == signature.Or {
				comp = firstCarrier(reg, loc, tableComps, col.Family)
			}
			owner := findOwner(reg, loc, tableComps, comp)
			desc.Components[i] = comp
			desc.Offsets[i] = addRef(Ref{Source: RefComponentOwner, Entity: owner}, comp)

		default: // FromEntity: And, Optional, or Or
			comp := col.Component
			if col.Op == signature.Or {
				comp = reg.Contains(tableFamily, col.Family, false, true)
			}
			if off := t.ColumnOffset(comp); off >= 0 {
				desc.Offsets[i] = off
				desc.Components[i] = comp
				continue
			}
			if col.Op == signature.Optional {
				desc.Offsets[i] = 0
				desc.Components[i] = comp
				continue
			}
			prefab, _ := reg.PrefabOf(tableFamily)
			desc.Components[i] = comp
			desc.Offsets[i] = addRef(Ref{Source: RefPrefabChain, Entity: prefab}, comp)
		}
	}

	return desc
}

// Activate moves a descriptor between sys's active/inactive arrays,
// reporting whether the system's active-table count crossed the 0<->1
// boundary (the scheduler uses this to toggle phase-list membership).
func Activate(sys *System, desc *Descriptor, active bool) (crossed bool) {
	if active {
		if removeDescriptor(&sys.InactiveTables, desc) {
			wasEmpty := len(sys.ActiveTables) == 0
			sys.ActiveTables = append(sys.ActiveTables, desc)
			return wasEmpty
		}
		return false
	}
	if removeDescriptor(&sys.ActiveTables, desc) {
		sys.InactiveTables = append(sys.InactiveTables, desc)
		return len(sys.ActiveTables) == 0
	}
	return false
}

func removeDescriptor(list *[]*Descriptor, desc *Descriptor) bool {
	for i, d := range *list {
		if d == desc {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

// anyCarries reports whether some component entity in comps itself carries
// target as one of its own components, returning that owning component.
func anyCarries(reg *family.Registry, loc Locator, comps []handle.Entity, target handle.Entity) handle.Entity {
	owner := findOwner(reg, loc, comps, target)
	return owner
}

func anyCarriesAnyOf(reg *family.Registry, loc Locator, comps []handle.Entity, orFamily handle.FamilyID) bool {
	for _, c := range comps {
		fam, ok := loc.FamilyOf(c)
		if !ok {
			continue
		}
		if reg.Contains(fam, orFamily, false, true) != handle.None {
			return true
		}
	}
	return false
}

func firstCarrier(reg *family.Registry, loc Locator, comps []handle.Entity, orFamily handle.FamilyID) handle.Entity {
	for _, c := range comps {
		fam, ok := loc.FamilyOf(c)
		if !ok {
			continue
		}
		if h := reg.Contains(fam, orFamily, false, true); h != handle.None {
			return h
		}
	}
	return handle.None
}

// findOwner returns the entity among comps whose own family contains
// target, or handle.None.
func findOwner(reg *family.Registry, loc Locator, comps []handle.Entity, target handle.Entity) handle.Entity {
	if loc == nil {
		return handle.None
	}
	singleton := reg.Singleton(target)
	for _, c := range comps {
		fam, ok := loc.FamilyOf(c)
		if !ok {
			continue
		}
		if reg.Contains(fam, singleton, true, true) != handle.None {
			return c
		}
	}
	return handle.None
}
