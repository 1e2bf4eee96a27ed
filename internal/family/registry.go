// Package family implements the family (archetype) registry and the entity
// index: interning canonical, sorted component sets into stable family IDs,
// and mapping live entities to their (family, row) location.
package family

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"ecsrt/internal/handle"
)

// ComponentRecord is the metadata registered for a component entity.
// Immutable once registered.
type ComponentRecord struct {
	Name  string
	Size  uintptr
	Align uintptr
}

// Registry interns sorted, duplicate-free component sets into FamilyIDs and
// holds the component metadata table. Safe for concurrent use; registration
// calls (Register, RegisterComponent) are expected off the hot path (system
// execution stages structural changes instead of calling these directly).
type Registry struct {
	mu sync.RWMutex

	components map[handle.Entity]ComponentRecord

	bySignature map[string]handle.FamilyID
	sets        [][]handle.Entity // FamilyID -> canonical sorted set

	prefabMarker handle.Entity
	prefabOf     map[handle.FamilyID]handle.Entity // family -> linked prefab entity
	locate       func(handle.Entity) (handle.FamilyID, bool)
}

// NewRegistry returns a Registry pre-seeded with family 0, the empty set.
func NewRegistry() *Registry {
	r := &Registry{
		components:  make(map[handle.Entity]ComponentRecord),
		bySignature: make(map[string]handle.FamilyID),
		sets:        [][]handle.Entity{{}},
		prefabOf:    make(map[handle.FamilyID]handle.Entity),
	}
	r.bySignature[signatureOf(nil)] = 0
	return r
}

// RegisterComponent records size/alignment/name for a component entity. Safe
// to call again with identical metadata (idempotent); conflicting metadata
// for an already-registered handle is a programmer error.
func (r *Registry) RegisterComponent(h handle.Entity, rec ComponentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.components[h]; ok {
		ecserrAssertSameRecord(existing, rec)
		return
	}
	r.components[h] = rec
}

// Component returns the registered metadata for h, or the zero value if h
// was never registered as a component.
func (r *Registry) Component(h handle.Entity) (ComponentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.components[h]
	return rec, ok
}

// SetPrefabMarker records which component handle marks an entity/family as a
// prefab (data source, not an iteration target). Expected to be called once
// during world bootstrap.
func (r *Registry) SetPrefabMarker(h handle.Entity) {
	r.mu.Lock()
	r.prefabMarker = h
	r.mu.Unlock()
}

// IsPrefabFamily reports whether f's component set includes the prefab
// marker.
func (r *Registry) IsPrefabFamily(f handle.FamilyID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return containsSorted(r.sets[f], r.prefabMarker)
}

// LinkPrefab records that every entity of family f is a logical instance of
// prefab, so match_prefab lookups for f widen into prefab's own family.
func (r *Registry) LinkPrefab(f handle.FamilyID, prefab handle.Entity) {
	r.mu.Lock()
	r.prefabOf[f] = prefab
	r.mu.Unlock()
}

// PrefabOf returns the prefab entity linked to family f, if any.
func (r *Registry) PrefabOf(f handle.FamilyID) (handle.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prefabOf[f]
	return p, ok
}

// BindEntityLocator lets Contains resolve a linked prefab entity's own
// family when match_prefab widening is requested. World wires this to an
// EntityIndex.FamilyOf at startup; Registry stays usable (without prefab
// widening) without one, which keeps it independently testable.
func (r *Registry) BindEntityLocator(locate func(handle.Entity) (handle.FamilyID, bool)) {
	r.mu.Lock()
	r.locate = locate
	r.mu.Unlock()
}

// Register canonicalizes sort(set ∪ {add}) and interns it, returning the
// existing ID on collision. Passing handle.None for add registers set as-is.
func (r *Registry) Register(add handle.Entity, set []handle.Entity) handle.FamilyID {
	canon := canonicalize(add, set)
	sig := signatureOf(canon)

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.bySignature[sig]; ok {
		return id
	}
	id := handle.FamilyID(len(r.sets))
	r.sets = append(r.sets, canon)
	r.bySignature[sig] = id
	return id
}

// Add returns the family resulting from the union of family and h.
func (r *Registry) Add(f handle.FamilyID, h handle.Entity) handle.FamilyID {
	r.mu.RLock()
	set := r.sets[f]
	r.mu.RUnlock()
	return r.Register(h, set)
}

// Merge computes (cur ∪ toAdd) \ toRemove and interns the result.
func (r *Registry) Merge(cur, toAdd, toRemove handle.FamilyID) handle.FamilyID {
	r.mu.RLock()
	curSet := r.sets[cur]
	addSet := r.sets[toAdd]
	remSet := r.sets[toRemove]
	r.mu.RUnlock()

	merged := unionSorted(curSet, addSet)
	merged = differenceSorted(merged, remSet)
	return r.Register(handle.None, merged)
}

// Components returns the canonical sorted component set for f. The returned
// slice must not be mutated by callers.
func (r *Registry) Components(f handle.FamilyID) []handle.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sets[f]
}

// Singleton interns the single-component family {h}.
func (r *Registry) Singleton(h handle.Entity) handle.FamilyID {
	return r.Register(h, nil)
}

// IsSubset reports whether b's component set is a subset of a's.
func (r *Registry) IsSubset(b, a handle.FamilyID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return subsetOf(r.sets[b], r.sets[a])
}

// Contains implements family_contains: if matchAll, returns an element of b
// (the first) when b ⊆ a, else handle.None; otherwise returns the first
// element of b also present in a, else handle.None. matchPrefab additionally
// widens the search into a's linked prefab family when the direct test
// fails.
func (r *Registry) Contains(a, b handle.FamilyID, matchAll, matchPrefab bool) handle.Entity {
	if h := r.containsDirect(a, b, matchAll); h != handle.None {
		return h
	}
	if !matchPrefab {
		return handle.None
	}
	prefab, ok := r.PrefabOf(a)
	if !ok {
		return handle.None
	}
	r.mu.RLock()
	locate := r.locate
	r.mu.RUnlock()
	if locate == nil {
		return handle.None
	}
	prefabFamily, ok := locate(prefab)
	if !ok {
		return handle.None
	}
	return r.containsDirect(prefabFamily, b, matchAll)
}

func (r *Registry) containsDirect(a, b handle.FamilyID, matchAll bool) handle.Entity {
	r.mu.RLock()
	setA := r.sets[a]
	setB := r.sets[b]
	r.mu.RUnlock()

	if matchAll {
		if subsetOf(setB, setA) && len(setB) > 0 {
			return setB[0]
		}
		return handle.None
	}
	for _, h := range setB {
		if containsSorted(setA, h) {
			return h
		}
	}
	return handle.None
}

func ecserrAssertSameRecord(existing, next ComponentRecord) {
	if existing != next {
		panic("ecsrt: component re-registered with different metadata: " + existing.Name)
	}
}

func canonicalize(add handle.Entity, set []handle.Entity) []handle.Entity {
	merged := make([]handle.Entity, 0, len(set)+1)
	merged = append(merged, set...)
	if add != handle.None {
		merged = append(merged, add)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
	out := merged[:0]
	var last handle.Entity
	first := true
	for _, h := range merged {
		if first || h != last {
			out = append(out, h)
			last = h
			first = false
		}
	}
	return out
}

func signatureOf(set []handle.Entity) string {
	var sb strings.Builder
	for _, h := range set {
		sb.WriteString(strconv.FormatUint(uint64(h), 10))
		sb.WriteByte(',')
	}
	return sb.String()
}

func containsSorted(set []handle.Entity, h handle.Entity) bool {
	if h == handle.None {
		return false
	}
	i := sort.Search(len(set), func(i int) bool { return set[i] >= h })
	return i < len(set) && set[i] == h
}

func subsetOf(sub, super []handle.Entity) bool {
	i := 0
	for _, h := range sub {
		for i < len(super) && super[i] < h {
			i++
		}
		if i >= len(super) || super[i] != h {
			return false
		}
	}
	return true
}

func unionSorted(a, b []handle.Entity) []handle.Entity {
	out := make([]handle.Entity, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func differenceSorted(a, b []handle.Entity) []handle.Entity {
	out := make([]handle.Entity, 0, len(a))
	j := 0
	for _, h := range a {
		for j < len(b) && b[j] < h {
			j++
		}
		if j < len(b) && b[j] == h {
			continue
		}
		out = append(out, h)
	}
	return out
}
