package family

import (
	"strings"
	"testing"

	"github.com/kr/pretty"

	"ecsrt/internal/handle"
)

func TestRegisterCanonicalizesAnyPermutation(t *testing.T) {
	r := NewRegistry()
	a := r.Register(0, []handle.Entity{3, 1, 2})
	b := r.Register(0, []handle.Entity{2, 3, 1})
	c := r.Register(0, []handle.Entity{1, 2, 3})
	if a != b || b != c {
		t.Fatalf("expected identical family id for every permutation, got %d %d %d", a, b, c)
	}
	if got := r.Components(a); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected sorted deduped [1 2 3], got %v", got)
	}
}

func TestRegisterDedupes(t *testing.T) {
	r := NewRegistry()
	f := r.Register(0, []handle.Entity{1, 1, 2, 2, 2})
	if got := r.Components(f); len(got) != 2 {
		t.Fatalf("expected 2 deduped components, got %v", got)
	}
}

func TestAddIsSetUnion(t *testing.T) {
	r := NewRegistry()
	base := r.Register(0, []handle.Entity{1, 2})
	withThree := r.Add(base, 3)
	again := r.Add(withThree, 3)
	if withThree != again {
		t.Fatalf("add(add(F,C),C) should equal add(F,C): got %d vs %d", withThree, again)
	}
	if got := r.Components(withThree); len(got) != 3 {
		t.Fatalf("expected 3 components, got %v", got)
	}
}

func TestMergeUnionAndDifference(t *testing.T) {
	r := NewRegistry()
	cur := r.Register(0, []handle.Entity{1, 2, 3})
	toAdd := r.Register(0, []handle.Entity{4})
	toRemove := r.Register(0, []handle.Entity{2})

	merged := r.Merge(cur, toAdd, toRemove)
	got := r.Components(merged)
	want := []handle.Entity{1, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("merge mismatch:\n%s", strings.Join(pretty.Diff(want, got), "\n"))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("merge mismatch:\n%s", strings.Join(pretty.Diff(want, got), "\n"))
		}
	}
}

func TestContainsMatchAll(t *testing.T) {
	r := NewRegistry()
	super := r.Register(0, []handle.Entity{1, 2, 3})
	sub := r.Register(0, []handle.Entity{1, 3})
	notSub := r.Register(0, []handle.Entity{1, 9})

	if h := r.Contains(super, sub, true, false); h == handle.None {
		t.Fatalf("expected sub ⊆ super to match")
	}
	if h := r.Contains(super, notSub, true, false); h != handle.None {
		t.Fatalf("expected non-subset to fail match_all, got %d", h)
	}
}

func TestContainsAny(t *testing.T) {
	r := NewRegistry()
	a := r.Register(0, []handle.Entity{1, 2})
	b := r.Register(0, []handle.Entity{9, 2})
	if h := r.Contains(a, b, false, false); h != 2 {
		t.Fatalf("expected shared element 2, got %d", h)
	}
}

func TestContainsMatchPrefab(t *testing.T) {
	r := NewRegistry()
	prefab := handle.Entity(100)
	prefabFamily := r.Register(0, []handle.Entity{5})
	r.BindEntityLocator(func(e handle.Entity) (handle.FamilyID, bool) {
		if e == prefab {
			return prefabFamily, true
		}
		return 0, false
	})

	instanceFamily := r.Register(0, nil) // entity has no direct components
	r.LinkPrefab(instanceFamily, prefab)

	want := r.Singleton(5)
	if h := r.Contains(instanceFamily, want, true, false); h != handle.None {
		t.Fatalf("expected no direct match without match_prefab")
	}
	if h := r.Contains(instanceFamily, want, true, true); h == handle.None {
		t.Fatalf("expected match_prefab to widen into the linked prefab's family")
	}
}

func TestIsPrefabFamily(t *testing.T) {
	r := NewRegistry()
	r.SetPrefabMarker(42)
	f := r.Register(0, []handle.Entity{1, 42})
	if !r.IsPrefabFamily(f) {
		t.Fatalf("expected family containing the prefab marker to be a prefab family")
	}
	g := r.Register(0, []handle.Entity{1})
	if r.IsPrefabFamily(g) {
		t.Fatalf("expected family without the marker to not be a prefab family")
	}
}
