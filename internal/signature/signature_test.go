package signature

import (
	"testing"

	"ecsrt/internal/family"
	"ecsrt/internal/handle"
)

// fakeResolver adapts a family.Registry plus a name table to the Resolver
// interface, the same shape the world façade implements.
type fakeResolver struct {
	reg         *family.Registry
	names       map[string]handle.Entity
	familyNames map[handle.Entity]handle.FamilyID
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		reg:         family.NewRegistry(),
		names:       make(map[string]handle.Entity),
		familyNames: make(map[handle.Entity]handle.FamilyID),
	}
}

func (f *fakeResolver) component(name string, h handle.Entity) {
	f.reg.RegisterComponent(h, family.ComponentRecord{Name: name, Size: 4, Align: 4})
	f.names[name] = h
}

func (f *fakeResolver) ResolveComponent(identifier string) (handle.Entity, bool) {
	h, ok := f.names[identifier]
	return h, ok
}

func (f *fakeResolver) FamilyRegister(add handle.Entity, set []handle.Entity) handle.FamilyID {
	return f.reg.Register(add, set)
}

func (f *fakeResolver) FamilyComponents(fam handle.FamilyID) []handle.Entity {
	return f.reg.Components(fam)
}

func (f *fakeResolver) FamilyMembersOf(h handle.Entity) ([]handle.Entity, bool) {
	fam, ok := f.familyNames[h]
	if !ok {
		return nil, false
	}
	return f.reg.Components(fam), true
}

func TestAdapterBuildsPlainAndColumn(t *testing.T) {
	r := newFakeResolver()
	r.component("Position", 1)
	a := NewAdapter(r)

	if err := a.Callback(FromEntity, And, "Position"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cols := a.Columns()
	if len(cols) != 1 || cols[0].Component != 1 || cols[0].Op != And {
		t.Fatalf("unexpected columns: %+v", cols)
	}
}

func TestAdapterUnknownIdentifierErrors(t *testing.T) {
	r := newFakeResolver()
	a := NewAdapter(r)
	if err := a.Callback(FromEntity, And, "Nope"); err == nil {
		t.Fatalf("expected an error for an unregistered identifier")
	}
}

func TestAdapterMergesConsecutiveOrColumns(t *testing.T) {
	r := newFakeResolver()
	r.component("A", 1)
	r.component("B", 2)
	r.component("C", 3)
	a := NewAdapter(r)

	mustOK(t, a.Callback(FromEntity, Or, "A"))
	mustOK(t, a.Callback(FromEntity, Or, "B"))
	mustOK(t, a.Callback(FromEntity, Or, "C"))

	cols := a.Columns()
	if len(cols) != 1 {
		t.Fatalf("expected one merged Or column, got %d: %+v", len(cols), cols)
	}
	members := r.reg.Components(cols[0].Family)
	if len(members) != 3 {
		t.Fatalf("expected 3 members in the Or family, got %v", members)
	}
}

func TestAdapterBreaksOrColumnOnSourceChange(t *testing.T) {
	r := newFakeResolver()
	r.component("A", 1)
	r.component("B", 2)
	a := NewAdapter(r)

	mustOK(t, a.Callback(FromEntity, Or, "A"))
	mustOK(t, a.Callback(FromComponent, Or, "B"))

	cols := a.Columns()
	if len(cols) != 2 {
		t.Fatalf("expected a new Or column once the source changes, got %d", len(cols))
	}
}

func TestAdapterExpandsDeclaredFamilyIdentifier(t *testing.T) {
	r := newFakeResolver()
	r.component("Position", 1)
	r.component("Speed", 2)
	famHandle := handle.Entity(50)
	fam := r.reg.Register(0, []handle.Entity{1, 2})
	r.familyNames[famHandle] = fam
	r.names["Object"] = famHandle

	a := NewAdapter(r)
	mustOK(t, a.Callback(FromEntity, And, "Object"))

	cols := a.Columns()
	if len(cols) != 2 {
		t.Fatalf("expected the family identifier to expand into 2 columns, got %d: %+v", len(cols), cols)
	}
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
