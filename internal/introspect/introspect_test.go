package introspect

import "testing"

func TestNewAssignsDistinctIDs(t *testing.T) {
	a := New()
	b := New()
	if a.ID() == "" {
		t.Fatalf("expected a non-empty instance id")
	}
	if a.ID() == b.ID() {
		t.Fatalf("expected two monitors to get distinct instance ids")
	}
}

func TestPublishWithNoClientsDoesNotPanic(t *testing.T) {
	m := New()
	m.Publish(Frame{Tick: 1, TableCount: 2})
}
