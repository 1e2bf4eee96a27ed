package ecserr

import (
	"errors"
	"testing"
)

func TestNewFormatsMessageWithoutCause(t *testing.T) {
	err := New(NotRegistered, "unknown component %q", "Position")
	if err.Kind != NotRegistered {
		t.Fatalf("expected kind %q, got %q", NotRegistered, err.Kind)
	}
	want := `ecsrt: not_registered: unknown component "Position"`
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}

func TestWrapIncludesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(InvalidEntity, cause, "entity %d is gone", 7)
	if err.Unwrap() != cause {
		t.Fatalf("expected Unwrap to return the original cause")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to see through Unwrap to the cause")
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := New(NoMatch, "system %q has no active tables", "Move")
	if !Is(err, NoMatch) {
		t.Fatalf("expected Is to match NoMatch")
	}
	if Is(err, NotRegistered) {
		t.Fatalf("expected Is to reject a mismatched kind")
	}
	if Is(errors.New("plain"), NoMatch) {
		t.Fatalf("expected Is to reject a non-*Error value")
	}
}

func TestAssertfPanicsWithInternalAssertError(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected Assertf to panic on a false condition")
		}
		err, ok := r.(*Error)
		if !ok || err.Kind != InternalAssert {
			t.Fatalf("expected panic value to be an InternalAssert *Error, got %#v", r)
		}
	}()
	Assertf(1 == 2, "1 should never equal 2")
}

func TestAssertfNoopOnTrue(t *testing.T) {
	Assertf(1 == 1, "should never fire")
}
