package result

import (
	"errors"
	"testing"
)

func TestOkHoldsValue(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() {
		t.Fatalf("expected ok")
	}
	v, ok := r.Value()
	if !ok || v != 42 {
		t.Fatalf("got (%v, %v), want (42, true)", v, ok)
	}
	if r.Err() != nil {
		t.Fatalf("expected nil error")
	}
}

func TestErrHoldsError(t *testing.T) {
	want := errors.New("boom")
	r := Err[int](want)
	if r.IsOk() {
		t.Fatalf("expected not-ok")
	}
	if r.Err() != want {
		t.Fatalf("expected underlying error preserved")
	}
}

func TestErrfFormats(t *testing.T) {
	r := Errf[string]("failed: %s", "reason")
	if r.ErrString() != "failed: reason" {
		t.Fatalf("got %q", r.ErrString())
	}
}

func TestUnwrapPanicsOnError(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on unwrap of error result")
		}
	}()
	Err[int](errors.New("boom")).Unwrap()
}

func TestUnwrapReturnsValueOnOk(t *testing.T) {
	if Ok("hi").Unwrap() != "hi" {
		t.Fatalf("expected unwrap to return value")
	}
}

func TestErrStringEmptyWhenOk(t *testing.T) {
	if Ok(1).ErrString() != "" {
		t.Fatalf("expected empty error string for ok result")
	}
}
