package result

import (
	"errors"
	"testing"
)

func TestOk(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() || r.Err() != nil {
		t.Fatalf("Ok: isOk=%v isErr=%v err=%v", r.IsOk(), r.IsErr(), r.Err())
	}

	v, err := r.Unwrap()
	if err != nil || v != 42 {
		t.Fatalf("Unwrap: %d, %v", v, err)
	}
	if got := r.MustUnwrap(); got != 42 {
		t.Fatalf("MustUnwrap=%d", got)
	}
}

func TestErr(t *testing.T) {
	boom := errors.New("boom")
	r := Err[string](boom)
	if r.IsOk() || !r.IsErr() {
		t.Fatalf("Err: isOk=%v isErr=%v", r.IsOk(), r.IsErr())
	}
	if !errors.Is(r.Err(), boom) {
		t.Fatalf("Err()=%v", r.Err())
	}

	v, err := r.Unwrap()
	if !errors.Is(err, boom) || v != "" {
		t.Fatalf("Unwrap: %q, %v", v, err)
	}

	defer func() {
		p := recover()
		if perr, ok := p.(error); !ok || !errors.Is(perr, boom) {
			t.Fatalf("MustUnwrap panic=%v", p)
		}
	}()
	r.MustUnwrap()
	t.Fatalf("MustUnwrap did not panic")
}

func TestErr_NilStaysFailed(t *testing.T) {
	r := Err[int](nil)
	if !r.IsErr() || !errors.Is(r.Err(), ErrNilError) {
		t.Fatalf("Err(nil): isErr=%v err=%v", r.IsErr(), r.Err())
	}
}

func TestFrom(t *testing.T) {
	if !From("x", nil).IsOk() {
		t.Fatalf("From with nil error is not ok")
	}
	if !From("x", errors.New("no")).IsErr() {
		t.Fatalf("From with error is not err")
	}
}

func TestMap(t *testing.T) {
	double := func(n int) int { return n * 2 }
	if got := Map(Ok(4), double).MustUnwrap(); got != 8 {
		t.Fatalf("Map=%d", got)
	}

	boom := errors.New("boom")
	if err := Map(Err[int](boom), double).Err(); !errors.Is(err, boom) {
		t.Fatalf("Map on Err: %v", err)
	}
}
