// Package result holds an already-computed outcome of a fallible operation.
//
// Settlement operations return Result values so that callers inspect the
// failure path explicitly. Unwrap is the boundary back to Go's (T, error)
// convention.
package result

import "errors"

var ErrNilError = errors.New("result: Err called with nil error")

// Result carries either a value or an error, never both.
type Result[T any] struct {
	value T
	err   error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err builds a failed Result. A nil err is replaced by ErrNilError so the
// Result stays failed.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = ErrNilError
	}
	return Result[T]{err: err}
}

// From adapts a (T, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

func (r Result[T]) IsOk() bool  { return r.err == nil }
func (r Result[T]) IsErr() bool { return r.err != nil }

// Err returns the stored error, or nil for a successful Result.
func (r Result[T]) Err() error { return r.err }

func (r Result[T]) Unwrap() (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return r.value, nil
}

// MustUnwrap panics with the stored error.
func (r Result[T]) MustUnwrap() T {
	if r.err != nil {
		panic(r.err)
	}
	return r.value
}

// Map applies f to a successful value and passes failures through.
func Map[T, U any](r Result[T], f func(T) U) Result[U] {
	if r.err != nil {
		return Err[U](r.err)
	}
	return Ok(f(r.value))
}
