// Package result provides Result, a two-variant outcome carrying either a
// success value or a *failure.Failure.
//
// Combinators never panic and never invoke user callbacks on the branch they
// do not apply to. Type-changing combinators (Map, FlatMap, Fold, Zip,
// Sequence, Traverse) are package functions because Go methods cannot
// introduce type parameters.
package result

import (
	"github.com/vietddude/resilience/internal/core/failure"
)

var errUninitialized = failure.New(failure.KindUnexpected, "uninitialized result",
	failure.WithCode("uninitialized"))

// Result is either Success(value) or Failure(failure). The zero value is a
// Failure so a Result is never neither.
type Result[T any] struct {
	value T
	fail  *failure.Failure
	ok    bool
}

// Success wraps a value.
func Success[T any](value T) Result[T] {
	return Result[T]{value: value, ok: true}
}

// Fail wraps a failure. A nil failure becomes an Unexpected failure.
func Fail[T any](f *failure.Failure) Result[T] {
	if f == nil {
		f = failure.New(failure.KindUnexpected, "nil failure")
	}
	return Result[T]{fail: f}
}

// FromTuple converts a Go (value, error) pair. Errors that already are
// failures are kept, anything else becomes Unexpected.
func FromTuple[T any](value T, err error) Result[T] {
	if err == nil {
		return Success(value)
	}
	if f, ok := failure.As(err); ok {
		return Fail[T](f)
	}
	return Fail[T](failure.Unexpected(err))
}

// TryCatch runs fn and converts a returned error or a panic into a Failure.
func TryCatch[T any](fn func() (T, error)) (res Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			res = Fail[T](failure.FromPanic(p))
		}
	}()
	v, err := fn()
	return FromTuple(v, err)
}

func (r Result[T]) IsSuccess() bool { return r.ok }
func (r Result[T]) IsFailure() bool { return !r.ok }

// Value returns the success value and true, or the zero value and false.
func (r Result[T]) Value() (T, bool) {
	if !r.ok {
		var zero T
		return zero, false
	}
	return r.value, true
}

// Failure returns the failure, or nil on success.
func (r Result[T]) Failure() *failure.Failure {
	if r.ok {
		return nil
	}
	if r.fail == nil {
		return errUninitialized
	}
	return r.fail
}

// Unwrap returns the idiomatic (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.ok {
		return r.value, nil
	}
	var zero T
	return zero, r.Failure()
}

// Recover turns a Failure into a Success using fn. Success passes through.
func (r Result[T]) Recover(fn func(*failure.Failure) T) Result[T] {
	if r.ok {
		return r
	}
	return Success(fn(r.Failure()))
}

// OrElse evaluates fn only when r is a Failure.
func (r Result[T]) OrElse(fn func() Result[T]) Result[T] {
	if r.ok {
		return r
	}
	return fn()
}

// GetOrElse unwraps the value or evaluates the fallback.
func (r Result[T]) GetOrElse(fallback func() T) T {
	if r.ok {
		return r.value
	}
	return fallback()
}

// Tap observes a success value without altering the result.
func (r Result[T]) Tap(fn func(T)) Result[T] {
	if r.ok {
		fn(r.value)
	}
	return r
}

// TapFailure observes a failure without altering the result.
func (r Result[T]) TapFailure(fn func(*failure.Failure)) Result[T] {
	if !r.ok {
		fn(r.Failure())
	}
	return r
}

// MapFailure replaces the failure using fn. Success passes through.
func (r Result[T]) MapFailure(fn func(*failure.Failure) *failure.Failure) Result[T] {
	if r.ok {
		return r
	}
	return Fail[T](fn(r.Failure()))
}

// Map applies fn to a success value. A Failure passes through and fn is not
// called.
func Map[T, R any](r Result[T], fn func(T) R) Result[R] {
	if !r.ok {
		return Result[R]{fail: r.Failure()}
	}
	return Success(fn(r.value))
}

// FlatMap chains a dependent fallible computation. Failure short-circuits.
func FlatMap[T, R any](r Result[T], fn func(T) Result[R]) Result[R] {
	if !r.ok {
		return Result[R]{fail: r.Failure()}
	}
	return fn(r.value)
}

// AndThen is an alias of FlatMap.
func AndThen[T, R any](r Result[T], fn func(T) Result[R]) Result[R] {
	return FlatMap(r, fn)
}

// Fold runs exactly one of the two branches.
func Fold[T, R any](r Result[T], onFailure func(*failure.Failure) R, onSuccess func(T) R) R {
	if !r.ok {
		return onFailure(r.Failure())
	}
	return onSuccess(r.value)
}
