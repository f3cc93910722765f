package result

// Pair holds the two values combined by Zip.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Zip succeeds iff both results succeed. Otherwise it yields the first
// failure, left to right.
func Zip[A, B any](a Result[A], b Result[B]) Result[Pair[A, B]] {
	if !a.ok {
		return Fail[Pair[A, B]](a.Failure())
	}
	if !b.ok {
		return Fail[Pair[A, B]](b.Failure())
	}
	return Success(Pair[A, B]{First: a.value, Second: b.value})
}

// Sequence succeeds iff every element succeeds, else returns the first
// failure in list order. An empty list yields an empty success.
func Sequence[T any](results []Result[T]) Result[[]T] {
	values := make([]T, 0, len(results))
	for _, r := range results {
		if !r.ok {
			return Fail[[]T](r.Failure())
		}
		values = append(values, r.value)
	}
	return Success(values)
}

// Traverse maps every item through fn and sequences the results. The result
// equals Sequence over fn applied to each item, but Traverse stops at the
// first failure: fn is never called for the items after it, so side effects
// in fn run only for the prefix up to and including the failing item.
func Traverse[T, R any](items []T, fn func(T) Result[R]) Result[[]R] {
	values := make([]R, 0, len(items))
	for _, item := range items {
		r := fn(item)
		if !r.ok {
			return Fail[[]R](r.Failure())
		}
		values = append(values, r.value)
	}
	return Success(values)
}
