package result

import (
	"errors"
	"fmt"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
	"github.com/vietddude/resilience/internal/core/failure"
)

func same[T comparable](a, b Result[T]) bool {
	if a.IsSuccess() != b.IsSuccess() {
		return false
	}
	if a.IsSuccess() {
		av, _ := a.Value()
		bv, _ := b.Value()
		return av == bv
	}
	return a.Failure() == b.Failure()
}

var (
	errBoom  = failure.NewServer(500, "boom")
	errOther = failure.NewNotFound("missing")
)

func samples() []Result[int] {
	return []Result[int]{Success(0), Success(7), Success(-3), Fail[int](errBoom)}
}

func TestLaw_LeftIdentity(t *testing.T) {
	fns := []func(int) Result[int]{
		func(x int) Result[int] { return Success(x * 2) },
		func(x int) Result[int] { return Fail[int](errOther) },
	}
	for _, a := range []int{0, 1, 42, -9} {
		for i, f := range fns {
			if !same(FlatMap(Success(a), f), f(a)) {
				t.Errorf("left identity failed for a=%d f=%d", a, i)
			}
		}
	}
}

func TestLaw_RightIdentity(t *testing.T) {
	for _, m := range samples() {
		if !same(FlatMap(m, Success[int]), m) {
			t.Errorf("right identity failed for %v", m)
		}
	}
}

func TestLaw_Associativity(t *testing.T) {
	f := func(x int) Result[int] {
		if x < 0 {
			return Fail[int](errOther)
		}
		return Success(x + 1)
	}
	g := func(x int) Result[int] { return Success(x * 10) }

	for _, m := range samples() {
		left := FlatMap(FlatMap(m, f), g)
		right := FlatMap(m, func(x int) Result[int] { return FlatMap(f(x), g) })
		if !same(left, right) {
			t.Errorf("associativity failed for %v", m)
		}
	}
}

func TestLaw_FailureAbsorption(t *testing.T) {
	calls := 0
	m := Fail[int](errBoom)

	mapped := Map(m, func(x int) string {
		calls++
		return fmt.Sprint(x)
	})
	flat := FlatMap(m, func(x int) Result[string] {
		calls++
		return Success("never")
	})

	if calls != 0 {
		t.Errorf("expected callbacks never invoked, got %d calls", calls)
	}
	if mapped.Failure() != errBoom || flat.Failure() != errBoom {
		t.Error("expected the original failure to pass through unchanged")
	}
}

func TestMap_Identity(t *testing.T) {
	for _, m := range samples() {
		if !same(Map(m, func(x int) int { return x }), m) {
			t.Errorf("map(id) changed %v", m)
		}
	}
}

// resultOf builds a success or, when fail is set, a failure carrying x in
// its message so that distinct failures compare unequal.
func resultOf(x int, fail bool) Result[int] {
	if fail {
		return Fail[int](failure.NewServer(500, fmt.Sprint("failed on ", x)))
	}
	return Success(x)
}

// sameOutcome compares successes by value and failures by message.
func sameOutcome(a, b Result[int]) bool {
	if a.IsSuccess() != b.IsSuccess() {
		return false
	}
	if a.IsSuccess() {
		av, _ := a.Value()
		bv, _ := b.Value()
		return av == bv
	}
	return a.Failure().Error() == b.Failure().Error()
}

// fnOf derives a Kleisli function that fails on inputs divisible by mod.
func fnOf(mul, mod int) func(int) Result[int] {
	if mod == 0 {
		mod = 1
	}
	return func(x int) Result[int] {
		return resultOf(x*mul, x%mod == 0 && mod > 1)
	}
}

func TestLawProperty_LeftIdentity(t *testing.T) {
	law := func(a, mul int, mod uint8) bool {
		f := fnOf(mul, int(mod))
		return sameOutcome(FlatMap(Success(a), f), f(a))
	}
	if err := quick.Check(law, nil); err != nil {
		t.Error(err)
	}
}

func TestLawProperty_RightIdentity(t *testing.T) {
	law := func(x int, fail bool) bool {
		m := resultOf(x, fail)
		return sameOutcome(FlatMap(m, Success[int]), m)
	}
	if err := quick.Check(law, nil); err != nil {
		t.Error(err)
	}
}

func TestLawProperty_Associativity(t *testing.T) {
	law := func(x int, fail bool, fm, gm int, fmod, gmod uint8) bool {
		m := resultOf(x, fail)
		f, g := fnOf(fm, int(fmod)), fnOf(gm, int(gmod))
		left := FlatMap(FlatMap(m, f), g)
		right := FlatMap(m, func(v int) Result[int] { return FlatMap(f(v), g) })
		return sameOutcome(left, right)
	}
	if err := quick.Check(law, nil); err != nil {
		t.Error(err)
	}
}

func TestLawProperty_MapComposition(t *testing.T) {
	law := func(x int, fail bool, add, mul int) bool {
		m := resultOf(x, fail)
		f := func(v int) int { return v + add }
		g := func(v int) int { return v * mul }
		composed := Map(m, func(v int) int { return g(f(v)) })
		return sameOutcome(Map(Map(m, f), g), composed) &&
			sameOutcome(Map(m, func(v int) int { return v }), m)
	}
	if err := quick.Check(law, nil); err != nil {
		t.Error(err)
	}
}

func TestLawProperty_FailurePassesThrough(t *testing.T) {
	law := func(x, mul int) bool {
		m := resultOf(x, true)
		mapped := Map(m, func(v int) int { return v * mul })
		flat := FlatMap(m, func(v int) Result[int] { return Success(v * mul) })
		return mapped.Failure() == m.Failure() && flat.Failure() == m.Failure()
	}
	if err := quick.Check(law, nil); err != nil {
		t.Error(err)
	}
}

func TestZeroValueIsFailure(t *testing.T) {
	var r Result[string]
	if r.IsSuccess() {
		t.Fatal("zero Result must not be a success")
	}
	if r.Failure() == nil || r.Failure().Kind() != failure.KindUnexpected {
		t.Errorf("expected unexpected failure, got %v", r.Failure())
	}
}

func TestFold(t *testing.T) {
	onFail := func(f *failure.Failure) string { return "fail:" + f.Kind().String() }
	onOk := func(x int) string { return fmt.Sprintf("ok:%d", x) }

	if got := Fold(Success(3), onFail, onOk); got != "ok:3" {
		t.Errorf("unexpected fold result %q", got)
	}
	if got := Fold(Fail[int](errOther), onFail, onOk); got != "fail:not_found" {
		t.Errorf("unexpected fold result %q", got)
	}
}

func TestRecoverOrElseGetOrElse(t *testing.T) {
	failed := Fail[int](errBoom)

	if v, _ := failed.Recover(func(*failure.Failure) int { return 9 }).Value(); v != 9 {
		t.Errorf("expected recovered 9, got %d", v)
	}
	if v, _ := Success(1).Recover(func(*failure.Failure) int { return 9 }).Value(); v != 1 {
		t.Errorf("recover must not touch success, got %d", v)
	}

	alt := 0
	if v, _ := failed.OrElse(func() Result[int] { alt++; return Success(5) }).Value(); v != 5 {
		t.Errorf("expected alternative 5, got %d", v)
	}
	Success(1).OrElse(func() Result[int] { alt++; return Success(5) })
	if alt != 1 {
		t.Errorf("expected alternative evaluated once, got %d", alt)
	}

	if got := failed.GetOrElse(func() int { return 11 }); got != 11 {
		t.Errorf("expected default 11, got %d", got)
	}
	if got := Success(2).GetOrElse(func() int { return 11 }); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
}

func TestTap(t *testing.T) {
	var seen []string
	r := Success(4).
		Tap(func(x int) { seen = append(seen, fmt.Sprint("ok", x)) }).
		TapFailure(func(*failure.Failure) { seen = append(seen, "fail") })

	if v, _ := r.Value(); v != 4 {
		t.Errorf("tap altered value: %d", v)
	}

	f := Fail[int](errBoom).
		Tap(func(int) { seen = append(seen, "never") }).
		TapFailure(func(f *failure.Failure) { seen = append(seen, "fail:"+f.Kind().String()) })
	if f.Failure() != errBoom {
		t.Error("tapFailure altered failure")
	}

	if diff := cmp.Diff([]string{"ok4", "fail:server"}, seen); diff != "" {
		t.Errorf("unexpected observations (-want +got):\n%s", diff)
	}
}

func TestZip(t *testing.T) {
	z := Zip(Success(1), Success("a"))
	got, ok := z.Value()
	if !ok || got != (Pair[int, string]{First: 1, Second: "a"}) {
		t.Errorf("unexpected zip: %+v", got)
	}

	if Zip(Fail[int](errBoom), Success("a")).Failure() != errBoom {
		t.Error("expected left failure")
	}
	if Zip(Fail[int](errBoom), Fail[string](errOther)).Failure() != errBoom {
		t.Error("expected first failure left-to-right")
	}
	if Zip(Success(1), Fail[string](errOther)).Failure() != errOther {
		t.Error("expected right failure")
	}
}

func TestSequence(t *testing.T) {
	ok := Sequence([]Result[int]{Success(1), Success(2), Success(3)})
	vals, _ := ok.Value()
	if diff := cmp.Diff([]int{1, 2, 3}, vals); diff != "" {
		t.Errorf("sequence mismatch (-want +got):\n%s", diff)
	}

	bad := Sequence([]Result[int]{Success(1), Fail[int](errBoom), Fail[int](errOther)})
	if bad.Failure() != errBoom {
		t.Errorf("expected first failure, got %v", bad.Failure())
	}

	empty, _ := Sequence[int](nil).Value()
	if len(empty) != 0 {
		t.Errorf("expected empty slice, got %v", empty)
	}
}

func TestTraverse(t *testing.T) {
	parse := func(s string) Result[int] {
		var n int
		if _, err := fmt.Sscan(s, &n); err != nil {
			return Fail[int](failure.NewValidation(nil, "not a number: "+s))
		}
		return Success(n)
	}

	vals, ok := Traverse([]string{"1", "2"}, parse).Value()
	if !ok || !cmp.Equal([]int{1, 2}, vals) {
		t.Errorf("unexpected traverse result %v", vals)
	}

	var seen []string
	r := Traverse([]string{"1", "x", "3"}, func(s string) Result[int] {
		seen = append(seen, s)
		return parse(s)
	})
	if r.Failure().Kind() != failure.KindValidation {
		t.Errorf("expected validation failure, got %v", r.Failure())
	}
	if diff := cmp.Diff([]string{"1", "x"}, seen); diff != "" {
		t.Errorf("expected fn to stop at the first failure (-want +got):\n%s", diff)
	}
}

func TestTryCatch(t *testing.T) {
	r := TryCatch(func() (int, error) { return 1, nil })
	if v, ok := r.Value(); !ok || v != 1 {
		t.Errorf("expected success 1, got %v", r)
	}

	r = TryCatch(func() (int, error) { return 0, errors.New("disk on fire") })
	if r.Failure().Kind() != failure.KindUnexpected {
		t.Errorf("expected unexpected, got %v", r.Failure())
	}

	r = TryCatch(func() (int, error) { return 0, errOther })
	if r.Failure() != errOther {
		t.Error("expected an existing failure to be kept")
	}

	r = TryCatch(func() (int, error) {
		var m map[string]int
		m["x"] = 1
		return 0, nil
	})
	if r.Failure() == nil || r.Failure().Code() != "panic" {
		t.Errorf("expected panic to be converted, got %v", r.Failure())
	}
}

func TestUnwrap(t *testing.T) {
	v, err := Success("x").Unwrap()
	if err != nil || v != "x" {
		t.Errorf("unexpected unwrap: %q %v", v, err)
	}

	_, err = Fail[string](errOther).Unwrap()
	if !failure.Is(err, failure.KindNotFound) {
		t.Errorf("expected not found error, got %v", err)
	}
}
