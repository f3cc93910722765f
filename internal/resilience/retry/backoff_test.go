package retry

import (
	"context"
	"testing"
	"time"

	testclock "k8s.io/utils/clock/testing"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/result"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2,
	}
}

func TestWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) result.Result[string] {
		calls++
		if calls <= 2 {
			return result.Fail[string](failure.NewNetwork("flaky"))
		}
		return result.Success("ok")
	}

	var delays []time.Duration
	res := WithBackoff(context.Background(), fastPolicy(), op,
		OnRetry(func(_ int, _ *failure.Failure, d time.Duration) { delays = append(delays, d) }),
	)

	if v, ok := res.Value(); !ok || v != "ok" {
		t.Fatalf("expected success, got %v", res.Failure())
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(delays) != 2 || delays[0] != time.Millisecond || delays[1] != 2*time.Millisecond {
		t.Errorf("unexpected delays %v", delays)
	}
}

func TestWithBackoff_NonRetryableSurfacesImmediately(t *testing.T) {
	calls := 0
	notFound := failure.NewNotFound("user 1")
	op := func(ctx context.Context) result.Result[int] {
		calls++
		return result.Fail[int](notFound)
	}

	res := WithBackoff(context.Background(), fastPolicy(), op)
	if res.Failure() != notFound {
		t.Errorf("expected original failure, got %v", res.Failure())
	}
	if calls != 1 {
		t.Errorf("expected no retry budget consumed, got %d calls", calls)
	}
}

func TestWithBackoff_Exhaustion(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) result.Result[int] {
		calls++
		return result.Fail[int](failure.NewServer(503, "down"))
	}

	res := WithBackoff(context.Background(), fastPolicy(), op)
	if res.Failure().Kind() != failure.KindServer {
		t.Errorf("expected last failure, got %v", res.Failure())
	}
	if calls != 4 {
		t.Errorf("expected MaxAttempts=4 calls, got %d", calls)
	}
}

func TestWithBackoff_CircuitOpenNotRetried(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) result.Result[int] {
		calls++
		return result.Fail[int](failure.NewCircuitOpen(""))
	}

	WithBackoff(context.Background(), fastPolicy(), op)
	if calls != 1 {
		t.Errorf("expected open circuit to fail fast, got %d calls", calls)
	}
}

func TestWithBackoff_CancelDuringSleep(t *testing.T) {
	fc := testclock.NewFakeClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())

	op := func(ctx context.Context) result.Result[int] {
		return result.Fail[int](failure.NewTimeout(""))
	}

	done := make(chan result.Result[int], 1)
	go func() {
		done <- WithBackoff(ctx, Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Hour,
			MaxDelay:    time.Hour,
			Multiplier:  2,
		}, op, WithClock(fc))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !fc.HasWaiters() {
		if time.Now().After(deadline) {
			t.Fatal("backoff never started sleeping")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case res := <-done:
		if !failure.IsCanceled(res.Failure()) {
			t.Errorf("expected canceled failure, got %v", res.Failure())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WithBackoff did not return after cancel")
	}
}

func TestWithBackoff_FakeClockDrivesSleeps(t *testing.T) {
	fc := testclock.NewFakeClock(time.Now())
	calls := 0
	op := func(ctx context.Context) result.Result[int] {
		calls++
		if calls < 3 {
			return result.Fail[int](failure.NewNetwork(""))
		}
		return result.Success(calls)
	}

	done := make(chan result.Result[int], 1)
	go func() {
		done <- WithBackoff(context.Background(), Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    time.Minute,
			Multiplier:  2,
		}, op, WithClock(fc))
	}()

	for step := 0; step < 2; step++ {
		deadline := time.Now().Add(2 * time.Second)
		for !fc.HasWaiters() {
			if time.Now().After(deadline) {
				t.Fatalf("step %d: no pending sleep", step)
			}
			time.Sleep(time.Millisecond)
		}
		fc.Step(time.Minute)
	}

	select {
	case res := <-done:
		if v, ok := res.Value(); !ok || v != 3 {
			t.Errorf("expected success on third call, got %v", res.Failure())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WithBackoff did not finish")
	}
}
