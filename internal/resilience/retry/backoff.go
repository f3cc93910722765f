package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"k8s.io/utils/clock"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/result"
)

// Observer receives retry events, e.g. for metrics.
type Observer interface {
	RetryScheduled(operation string, kind failure.Kind, attempt int, delay time.Duration)
	RetryExhausted(operation string, kind failure.Kind, attempts int)
}

type options struct {
	name     string
	clock    clock.Clock
	rnd      func() float64
	logger   *slog.Logger
	observer Observer
	onRetry  func(attempt int, f *failure.Failure, delay time.Duration)
}

// Option configures a WithBackoff call.
type Option func(*options)

// WithName labels the operation in logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithClock injects the time source used for sleeping.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRand injects the jitter source. It must return values in [0, 1).
func WithRand(rnd func() float64) Option {
	return func(o *options) { o.rnd = rnd }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// OnRetry registers a hook called before each backoff sleep.
func OnRetry(fn func(attempt int, f *failure.Failure, delay time.Duration)) Option {
	return func(o *options) { o.onRetry = fn }
}

// WithBackoff invokes op until it succeeds, the policy is exhausted, or a
// non-retryable failure occurs. The delay is awaited here, outside whatever
// op wraps, so an open circuit inside op fails fast and is not retried.
func WithBackoff[T any](
	ctx context.Context,
	policy Policy,
	op func(ctx context.Context) result.Result[T],
	opts ...Option,
) result.Result[T] {
	o := options{
		name:   "operation",
		clock:  clock.RealClock{},
		rnd:    rand.Float64,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	maxAttempts := max(policy.MaxAttempts, 1)
	var last result.Result[T]

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result.Fail[T](failure.FromError(err))
		}

		last = op(ctx)
		if last.IsSuccess() {
			return last
		}

		f := last.Failure()
		if failure.IsCanceled(f) || !policy.ShouldRetry(attempt+1, f) {
			if attempt+1 >= maxAttempts && o.observer != nil {
				o.observer.RetryExhausted(o.name, f.Kind(), attempt+1)
			}
			return last
		}

		delay := policy.delayFor(attempt, f, o.rnd)
		o.logger.Debug("Retrying operation",
			"operation", o.name,
			"attempt", attempt+1,
			"kind", f.Kind().String(),
			"delay", delay,
			"error", f,
		)
		if o.onRetry != nil {
			o.onRetry(attempt+1, f, delay)
		}
		if o.observer != nil {
			o.observer.RetryScheduled(o.name, f.Kind(), attempt+1, delay)
		}

		timer := o.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result.Fail[T](failure.FromError(ctx.Err()))
		case <-timer.C():
		}
	}

	return last
}
