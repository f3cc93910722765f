// Package retry computes backoff delays and retry eligibility, and provides
// the caller-driven loop that applies them.
//
// This package contains:
//   - Policy: immutable retry configuration with pure NextDelay/ShouldRetry
//   - WithBackoff: loop that sleeps between attempts and honours ctx
package retry

import (
	"math"
	"time"

	"github.com/vietddude/resilience/internal/core/failure"
)

// Policy defines retry behavior. It is a value type, shared read-only.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // in [0, 1]

	// IsRetryable overrides DefaultRetryable when set.
	IsRetryable func(*failure.Failure) bool
}

// DefaultPolicy provides sensible defaults.
var DefaultPolicy = Policy{
	MaxAttempts:  3,
	BaseDelay:    200 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
	JitterFactor: 0.2,
}

// NextDelay returns min(base × multiplier^attempt, max). Attempt is
// zero-indexed; attempt 0 yields base.
func NextDelay(attempt int, base, max time.Duration, multiplier float64) time.Duration {
	return time.Duration(exponential(attempt, base, max, multiplier))
}

func exponential(attempt int, base, max time.Duration, multiplier float64) float64 {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(base) * math.Pow(multiplier, float64(attempt))
	if math.IsNaN(delay) || delay > float64(max) {
		delay = float64(max)
	}
	return delay
}

// NextDelay is the unjittered delay before retry number attempt+1.
func (p Policy) NextDelay(attempt int) time.Duration {
	return NextDelay(attempt, p.BaseDelay, p.MaxDelay, p.Multiplier)
}

// NextDelayJittered multiplies the exponential delay by
// 1 + U(-JitterFactor, +JitterFactor) and clamps it to [0, MaxDelay].
// rnd must return values in [0, 1). With a zero JitterFactor the result is
// exactly NextDelay.
func (p Policy) NextDelayJittered(attempt int, rnd func() float64) time.Duration {
	jitter := clampUnit(p.JitterFactor)
	if jitter == 0 || rnd == nil {
		return p.NextDelay(attempt)
	}

	delay := exponential(attempt, p.BaseDelay, p.MaxDelay, p.Multiplier)
	delay *= 1 + (rnd()*2-1)*jitter
	delay = math.Max(0, math.Min(delay, float64(p.MaxDelay)))
	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt is allowed after attempt
// attempts have been made and the last one failed with f.
func (p Policy) ShouldRetry(attempt int, f *failure.Failure) bool {
	if attempt >= p.MaxAttempts || f == nil {
		return false
	}
	if p.IsRetryable != nil {
		return p.IsRetryable(f)
	}
	return DefaultRetryable(f)
}

// DefaultRetryable treats connectivity and overload failures as transient.
// Client-input failures are never retried since repeating them cannot
// succeed.
func DefaultRetryable(f *failure.Failure) bool {
	switch f.Kind() {
	case failure.KindNetwork, failure.KindTimeout, failure.KindRateLimit:
		return true
	case failure.KindServer:
		return f.StatusCode() == 0 || f.StatusCode() >= 500
	case failure.KindValidation,
		failure.KindUnauthorized,
		failure.KindForbidden,
		failure.KindNotFound,
		failure.KindConflict,
		failure.KindCache,
		failure.KindCircuitOpen,
		failure.KindUnexpected:
		return false
	default:
		return false
	}
}

// delayFor picks the delay before the next attempt, honouring a rate-limit
// hint as a floor.
func (p Policy) delayFor(attempt int, f *failure.Failure, rnd func() float64) time.Duration {
	delay := p.NextDelayJittered(attempt, rnd)
	if f != nil {
		if hint, ok := f.RetryAfter(); ok && hint > delay {
			delay = min(hint, p.MaxDelay)
		}
	}
	return delay
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}
