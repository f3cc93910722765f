// Package breaker guards a failing dependency with a closed/open/half-open
// circuit.
//
// While open, calls fail fast with a CircuitOpen failure and the wrapped
// operation is never executed. Once the timeout elapses, a single probe is
// let through; SuccessThreshold consecutive probe successes close the
// circuit and any probe failure re-opens it.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/result"
)

// Observer receives breaker events, e.g. for metrics.
type Observer interface {
	BreakerStateChanged(name string, from, to State)
	BreakerRejected(name string)
}

// Config configures a circuit breaker.
type Config struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration

	Clock         clock.PassiveClock
	Logger        *slog.Logger
	Observer      Observer
	OnStateChange func(name string, t Transition)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name                 string    `json:"name"`
	State                string    `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	OpenedAt             time.Time `json:"opened_at,omitempty"`
	RetryIn              string    `json:"retry_in,omitempty"`
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeNeutral
)

// ticket identifies the state generation a call was admitted under. Results
// arriving after the breaker moved on are dropped.
type ticket struct {
	generation uint64
	probe      bool
}

// CircuitBreaker is the type-independent state machine. Use Breaker[T] to
// bind it to an operation, or Run to guard ad-hoc calls.
type CircuitBreaker struct {
	cfg Config

	mu         sync.Mutex
	state      State
	failures   int
	successes  int
	openedAt   time.Time
	probing    bool
	generation uint64
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the number of consecutive failures.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Snapshot returns the current state and counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Snapshot{
		Name:                 cb.cfg.Name,
		State:                cb.state.String(),
		ConsecutiveFailures:  cb.failures,
		ConsecutiveSuccesses: cb.successes,
	}
	if cb.state != StateClosed {
		s.OpenedAt = cb.openedAt
	}
	if cb.state == StateOpen {
		s.RetryIn = cb.retryIn().String()
	}
	return s
}

// Reset forces the breaker closed and clears all counters. In-flight calls
// admitted before the reset no longer affect the state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	var changes []Transition
	if cb.state != StateClosed {
		changes = append(changes, cb.setState(StateClosed, "manual reset"))
	} else {
		cb.generation++
	}
	cb.failures = 0
	cb.successes = 0
	cb.probing = false
	cb.mu.Unlock()

	cb.notify(changes)
}

// acquire admits a call or rejects it with a CircuitOpen failure.
func (cb *CircuitBreaker) acquire() (ticket, *failure.Failure) {
	cb.mu.Lock()
	var changes []Transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(changes)
	}()

	switch cb.state {
	case StateClosed:
		return ticket{generation: cb.generation}, nil
	case StateOpen:
		if cb.retryIn() > 0 {
			return ticket{}, cb.rejectLocked()
		}
		changes = append(changes, cb.setState(StateHalfOpen, "timeout elapsed"))
		cb.probing = true
		return ticket{generation: cb.generation, probe: true}, nil
	case StateHalfOpen:
		if cb.probing {
			return ticket{}, cb.rejectLocked()
		}
		cb.probing = true
		return ticket{generation: cb.generation, probe: true}, nil
	default:
		return ticket{}, failure.New(failure.KindUnexpected, fmt.Sprintf("breaker %s in unknown state %d", cb.cfg.Name, cb.state))
	}
}

// release records the outcome of an admitted call.
func (cb *CircuitBreaker) release(t ticket, o outcome) {
	cb.mu.Lock()
	var changes []Transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(changes)
	}()

	if t.generation != cb.generation {
		return
	}
	if t.probe {
		cb.probing = false
	}
	if o == outcomeNeutral {
		return
	}

	switch cb.state {
	case StateClosed:
		if o == outcomeSuccess {
			cb.failures = 0
			return
		}
		cb.failures++
		cb.successes = 0
		if cb.failures >= cb.cfg.FailureThreshold {
			changes = append(changes, cb.setState(StateOpen,
				fmt.Sprintf("%d consecutive failures", cb.failures)))
		}
	case StateHalfOpen:
		if o == outcomeFailure {
			cb.successes = 0
			changes = append(changes, cb.setState(StateOpen, "probe failed"))
			return
		}
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			changes = append(changes, cb.setState(StateClosed,
				fmt.Sprintf("%d consecutive probe successes", cb.successes)))
			cb.failures = 0
			cb.successes = 0
		}
	case StateOpen:
		// Tickets are never issued while open.
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(to State, reason string) Transition {
	now := cb.cfg.Clock.Now()
	t := Transition{From: cb.state, To: to, Reason: reason, Timestamp: now}
	cb.state = to
	cb.generation++
	if to == StateOpen {
		cb.openedAt = now
	}
	return t
}

func (cb *CircuitBreaker) retryIn() time.Duration {
	return cb.cfg.Timeout - cb.cfg.Clock.Since(cb.openedAt)
}

func (cb *CircuitBreaker) rejectLocked() *failure.Failure {
	if cb.cfg.Observer != nil {
		cb.cfg.Observer.BreakerRejected(cb.cfg.Name)
	}
	retryIn := max(cb.retryIn(), 0)
	return failure.NewCircuitOpen(
		fmt.Sprintf("circuit %s is %s", cb.cfg.Name, cb.state),
		failure.WithCode("circuit_open"),
		failure.WithContext("breaker", cb.cfg.Name),
		failure.WithContext("retry_in", retryIn.String()),
	)
}

func (cb *CircuitBreaker) notify(changes []Transition) {
	for _, t := range changes {
		cb.cfg.Logger.Info("Circuit breaker state changed",
			"breaker", cb.cfg.Name,
			"from", t.From.String(),
			"to", t.To.String(),
			"reason", t.Reason,
		)
		if cb.cfg.Observer != nil {
			cb.cfg.Observer.BreakerStateChanged(cb.cfg.Name, t.From, t.To)
		}
		if cb.cfg.OnStateChange != nil {
			cb.cfg.OnStateChange(cb.cfg.Name, t)
		}
	}
}

// Run executes fn through cb. A panic in fn is recovered and recorded as a
// failure. Cancellation is recorded as neither success nor failure.
func Run[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) result.Result[T]) result.Result[T] {
	t, rejected := cb.acquire()
	if rejected != nil {
		return result.Fail[T](rejected)
	}

	res := invoke(ctx, fn)
	cb.release(t, classify(ctx, res))
	return res
}

func invoke[T any](ctx context.Context, fn func(ctx context.Context) result.Result[T]) (res result.Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			res = result.Fail[T](failure.FromPanic(p))
		}
	}()
	return fn(ctx)
}

func classify[T any](ctx context.Context, res result.Result[T]) outcome {
	if res.IsSuccess() {
		return outcomeSuccess
	}
	if failure.IsCanceled(res.Failure()) || errors.Is(ctx.Err(), context.Canceled) {
		return outcomeNeutral
	}
	return outcomeFailure
}

// Breaker binds a CircuitBreaker to one protected operation.
type Breaker[T any] struct {
	*CircuitBreaker
	execute func(ctx context.Context) result.Result[T]
}

// New creates a breaker around execute.
func New[T any](cfg Config, execute func(ctx context.Context) result.Result[T]) *Breaker[T] {
	return &Breaker[T]{
		CircuitBreaker: NewCircuitBreaker(cfg),
		execute:        execute,
	}
}

// Call runs the protected operation, or fails fast while the circuit is open.
func (b *Breaker[T]) Call(ctx context.Context) result.Result[T] {
	return Run(ctx, b.CircuitBreaker, b.execute)
}
