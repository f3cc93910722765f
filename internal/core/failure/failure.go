// Package failure defines the closed set of failure kinds every fallible
// operation in this module reports.
//
// A Failure is immutable once constructed. Higher layers wrap or replace it,
// they never mutate it. Switches over Kind are expected to be exhaustive:
// adding a kind is a breaking change.
package failure

import (
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"strings"
	"time"
)

// Kind identifies the variant of a Failure.
type Kind int

const (
	KindUnexpected Kind = iota
	KindNetwork
	KindTimeout
	KindServer
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimit
	KindCache
	KindCircuitOpen
)

// AllKinds returns every kind in declaration order.
func AllKinds() []Kind {
	return []Kind{
		KindUnexpected,
		KindNetwork,
		KindTimeout,
		KindServer,
		KindValidation,
		KindUnauthorized,
		KindForbidden,
		KindNotFound,
		KindConflict,
		KindRateLimit,
		KindCache,
		KindCircuitOpen,
	}
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnexpected:
		return "unexpected"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindServer:
		return "server"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimit:
		return "rate_limit"
	case KindCache:
		return "cache"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(name string) (Kind, bool) {
	for _, k := range AllKinds() {
		if k.String() == name {
			return k, true
		}
	}
	return KindUnexpected, false
}

func defaultMessage(k Kind) string {
	switch k {
	case KindUnexpected:
		return "unexpected error"
	case KindNetwork:
		return "network unavailable"
	case KindTimeout:
		return "operation timed out"
	case KindServer:
		return "server error"
	case KindValidation:
		return "invalid request"
	case KindUnauthorized:
		return "authentication required"
	case KindForbidden:
		return "access denied"
	case KindNotFound:
		return "resource not found"
	case KindConflict:
		return "resource conflict"
	case KindRateLimit:
		return "rate limit exceeded"
	case KindCache:
		return "cache error"
	case KindCircuitOpen:
		return "circuit breaker is open"
	default:
		return "unknown failure"
	}
}

// Failure is a classified error with diagnostic payload.
type Failure struct {
	kind        Kind
	message     string
	code        string
	context     map[string]any
	statusCode  int
	fieldErrors map[string][]string
	retryAfter  time.Duration
	cause       error
	stack       string
}

// Option customizes a Failure at construction.
type Option func(*Failure)

// WithCode sets a machine-readable code.
func WithCode(code string) Option {
	return func(f *Failure) { f.code = code }
}

// WithContext attaches one structured context value.
func WithContext(key string, value any) Option {
	return func(f *Failure) {
		if f.context == nil {
			f.context = make(map[string]any)
		}
		f.context[key] = value
	}
}

// WithCause records the lower-level error this failure was translated from.
func WithCause(err error) Option {
	return func(f *Failure) { f.cause = err }
}

// WithStack records an originating stack trace.
func WithStack(stack string) Option {
	return func(f *Failure) { f.stack = stack }
}

// CaptureStack records the stack of the caller constructing the failure.
func CaptureStack() Option {
	return func(f *Failure) { f.stack = string(debug.Stack()) }
}

// New builds a Failure of the given kind. An empty message is replaced by the
// kind's default so every failure carries a diagnostic message.
func New(kind Kind, message string, opts ...Option) *Failure {
	if strings.TrimSpace(message) == "" {
		message = defaultMessage(kind)
	}
	f := &Failure{kind: kind, message: message}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func NewNetwork(message string, opts ...Option) *Failure {
	return New(KindNetwork, message, opts...)
}

func NewTimeout(message string, opts ...Option) *Failure {
	return New(KindTimeout, message, opts...)
}

// NewServer builds a Server failure carrying the upstream status code.
func NewServer(statusCode int, message string, opts ...Option) *Failure {
	f := New(KindServer, message, opts...)
	f.statusCode = statusCode
	return f
}

// NewValidation builds a Validation failure with per-field messages.
func NewValidation(fieldErrors map[string][]string, message string, opts ...Option) *Failure {
	f := New(KindValidation, message, opts...)
	if len(fieldErrors) > 0 {
		f.fieldErrors = make(map[string][]string, len(fieldErrors))
		for k, v := range fieldErrors {
			f.fieldErrors[k] = append([]string(nil), v...)
		}
	}
	return f
}

func NewUnauthorized(message string, opts ...Option) *Failure {
	return New(KindUnauthorized, message, opts...)
}

func NewForbidden(message string, opts ...Option) *Failure {
	return New(KindForbidden, message, opts...)
}

func NewNotFound(message string, opts ...Option) *Failure {
	return New(KindNotFound, message, opts...)
}

func NewConflict(message string, opts ...Option) *Failure {
	return New(KindConflict, message, opts...)
}

// NewRateLimit builds a RateLimit failure. retryAfter <= 0 means the
// upstream gave no hint.
func NewRateLimit(retryAfter time.Duration, message string, opts ...Option) *Failure {
	f := New(KindRateLimit, message, opts...)
	if retryAfter > 0 {
		f.retryAfter = retryAfter
	}
	return f
}

func NewCache(message string, opts ...Option) *Failure {
	return New(KindCache, message, opts...)
}

func NewCircuitOpen(message string, opts ...Option) *Failure {
	return New(KindCircuitOpen, message, opts...)
}

// Unexpected wraps an arbitrary error as an Unexpected failure.
func Unexpected(err error, opts ...Option) *Failure {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return New(KindUnexpected, msg, append([]Option{WithCause(err)}, opts...)...)
}

// FromPanic converts a recovered panic value into an Unexpected failure with
// the current stack attached.
func FromPanic(p any) *Failure {
	var cause error
	switch v := p.(type) {
	case error:
		cause = v
	default:
		cause = fmt.Errorf("%v", v)
	}
	return New(KindUnexpected, "panic: "+cause.Error(),
		WithCause(cause),
		WithCode("panic"),
		WithStack(string(debug.Stack())),
	)
}

func (f *Failure) Kind() Kind { return f.kind }
func (f *Failure) Message() string { return f.message }
func (f *Failure) Code() string { return f.code }
func (f *Failure) StatusCode() int { return f.statusCode }
func (f *Failure) Stack() string { return f.stack }
func (f *Failure) Cause() error { return f.cause }
func (f *Failure) Unwrap() error { return f.cause }
func (f *Failure) HasStack() bool { return f.stack != "" }
func (f *Failure) IsKind(k Kind) bool { return f != nil && f.kind == k }

// RetryAfter returns the upstream retry hint of a RateLimit failure.
func (f *Failure) RetryAfter() (time.Duration, bool) {
	return f.retryAfter, f.retryAfter > 0
}

// Context returns a copy of the structured context.
func (f *Failure) Context() map[string]any {
	return maps.Clone(f.context)
}

// FieldErrors returns a copy of the per-field validation messages.
func (f *Failure) FieldErrors() map[string][]string {
	if f.fieldErrors == nil {
		return nil
	}
	out := make(map[string][]string, len(f.fieldErrors))
	for k, v := range f.fieldErrors {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Error implements error.
func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.kind.String())
	if f.kind == KindServer && f.statusCode != 0 {
		fmt.Fprintf(&b, "(%d)", f.statusCode)
	}
	b.WriteString(": ")
	b.WriteString(f.message)
	if f.cause != nil && f.cause.Error() != f.message {
		b.WriteString(": ")
		b.WriteString(f.cause.Error())
	}
	return b.String()
}

// Wrap returns a new failure of the same kind whose message is prefixed with
// prefix. The receiver is left untouched.
func (f *Failure) Wrap(prefix string) *Failure {
	c := f.clone()
	if prefix != "" {
		c.message = prefix + ": " + f.message
	}
	return c
}

// With returns a copy with extra options applied.
func (f *Failure) With(opts ...Option) *Failure {
	c := f.clone()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (f *Failure) clone() *Failure {
	c := *f
	c.context = maps.Clone(f.context)
	c.fieldErrors = f.FieldErrors()
	return &c
}

// As extracts a Failure from err's chain.
func As(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Is reports whether err carries a Failure of the given kind.
func Is(err error, kind Kind) bool {
	f, ok := As(err)
	return ok && f.kind == kind
}
