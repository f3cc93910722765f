package failure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Category is the transport-agnostic classification a collaborator assigns
// to a raw error before handing it to the core.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryConnection
	CategoryTimeout
	CategoryCanceled
	CategoryStatus
)

// ClassifiedError is the narrow input the mapper accepts. Transport adapters
// fill it in so their own error types never cross into the core.
type ClassifiedError struct {
	Category    Category
	StatusCode  int
	RetryAfter  time.Duration
	FieldErrors map[string][]string
	Message     string
	Cause       error
}

// CodeCanceled marks failures produced by context cancellation.
const CodeCanceled = "canceled"

// FromClassified maps a classified error onto the failure taxonomy.
func FromClassified(c ClassifiedError) *Failure {
	opts := []Option{}
	if c.Cause != nil {
		opts = append(opts, WithCause(c.Cause))
	}
	msg := c.Message
	if msg == "" && c.Cause != nil {
		msg = c.Cause.Error()
	}

	switch c.Category {
	case CategoryConnection:
		return NewNetwork(msg, opts...)
	case CategoryTimeout:
		return NewTimeout(msg, opts...)
	case CategoryCanceled:
		return New(KindUnexpected, msg, append(opts, WithCode(CodeCanceled))...)
	case CategoryStatus:
		return fromStatus(c, msg, opts)
	default:
		return New(KindUnexpected, msg, opts...)
	}
}

func fromStatus(c ClassifiedError, msg string, opts []Option) *Failure {
	opts = append(opts, WithCode(fmt.Sprintf("http_%d", c.StatusCode)))
	switch {
	case c.StatusCode == http.StatusUnauthorized:
		return NewUnauthorized(msg, opts...)
	case c.StatusCode == http.StatusForbidden:
		return NewForbidden(msg, opts...)
	case c.StatusCode == http.StatusNotFound:
		return NewNotFound(msg, opts...)
	case c.StatusCode == http.StatusConflict:
		return NewConflict(msg, opts...)
	case c.StatusCode == http.StatusBadRequest, c.StatusCode == http.StatusUnprocessableEntity:
		return NewValidation(c.FieldErrors, msg, opts...)
	case c.StatusCode == http.StatusTooManyRequests:
		return NewRateLimit(c.RetryAfter, msg, opts...)
	case c.StatusCode >= 500:
		return NewServer(c.StatusCode, msg, opts...)
	default:
		return New(KindUnexpected, msg, opts...)
	}
}

// FromStatus maps an HTTP status code to a Failure.
func FromStatus(statusCode int, message string) *Failure {
	return FromClassified(ClassifiedError{
		Category:   CategoryStatus,
		StatusCode: statusCode,
		Message:    message,
	})
}

// Classify assigns a category to errors produced by the standard library
// (context, net, syscall, io). Unknown errors map to CategoryUnknown.
func Classify(err error) ClassifiedError {
	c := ClassifiedError{Cause: err}
	if err == nil {
		return c
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		c.Category = CategoryCanceled
	case errors.Is(err, context.DeadlineExceeded):
		c.Category = CategoryTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		c.Category = CategoryTimeout
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		c.Category = CategoryConnection
	default:
		var opErr *net.OpError
		var dnsErr *net.DNSError
		if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
			c.Category = CategoryConnection
		}
	}
	return c
}

// FromError converts any error into a Failure. An error that already is (or
// wraps) a Failure is returned unchanged.
func FromError(err error) *Failure {
	if err == nil {
		return nil
	}
	if f, ok := As(err); ok {
		return f
	}
	return FromClassified(Classify(err))
}

// IsCanceled reports whether err stems from context cancellation.
func IsCanceled(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	f, ok := As(err)
	return ok && f.code == CodeCanceled
}
