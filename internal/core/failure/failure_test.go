package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNew_DefaultMessage(t *testing.T) {
	for _, k := range AllKinds() {
		f := New(k, "")
		if f.Message() == "" {
			t.Errorf("kind %s: expected non-empty default message", k)
		}
		if f.Kind() != k {
			t.Errorf("expected kind %s, got %s", k, f.Kind())
		}
	}
}

func TestKind_StringIsUnique(t *testing.T) {
	seen := make(map[string]Kind)
	for _, k := range AllKinds() {
		s := k.String()
		if other, ok := seen[s]; ok {
			t.Errorf("kinds %d and %d share name %q", other, k, s)
		}
		seen[s] = k
	}
	if len(seen) != 12 {
		t.Errorf("expected 12 kinds, got %d", len(seen))
	}
}

func TestFailure_ImmutableWrap(t *testing.T) {
	orig := NewServer(503, "upstream down", WithContext("endpoint", "users"))
	wrapped := orig.Wrap("fetch user")

	if orig.Message() != "upstream down" {
		t.Errorf("original mutated: %q", orig.Message())
	}
	if wrapped.Message() != "fetch user: upstream down" {
		t.Errorf("unexpected wrapped message %q", wrapped.Message())
	}
	if wrapped.Kind() != KindServer || wrapped.StatusCode() != 503 {
		t.Errorf("wrap lost variant payload: %v", wrapped)
	}

	ctx := orig.Context()
	ctx["endpoint"] = "changed"
	if orig.Context()["endpoint"] != "users" {
		t.Error("Context() must return a copy")
	}
}

func TestFailure_ValidationFieldErrorsCopied(t *testing.T) {
	fields := map[string][]string{"email": {"required"}}
	f := NewValidation(fields, "bad input")
	fields["email"][0] = "mutated"

	want := map[string][]string{"email": {"required"}}
	if diff := cmp.Diff(want, f.FieldErrors()); diff != "" {
		t.Errorf("field errors mismatch (-want +got):\n%s", diff)
	}
}

func TestFailure_ErrorsAs(t *testing.T) {
	f := NewNotFound("user 42")
	err := fmt.Errorf("handler: %w", f)

	got, ok := As(err)
	if !ok || got != f {
		t.Fatalf("expected As to find failure, got %v", got)
	}
	if !Is(err, KindNotFound) {
		t.Error("expected Is(err, KindNotFound)")
	}
	if Is(err, KindConflict) {
		t.Error("unexpected kind match")
	}
}

func TestFailure_ErrorString(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	f := NewNetwork("remote unreachable", WithCause(cause))
	if !strings.Contains(f.Error(), "network: remote unreachable") {
		t.Errorf("unexpected Error(): %q", f.Error())
	}
	if !errors.Is(f, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
}

func TestRateLimit_RetryAfter(t *testing.T) {
	f := NewRateLimit(2*time.Second, "")
	if d, ok := f.RetryAfter(); !ok || d != 2*time.Second {
		t.Errorf("expected 2s retry-after, got %v %v", d, ok)
	}
	if _, ok := NewRateLimit(0, "").RetryAfter(); ok {
		t.Error("expected absent retry-after")
	}
}

func TestFromPanic(t *testing.T) {
	f := FromPanic("boom")
	if f.Kind() != KindUnexpected {
		t.Errorf("expected unexpected, got %s", f.Kind())
	}
	if !f.HasStack() {
		t.Error("expected stack to be captured")
	}
	if f.Code() != "panic" {
		t.Errorf("expected panic code, got %q", f.Code())
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		expect Kind
	}{
		{400, KindValidation},
		{401, KindUnauthorized},
		{403, KindForbidden},
		{404, KindNotFound},
		{409, KindConflict},
		{422, KindValidation},
		{429, KindRateLimit},
		{500, KindServer},
		{502, KindServer},
		{503, KindServer},
		{504, KindServer},
		{418, KindUnexpected},
	}

	for _, tt := range tests {
		f := FromStatus(tt.status, "")
		if f.Kind() != tt.expect {
			t.Errorf("FromStatus(%d) = %s, want %s", tt.status, f.Kind(), tt.expect)
		}
		if f.Message() == "" {
			t.Errorf("FromStatus(%d) has empty message", tt.status)
		}
	}

	if got := FromStatus(503, "").StatusCode(); got != 503 {
		t.Errorf("expected server status 503, got %d", got)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }
func (timeoutErr) Temporary() bool { return true }

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect Kind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"net timeout", timeoutErr{}, KindTimeout},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), KindNetwork},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("no route")}, KindNetwork},
		{"dns", &net.DNSError{Err: "no such host", Name: "x"}, KindNetwork},
		{"canceled", context.Canceled, KindUnexpected},
		{"plain", errors.New("weird"), KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromError(tt.err).Kind(); got != tt.expect {
				t.Errorf("FromError(%v) = %s, want %s", tt.err, got, tt.expect)
			}
		})
	}

	existing := NewConflict("dup")
	if FromError(fmt.Errorf("wrap: %w", existing)) != existing {
		t.Error("expected an existing failure to pass through unchanged")
	}
	if FromError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestIsCanceled(t *testing.T) {
	if !IsCanceled(FromError(context.Canceled)) {
		t.Error("expected canceled failure to be detected")
	}
	if IsCanceled(NewTimeout("")) {
		t.Error("timeout is not cancellation")
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range AllKinds() {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Errorf("ParseKind(%q) = %v/%v", k.String(), got, ok)
		}
	}
	if _, ok := ParseKind("bogus"); ok {
		t.Error("expected unknown name rejected")
	}
}
