package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/result"
	"github.com/vietddude/resilience/internal/infra/errmap"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Config holds remote source configuration.
type Config struct {
	BaseURL string            `yaml:"base_url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// Stats holds request counters for a source.
type Stats struct {
	Name         string        `json:"name"`
	Requests     int           `json:"requests"`
	Successes    int           `json:"successes"`
	Failures     int           `json:"failures"`
	AvgLatency   time.Duration `json:"avg_latency"`
	LastFailure  string        `json:"last_failure,omitempty"`
	LastStatusAt time.Time     `json:"last_status_at"`
}

// HTTPSource fetches JSON documents from {base_url}/{key}.
type HTTPSource[V any] struct {
	name       string
	cfg        Config
	httpClient *http.Client
	clock      clock.PassiveClock

	mu           sync.RWMutex
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int
	lastFailure  string
	lastStatusAt time.Time
}

// NewHTTPSource creates a new HTTP-backed remote source.
func NewHTTPSource[V any](name string, cfg Config, clk clock.PassiveClock) *HTTPSource[V] {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &HTTPSource[V]{
		name: name,
		cfg:  cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		clock: clk,
	}
}

// Name returns the source name.
func (s *HTTPSource[V]) Name() string { return s.name }

// Fetch retrieves key. Transport errors and non-2xx responses are returned
// as classified failures.
func (s *HTTPSource[V]) Fetch(ctx context.Context, key string) result.Result[V] {
	start := s.clock.Now()
	res := s.fetch(ctx, key)
	s.record(s.clock.Since(start), res.Failure())
	return res
}

func (s *HTTPSource[V]) fetch(ctx context.Context, key string) result.Result[V] {
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return result.Fail[V](failure.New(failure.KindUnexpected, "create request", failure.WithCause(err)))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return result.Fail[V](errmap.FromError(err).With(failure.WithContext("url", endpoint)))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result.Fail[V](s.statusFailure(resp, endpoint))
	}

	var value V
	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		return result.Fail[V](failure.New(failure.KindUnexpected, "parse response",
			failure.WithCode("decode"),
			failure.WithCause(err),
			failure.WithContext("url", endpoint),
		))
	}
	return result.Success(value)
}

// errorBody is the error document shape the source understands.
type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func (s *HTTPSource[V]) statusFailure(resp *http.Response, endpoint string) *failure.Failure {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var eb errorBody
	if json.Unmarshal(body, &eb) != nil || eb.Message == "" {
		eb.Message = strings.TrimSpace(string(body))
	}
	if eb.Message == "" {
		eb.Message = fmt.Sprintf("http %d", resp.StatusCode)
	}

	f := failure.FromClassified(failure.ClassifiedError{
		Category:    failure.CategoryStatus,
		StatusCode:  resp.StatusCode,
		RetryAfter:  ParseRetryAfter(resp.Header.Get("Retry-After"), s.clock.Now()),
		FieldErrors: eb.Errors,
		Message:     eb.Message,
	})
	return f.With(failure.WithContext("url", endpoint))
}

const maxRetryAfterSeconds = math.MaxInt64 / int64(time.Second)

// ParseRetryAfter reads a Retry-After header given as delta-seconds or an
// HTTP date. It returns 0 when absent or unparsable.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	// Out-of-range input parses to the nearest int64 bound.
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		// Clamp so the multiplication cannot overflow into a negative delay.
		secs = min(max(secs, 0), maxRetryAfterSeconds)
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(at.Sub(now), 0)
	}
	return 0
}

func (s *HTTPSource[V]) record(latency time.Duration, f *failure.Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestCount++
	s.totalLatency += latency
	s.lastStatusAt = s.clock.Now()
	if f == nil {
		s.successCount++
		return
	}
	s.failureCount++
	s.lastFailure = f.Kind().String()
}

// Stats returns request counters.
func (s *HTTPSource[V]) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Name:         s.name,
		Requests:     s.requestCount,
		Successes:    s.successCount,
		Failures:     s.failureCount,
		LastFailure:  s.lastFailure,
		LastStatusAt: s.lastStatusAt,
	}
	if s.requestCount > 0 {
		st.AvgLatency = s.totalLatency / time.Duration(s.requestCount)
	}
	return st
}
