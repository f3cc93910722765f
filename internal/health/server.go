package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/result"
)

// DataReader serves keys through the resilient read path.
type DataReader interface {
	Get(ctx context.Context, key string) result.Result[json.RawMessage]
}

// Server provides HTTP endpoints for health monitoring and data reads.
type Server struct {
	monitor *Monitor
	reader  DataReader
	server  *http.Server
}

// NewServer creates a new health server. reader may be nil, in which case
// the data endpoint is not mounted.
func NewServer(monitor *Monitor, reader DataReader, gatherer prometheus.Gatherer, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		reader:  reader,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if reader != nil {
		mux.HandleFunc("GET /v1/data/{key}", s.handleData)
	}

	return s
}

// Handler returns the routed handler, e.g. for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

// errorResponse is the body returned for failed reads.
type errorResponse struct {
	Kind        string              `json:"kind"`
	Message     string              `json:"message"`
	Code        string              `json:"code,omitempty"`
	FieldErrors map[string][]string `json:"field_errors,omitempty"`
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	res := s.reader.Get(r.Context(), r.PathValue("key"))

	result.Fold(res,
		func(f *failure.Failure) struct{} {
			if d, ok := f.RetryAfter(); ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(d.Seconds())))
			}
			writeJSON(w, StatusFor(f.Kind()), errorResponse{
				Kind:        f.Kind().String(),
				Message:     f.Message(),
				Code:        f.Code(),
				FieldErrors: f.FieldErrors(),
			})
			return struct{}{}
		},
		func(v json.RawMessage) struct{} {
			writeJSON(w, http.StatusOK, v)
			return struct{}{}
		},
	)
}

// StatusFor maps a failure kind to the HTTP status returned to clients.
func StatusFor(k failure.Kind) int {
	switch k {
	case failure.KindNetwork, failure.KindServer:
		return http.StatusBadGateway
	case failure.KindTimeout:
		return http.StatusGatewayTimeout
	case failure.KindValidation:
		return http.StatusBadRequest
	case failure.KindUnauthorized:
		return http.StatusUnauthorized
	case failure.KindForbidden:
		return http.StatusForbidden
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindConflict:
		return http.StatusConflict
	case failure.KindRateLimit:
		return http.StatusTooManyRequests
	case failure.KindCircuitOpen:
		return http.StatusServiceUnavailable
	case failure.KindCache, failure.KindUnexpected:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
