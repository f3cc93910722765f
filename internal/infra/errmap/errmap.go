// Package errmap translates transport and driver errors into failures.
//
// It keeps gRPC status codes and Postgres driver errors out of the core
// failure package: adapters classify here, and only *failure.Failure crosses
// into the resilience layer.
package errmap

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/resilience/internal/core/failure"
)

// Postgres SQLSTATE codes with a dedicated mapping.
const (
	pgUniqueViolation   = "23505"
	pgQueryCanceled     = "57014"
	pgConnectionClass   = "08"
	pgInsufficientClass = "53"
)

// FromError classifies err, trying gRPC status and Postgres driver errors
// before falling back to the standard library classification.
func FromError(err error) *failure.Failure {
	if err == nil {
		return nil
	}
	if f, ok := failure.As(err); ok {
		return f
	}
	if f, ok := FromGRPC(err); ok {
		return f
	}
	if f, ok := FromPostgres(err); ok {
		return f
	}
	return failure.FromError(err)
}

// FromGRPC maps an error carrying a gRPC status. ok is false when err has no
// status.
func FromGRPC(err error) (*failure.Failure, bool) {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return nil, false
	}

	opt := failure.WithCode("grpc_" + st.Code().String())
	msg := st.Message()
	switch st.Code() {
	case codes.Unavailable:
		return failure.NewNetwork(msg, opt, failure.WithCause(err)), true
	case codes.DeadlineExceeded:
		return failure.NewTimeout(msg, opt, failure.WithCause(err)), true
	case codes.Canceled:
		return failure.FromClassified(failure.ClassifiedError{
			Category: failure.CategoryCanceled,
			Message:  msg,
			Cause:    err,
		}), true
	case codes.Unauthenticated:
		return failure.NewUnauthorized(msg, opt, failure.WithCause(err)), true
	case codes.PermissionDenied:
		return failure.NewForbidden(msg, opt, failure.WithCause(err)), true
	case codes.NotFound:
		return failure.NewNotFound(msg, opt, failure.WithCause(err)), true
	case codes.AlreadyExists, codes.Aborted:
		return failure.NewConflict(msg, opt, failure.WithCause(err)), true
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return failure.NewValidation(nil, msg, opt, failure.WithCause(err)), true
	case codes.ResourceExhausted:
		return failure.NewRateLimit(0, msg, opt, failure.WithCause(err)), true
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unimplemented:
		return failure.NewServer(http.StatusInternalServerError, msg, opt, failure.WithCause(err)), true
	default:
		return failure.New(failure.KindUnexpected, msg, opt, failure.WithCause(err)), true
	}
}

// FromPostgres maps pgx and lib/pq errors by SQLSTATE. ok is false for
// errors from neither driver.
func FromPostgres(err error) (*failure.Failure, bool) {
	var sqlState, msg string

	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		sqlState, msg = pgErr.Code, pgErr.Message
	case errors.As(err, &pqErr):
		sqlState, msg = string(pqErr.Code), pqErr.Message
	default:
		return nil, false
	}

	opt := failure.WithCode("pg_" + sqlState)
	switch {
	case sqlState == pgUniqueViolation:
		return failure.NewConflict(msg, opt, failure.WithCause(err)), true
	case sqlState == pgQueryCanceled:
		return failure.NewTimeout(msg, opt, failure.WithCause(err)), true
	case sqlClass(sqlState) == pgConnectionClass:
		return failure.NewNetwork(msg, opt, failure.WithCause(err)), true
	case sqlClass(sqlState) == pgInsufficientClass:
		return failure.NewServer(http.StatusServiceUnavailable, msg, opt, failure.WithCause(err)), true
	default:
		return failure.New(failure.KindUnexpected, msg, opt, failure.WithCause(err)), true
	}
}

func sqlClass(code string) string {
	if len(code) < 2 {
		return ""
	}
	return code[:2]
}
