package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyKey is returned when an operation is attempted with an empty key.
	ErrEmptyKey = errors.New("empty key")
)

// Record is a value held by a local store. A zero ExpiresAt means the record
// never expires.
type Record[V any] struct {
	Value     V
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at now.
func (r Record[V]) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// LocalStore is the durable tier consulted between the in-memory cache and
// the remote source. Expired records are still returned by Get so that
// callers can serve them as stale fallbacks.
type LocalStore[V any] interface {
	// Get retrieves a record; found is false when the key does not exist
	Get(ctx context.Context, key string) (rec Record[V], found bool, err error)

	// Put stores a value; ttl <= 0 stores without expiry
	Put(ctx context.Context, key string, value V, ttl time.Duration) error

	// Delete removes a key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// ExpiryPruner is implemented by stores that need explicit cleanup of
// records whose expiry lies before a cutoff.
type ExpiryPruner interface {
	PruneExpired(ctx context.Context, before time.Time) (int64, error)
}

// HealthChecker is implemented by stores backed by a remote server.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// envelope is the serialized form used by byte-oriented backends.
type envelope struct {
	Value     json.RawMessage `json:"value"`
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// Encode serializes a record for byte-oriented backends.
func Encode[V any](rec Record[V]) ([]byte, error) {
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	env := envelope{Value: value, StoredAt: rec.StoredAt}
	if !rec.ExpiresAt.IsZero() {
		exp := rec.ExpiresAt
		env.ExpiresAt = &exp
	}
	return json.Marshal(env)
}

// Decode is the inverse of Encode.
func Decode[V any](data []byte) (Record[V], error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Record[V]{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	rec := Record[V]{StoredAt: env.StoredAt}
	if env.ExpiresAt != nil {
		rec.ExpiresAt = *env.ExpiresAt
	}
	if err := json.Unmarshal(env.Value, &rec.Value); err != nil {
		return Record[V]{}, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return rec, nil
}

// NewRecord builds a record stored at now with the given ttl.
func NewRecord[V any](value V, now time.Time, ttl time.Duration) Record[V] {
	rec := Record[V]{Value: value, StoredAt: now}
	if ttl > 0 {
		rec.ExpiresAt = now.Add(ttl)
	}
	return rec
}
