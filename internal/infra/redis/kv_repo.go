package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"

	"github.com/vietddude/resilience/internal/infra/storage"
)

// KVRepo implements storage.LocalStore using Redis. Records are stored as
// JSON envelopes; Redis key expiry handles cleanup, so no pruner is needed.
type KVRepo[V any] struct {
	rdb            *redis.Client
	namespace      string
	staleRetention time.Duration
	clock          clock.PassiveClock
}

// NewKVRepo creates a new Redis-backed key/value repository.
func NewKVRepo[V any](client *Client, namespace string, staleRetention time.Duration, clk clock.PassiveClock) *KVRepo[V] {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &KVRepo[V]{
		rdb:            client.rdb,
		namespace:      namespace,
		staleRetention: staleRetention,
		clock:          clk,
	}
}

// Key helpers
func (r *KVRepo[V]) entryKey(key string) string {
	return fmt.Sprintf("kv:%s:%s", r.namespace, key)
}

// Get retrieves a record by key.
func (r *KVRepo[V]) Get(ctx context.Context, key string) (storage.Record[V], bool, error) {
	if key == "" {
		return storage.Record[V]{}, false, storage.ErrEmptyKey
	}

	data, err := r.rdb.Get(ctx, r.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return storage.Record[V]{}, false, nil
	}
	if err != nil {
		return storage.Record[V]{}, false, fmt.Errorf("failed to get entry: %w", err)
	}

	rec, err := storage.Decode[V](data)
	if err != nil {
		return storage.Record[V]{}, false, err
	}
	return rec, true, nil
}

// Put stores a record. The Redis TTL outlives the logical expiry by the
// stale retention window.
func (r *KVRepo[V]) Put(ctx context.Context, key string, value V, ttl time.Duration) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	data, err := storage.Encode(storage.NewRecord(value, r.clock.Now(), ttl))
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.entryKey(key), data, keyTTL(ttl, r.staleRetention)).Err(); err != nil {
		return fmt.Errorf("failed to set entry: %w", err)
	}
	return nil
}

// Delete removes a record.
func (r *KVRepo[V]) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.entryKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// Health pings the server.
func (r *KVRepo[V]) Health(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// keyTTL returns the Redis expiration for a record; 0 keeps the key forever.
func keyTTL(ttl, staleRetention time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl + max(staleRetention, 0)
}
