package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/vietddude/resilience/internal/infra/storage"
)

const (
	getEntryQuery = `
		SELECT value, stored_at, expires_at
		FROM kv_entries
		WHERE namespace = $1 AND key = $2`

	upsertEntryQuery = `
		INSERT INTO kv_entries (namespace, key, value, stored_at, expires_at)
		VALUES (:namespace, :key, :value, :stored_at, :expires_at)
		ON CONFLICT (namespace, key) DO UPDATE
		SET value = EXCLUDED.value,
		    stored_at = EXCLUDED.stored_at,
		    expires_at = EXCLUDED.expires_at`

	deleteEntryQuery = `DELETE FROM kv_entries WHERE namespace = $1 AND key = $2`

	pruneEntriesQuery = `
		DELETE FROM kv_entries
		WHERE namespace = $1 AND expires_at IS NOT NULL AND expires_at < $2`
)

type kvRow struct {
	Namespace string       `db:"namespace"`
	Key       string       `db:"key"`
	Value     []byte       `db:"value"`
	StoredAt  time.Time    `db:"stored_at"`
	ExpiresAt sql.NullTime `db:"expires_at"`
}

// KVRepo implements storage.LocalStore using PostgreSQL. Several repos can
// share the kv_entries table under different namespaces.
type KVRepo[V any] struct {
	db        *DB
	namespace string
	clock     clock.PassiveClock
}

// NewKVRepo creates a new PostgreSQL key/value repository.
func NewKVRepo[V any](db *DB, namespace string, clk clock.PassiveClock) *KVRepo[V] {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &KVRepo[V]{db: db, namespace: namespace, clock: clk}
}

// Get retrieves a record by key.
func (r *KVRepo[V]) Get(ctx context.Context, key string) (storage.Record[V], bool, error) {
	if key == "" {
		return storage.Record[V]{}, false, storage.ErrEmptyKey
	}

	var row kvRow
	err := r.db.GetContext(ctx, &row, getEntryQuery, r.namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Record[V]{}, false, nil
	}
	if err != nil {
		return storage.Record[V]{}, false, fmt.Errorf("failed to get entry: %w", err)
	}

	rec := storage.Record[V]{StoredAt: row.StoredAt}
	if row.ExpiresAt.Valid {
		rec.ExpiresAt = row.ExpiresAt.Time
	}
	if err := json.Unmarshal(row.Value, &rec.Value); err != nil {
		return storage.Record[V]{}, false, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return rec, true, nil
}

// Put upserts a record.
func (r *KVRepo[V]) Put(ctx context.Context, key string, value V, ttl time.Duration) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	rec := storage.NewRecord(value, r.clock.Now(), ttl)
	row := kvRow{
		Namespace: r.namespace,
		Key:       key,
		Value:     data,
		StoredAt:  rec.StoredAt,
		ExpiresAt: sql.NullTime{Time: rec.ExpiresAt, Valid: !rec.ExpiresAt.IsZero()},
	}
	if _, err := r.db.NamedExecContext(ctx, upsertEntryQuery, row); err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

// Delete removes a record.
func (r *KVRepo[V]) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, deleteEntryQuery, r.namespace, key); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// PruneExpired deletes records that expired before the cutoff.
func (r *KVRepo[V]) PruneExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, pruneEntriesQuery, r.namespace, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned entries: %w", err)
	}
	return n, nil
}

// Health checks the underlying connection.
func (r *KVRepo[V]) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}
