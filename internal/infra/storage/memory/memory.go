package memory

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/vietddude/resilience/internal/infra/storage"
)

// Store is an in-process LocalStore. It is the default tier when no
// database or redis is configured.
type Store[V any] struct {
	records map[string]storage.Record[V]
	clock   clock.PassiveClock
	mu      sync.RWMutex
}

func NewStore[V any](clk clock.PassiveClock) *Store[V] {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Store[V]{
		records: make(map[string]storage.Record[V]),
		clock:   clk,
	}
}

func (s *Store[V]) Get(ctx context.Context, key string) (storage.Record[V], bool, error) {
	if key == "" {
		return storage.Record[V]{}, false, storage.ErrEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok, nil
}

func (s *Store[V]) Put(ctx context.Context, key string, value V, ttl time.Duration) error {
	if key == "" {
		return storage.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = storage.NewRecord(value, s.clock.Now(), ttl)
	return nil
}

func (s *Store[V]) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// PruneExpired removes records that expired before the cutoff.
func (s *Store[V]) PruneExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, rec := range s.records {
		if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(before) {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
