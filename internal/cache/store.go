// Package cache provides a generic in-memory key/value store with per-entry
// TTL and optional LRU bounding.
package cache

import (
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"k8s.io/utils/clock"
)

// NoExpiration stores an entry that never expires, regardless of the
// store's default TTL.
const NoExpiration time.Duration = -1

// Eviction reasons reported to the Observer.
const (
	ReasonCapacity = "capacity"
	ReasonExpired  = "expired"
)

// Entry is a cached value with its timestamps. A zero ExpiresAt means the
// entry never expires.
type Entry[V any] struct {
	Value     V
	CachedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry[V]) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Observer receives cache events, e.g. for metrics.
type Observer interface {
	CacheHit(name string)
	CacheMiss(name string)
	CacheEvicted(name, reason string)
}

// Config configures a Store.
type Config struct {
	Name string
	// MaxSize bounds the number of entries. Zero means unbounded.
	MaxSize int
	// DefaultTTL applies when Set is called with ttl 0. Zero means no expiry.
	DefaultTTL time.Duration
	Clock      clock.Clock
	Observer   Observer
}

// Stats holds cache counters.
type Stats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Size      int     `json:"size"`
	HitRate   float64 `json:"hit_rate"`
}

// Store is a TTL + LRU cache. It is safe for concurrent use.
type Store[K comparable, V any] struct {
	cfg Config

	mu        sync.Mutex
	lru       *simplelru.LRU[K, Entry[V]]
	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a store.
func New[K comparable, V any](cfg Config) *Store[K, V] {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	size := cfg.MaxSize
	if size <= 0 {
		size = math.MaxInt
	}
	// NewLRU only fails for a non-positive size.
	lru, _ := simplelru.NewLRU[K, Entry[V]](size, nil)
	return &Store[K, V]{cfg: cfg, lru: lru}
}

// Get returns a fresh entry and marks it recently used. An expired entry is
// removed and reported as a miss.
func (s *Store[K, V]) Get(key K) (V, bool) {
	e, ok := s.GetEntry(key)
	return e.Value, ok
}

// GetEntry is Get returning the timestamps as well.
func (s *Store[K, V]) GetEntry(key K) (Entry[V], bool) {
	s.mu.Lock()
	e, ok := s.lru.Get(key)
	expired := ok && e.Expired(s.cfg.Clock.Now())
	if expired {
		s.lru.Remove(key)
		s.evictions++
	}
	if ok && !expired {
		s.hits++
	} else {
		s.misses++
	}
	s.mu.Unlock()

	if expired {
		s.observeEviction(ReasonExpired, 1)
	}
	if ok && !expired {
		s.observe(Observer.CacheHit)
		return e, true
	}
	s.observe(Observer.CacheMiss)
	return Entry[V]{}, false
}

// GetStale returns the entry regardless of expiry, without evicting it or
// touching recency or counters.
func (s *Store[K, V]) GetStale(key K) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Peek(key)
}

// Set stores value under key. A ttl of 0 applies the default TTL; a
// negative ttl stores without expiry.
func (s *Store[K, V]) Set(key K, value V, ttl time.Duration) {
	now := s.cfg.Clock.Now()
	if ttl == 0 {
		ttl = s.cfg.DefaultTTL
	}
	e := Entry[V]{Value: value, CachedAt: now}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	evicted := s.lru.Add(key, e)
	if evicted {
		s.evictions++
	}
	s.mu.Unlock()

	if evicted {
		s.observeEviction(ReasonCapacity, 1)
	}
}

// Invalidate removes key. It reports whether the key was present.
func (s *Store[K, V]) Invalidate(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Remove(key)
}

// InvalidateAll removes every entry. Counters are kept.
func (s *Store[K, V]) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Purge()
}

// InvalidateExpired removes every expired entry and returns how many were
// removed.
func (s *Store[K, V]) InvalidateExpired() int {
	now := s.cfg.Clock.Now()

	s.mu.Lock()
	removed := 0
	for _, key := range s.lru.Keys() {
		if e, ok := s.lru.Peek(key); ok && e.Expired(now) {
			s.lru.Remove(key)
			removed++
		}
	}
	s.evictions += uint64(removed)
	s.mu.Unlock()

	s.observeEviction(ReasonExpired, removed)
	return removed
}

// Contains reports whether key holds a fresh entry. It does not update
// recency or counters.
func (s *Store[K, V]) Contains(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lru.Peek(key)
	return ok && !e.Expired(s.cfg.Clock.Now())
}

// Len returns the number of stored entries, expired ones included.
func (s *Store[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Stats returns a snapshot of the counters.
func (s *Store[K, V]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Size:      s.lru.Len(),
	}
	if total := s.hits + s.misses; total > 0 {
		st.HitRate = float64(s.hits) / float64(total)
	}
	return st
}

// Name returns the store name.
func (s *Store[K, V]) Name() string { return s.cfg.Name }

func (s *Store[K, V]) observe(fn func(Observer, string)) {
	if s.cfg.Observer != nil {
		fn(s.cfg.Observer, s.cfg.Name)
	}
}

func (s *Store[K, V]) observeEviction(reason string, n int) {
	if s.cfg.Observer == nil {
		return
	}
	for range n {
		s.cfg.Observer.CacheEvicted(s.cfg.Name, reason)
	}
}
