// Package orchestrator composes the in-memory cache, a local store and a
// remote fetcher into one Result-returning read path:
//
//	cache -> local store -> fetcher (write-back) -> stale cache -> stale local
//
// Concurrent misses for the same key share one fetch.
package orchestrator

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/vietddude/resilience/internal/cache"
	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/result"
	"github.com/vietddude/resilience/internal/infra/storage"
)

// Source names the tier a value was served from.
type Source string

const (
	SourceCache      Source = "cache"
	SourceLocal      Source = "local"
	SourceRemote     Source = "remote"
	SourceStaleCache Source = "stale_cache"
	SourceStaleLocal Source = "stale_local"
	SourceFailure    Source = "failure"
)

// DefaultStaleKinds are the failure kinds for which a stale value is served
// instead of the failure. Client-input failures are never masked.
var DefaultStaleKinds = []failure.Kind{
	failure.KindNetwork,
	failure.KindTimeout,
	failure.KindServer,
	failure.KindCircuitOpen,
	failure.KindRateLimit,
}

// Fetcher loads a value from the remote source, typically through a
// breaker and retry wrapper.
type Fetcher[V any] func(ctx context.Context) result.Result[V]

// Observer receives orchestrator events, e.g. for metrics.
type Observer interface {
	ServedFrom(name string, source string)
	FetchCompleted(name string, duration time.Duration, kind string)
}

// Config configures an Orchestrator.
type Config struct {
	Name string
	// CacheTTL is used for cache writes; 0 applies the cache default.
	CacheTTL time.Duration
	// LocalTTL is used for local store writes; 0 stores without expiry.
	LocalTTL time.Duration
	// StaleKinds overrides DefaultStaleKinds when non-nil.
	StaleKinds []failure.Kind
	// ClassifyError turns local store errors into failures for logging.
	ClassifyError func(error) *failure.Failure

	Clock    clock.PassiveClock
	Logger   *slog.Logger
	Observer Observer
}

// Orchestrator implements the cache -> local -> remote fallback chain.
type Orchestrator[V any] struct {
	cfg   Config
	cache *cache.Store[string, V]
	local storage.LocalStore[V]
	group singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// New creates an orchestrator. local may be nil.
func New[V any](cfg Config, c *cache.Store[string, V], local storage.LocalStore[V]) *Orchestrator[V] {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.StaleKinds == nil {
		cfg.StaleKinds = DefaultStaleKinds
	}
	if cfg.ClassifyError == nil {
		cfg.ClassifyError = failure.FromError
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator[V]{
		cfg:     cfg,
		cache:   c,
		local:   local,
		flights: make(map[string]*flight),
	}
}

type fetchOptions struct {
	cacheTTL     time.Duration
	localTTL     time.Duration
	forceRefresh bool
}

// FetchOption customises a single GetOrFetch call.
type FetchOption func(*fetchOptions)

// WithTTL overrides the TTL used when writing the fetched value back.
func WithTTL(ttl time.Duration) FetchOption {
	return func(o *fetchOptions) {
		o.cacheTTL = ttl
		o.localTTL = ttl
	}
}

// ForceRefresh skips the fresh cache and local lookups. Stale fallbacks
// still apply if the fetch fails.
func ForceRefresh() FetchOption {
	return func(o *fetchOptions) { o.forceRefresh = true }
}

// GetOrFetch returns the value for key from the first tier that has a fresh
// copy, fetching and writing back on a miss. When the fetch fails with a
// stale-eligible kind, an expired copy is served instead; otherwise the
// fetch failure is returned unchanged.
func (o *Orchestrator[V]) GetOrFetch(ctx context.Context, key string, fetcher Fetcher[V], opts ...FetchOption) result.Result[V] {
	fo := fetchOptions{cacheTTL: o.cfg.CacheTTL, localTTL: o.cfg.LocalTTL}
	for _, opt := range opts {
		opt(&fo)
	}

	// Peek first: a fresh-path Get evicts an expired entry.
	staleCache, hasStaleCache := o.cache.GetStale(key)

	var staleLocal *storage.Record[V]
	if !fo.forceRefresh {
		if v, ok := o.cache.Get(key); ok {
			o.served(SourceCache)
			return result.Success(v)
		}

		rec, found := o.readLocal(ctx, key)
		if found {
			now := o.cfg.Clock.Now()
			if !rec.Expired(now) {
				o.cache.Set(key, rec.Value, cacheTTLFor(rec, now, fo.cacheTTL))
				o.served(SourceLocal)
				return result.Success(rec.Value)
			}
			staleLocal = &rec
		}
	}

	res := o.fetch(ctx, key, fetcher, fo)
	if res.IsSuccess() {
		o.served(SourceRemote)
		return res
	}

	f := res.Failure()
	if !o.servesStale(f) {
		o.served(SourceFailure)
		return res
	}

	if e, ok := o.cache.GetStale(key); ok {
		staleCache, hasStaleCache = e, true
	}
	if hasStaleCache {
		o.logStale(key, SourceStaleCache, f)
		o.served(SourceStaleCache)
		return result.Success(staleCache.Value)
	}
	if staleLocal == nil {
		if rec, found := o.readLocal(ctx, key); found {
			staleLocal = &rec
		}
	}
	if staleLocal != nil {
		o.logStale(key, SourceStaleLocal, f)
		o.served(SourceStaleLocal)
		return result.Success(staleLocal.Value)
	}

	o.served(SourceFailure)
	return res
}

// flight is the shared context of one in-progress fetch. It is detached
// from every caller and cancelled once the last waiter has left.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// fetch runs fetcher once per key across concurrent callers. A caller whose
// context ends stops waiting; the shared fetch keeps running for the others
// and is cancelled only when nobody is waiting any more.
func (o *Orchestrator[V]) fetch(ctx context.Context, key string, fetcher Fetcher[V], fo fetchOptions) result.Result[V] {
	fl := o.join(ctx, key)

	ch := o.group.DoChan(key, func() (any, error) {
		start := o.cfg.Clock.Now()
		res := invoke(fl.ctx, fetcher)
		o.fetchCompleted(o.cfg.Clock.Since(start), res.Failure())

		if v, ok := res.Value(); ok {
			o.writeBack(fl.ctx, key, v, fo)
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		o.leave(key, fl)
		return result.Fail[V](failure.FromError(ctx.Err()))
	case r := <-ch:
		o.leave(key, fl)
		return r.Val.(result.Result[V])
	}
}

func (o *Orchestrator[V]) join(ctx context.Context, key string) *flight {
	o.mu.Lock()
	defer o.mu.Unlock()

	fl, ok := o.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: fctx, cancel: cancel}
		o.flights[key] = fl
	}
	fl.waiters++
	return fl
}

func (o *Orchestrator[V]) leave(key string, fl *flight) {
	o.mu.Lock()
	defer o.mu.Unlock()

	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	delete(o.flights, key)
	// An abandoned fetch may still be running; later callers start afresh
	// instead of joining its cancelled context.
	o.group.Forget(key)
}

func invoke[V any](ctx context.Context, fetcher Fetcher[V]) (res result.Result[V]) {
	defer func() {
		if p := recover(); p != nil {
			res = result.Fail[V](failure.FromPanic(p))
		}
	}()
	return fetcher(ctx)
}

// writeBack populates both tiers. Errors are logged and never change the
// result.
func (o *Orchestrator[V]) writeBack(ctx context.Context, key string, v V, fo fetchOptions) {
	o.cache.Set(key, v, fo.cacheTTL)
	if o.local == nil {
		return
	}
	if err := o.local.Put(ctx, key, v, fo.localTTL); err != nil {
		f := o.cfg.ClassifyError(err)
		o.cfg.Logger.Warn("Failed to write back to local store",
			"orchestrator", o.cfg.Name,
			"key", key,
			"kind", f.Kind().String(),
			"error", err,
		)
	}
}

func (o *Orchestrator[V]) readLocal(ctx context.Context, key string) (storage.Record[V], bool) {
	if o.local == nil {
		return storage.Record[V]{}, false
	}
	rec, found, err := o.local.Get(ctx, key)
	if err != nil {
		f := o.cfg.ClassifyError(err)
		o.cfg.Logger.Warn("Local store read failed, treating as miss",
			"orchestrator", o.cfg.Name,
			"key", key,
			"kind", f.Kind().String(),
			"error", err,
		)
		return storage.Record[V]{}, false
	}
	return rec, found
}

// Invalidate removes key from the cache and the local store.
func (o *Orchestrator[V]) Invalidate(ctx context.Context, key string) error {
	o.cache.Invalidate(key)
	if o.local == nil {
		return nil
	}
	return o.local.Delete(ctx, key)
}

// Prime stores value in both tiers without fetching.
func (o *Orchestrator[V]) Prime(ctx context.Context, key string, value V) error {
	o.cache.Set(key, value, o.cfg.CacheTTL)
	if o.local == nil {
		return nil
	}
	return o.local.Put(ctx, key, value, o.cfg.LocalTTL)
}

// Cache exposes the underlying cache store, e.g. for stats.
func (o *Orchestrator[V]) Cache() *cache.Store[string, V] { return o.cache }

func (o *Orchestrator[V]) servesStale(f *failure.Failure) bool {
	return f != nil && !failure.IsCanceled(f) && slices.Contains(o.cfg.StaleKinds, f.Kind())
}

func (o *Orchestrator[V]) logStale(key string, source Source, f *failure.Failure) {
	o.cfg.Logger.Warn("Serving stale value",
		"orchestrator", o.cfg.Name,
		"key", key,
		"source", string(source),
		"kind", f.Kind().String(),
		"error", f,
	)
}

func (o *Orchestrator[V]) served(source Source) {
	if o.cfg.Observer != nil {
		o.cfg.Observer.ServedFrom(o.cfg.Name, string(source))
	}
}

func (o *Orchestrator[V]) fetchCompleted(d time.Duration, f *failure.Failure) {
	if o.cfg.Observer == nil {
		return
	}
	kind := "success"
	if f != nil {
		kind = f.Kind().String()
	}
	o.cfg.Observer.FetchCompleted(o.cfg.Name, d, kind)
}

// cacheTTLFor keeps a value promoted from the local store from outliving
// the local expiry.
func cacheTTLFor[V any](rec storage.Record[V], now time.Time, ttl time.Duration) time.Duration {
	if rec.ExpiresAt.IsZero() {
		return ttl
	}
	remaining := rec.ExpiresAt.Sub(now)
	if ttl <= 0 || remaining < ttl {
		return remaining
	}
	return ttl
}
