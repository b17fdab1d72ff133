package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/volcanowatch/volcano-risk/internal/metrics"
)

// Kind names an endpoint family. Each kind has its own TTL.
type Kind string

const (
	KindSearch     Kind = "search"
	KindIndicators Kind = "indicators"
	KindEvents     Kind = "events"
	KindRiskMap    Kind = "riskmap"
	KindCatalog    Kind = "catalog"
)

// DefaultTTLs are used for any kind missing from Options.TTLs.
var DefaultTTLs = map[Kind]time.Duration{
	KindSearch:     5 * time.Minute,
	KindIndicators: 2 * time.Minute,
	KindEvents:     2 * time.Minute,
	KindRiskMap:    2 * time.Minute,
	KindCatalog:    10 * time.Minute,
}

// FetchFunc loads the value for key on a miss.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Options configures a Cache.
type Options struct {
	TTLs       map[Kind]time.Duration
	MaxEntries int
	Now        func() time.Time
}

type entryKey[K comparable] struct {
	kind Kind
	key  K
}

type entry[V any] struct {
	value     V
	fetchedAt time.Time
	lastUsed  atomic.Int64
}

// Cache memoizes fetched values per (kind, key) under a fixed TTL per kind.
// Failed fetches are never stored and concurrent misses for one key share a fetch.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	data    map[entryKey[K]]*entry[V]
	ttls    map[Kind]time.Duration
	max     int
	now     func() time.Time
	flights singleflight.Group
}

// New creates a cache with the given options.
func New[K comparable, V any](opts Options) *Cache[K, V] {
	ttls := make(map[Kind]time.Duration, len(DefaultTTLs))
	for kind, ttl := range DefaultTTLs {
		ttls[kind] = ttl
	}
	for kind, ttl := range opts.TTLs {
		if ttl > 0 {
			ttls[kind] = ttl
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[K, V]{
		data: make(map[entryKey[K]]*entry[V]),
		ttls: ttls,
		max:  opts.MaxEntries,
		now:  now,
	}
}

// Get returns the fresh value for (kind, key), if any.
func (c *Cache[K, V]) Get(kind Kind, key K) (V, bool) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.data[entryKey[K]{kind: kind, key: key}]
	c.mu.RUnlock()
	if !ok || !c.fresh(kind, e, now) {
		var zero V
		return zero, false
	}
	e.lastUsed.Store(now.UnixNano())
	return e.value, true
}

// GetOrFetch serves (kind, key) from the cache while fresh, otherwise calls fetch once and
// stores a successful result. Concurrent callers for the same (kind, key) share one fetch,
// run under the first caller's context; every waiter still returns when its own ctx is done.
func (c *Cache[K, V]) GetOrFetch(ctx context.Context, kind Kind, key K, fetch FetchFunc[K, V]) (V, error) {
	var zero V
	for {
		if v, ok := c.Get(kind, key); ok {
			metrics.ObserveCacheLookup(string(kind), metrics.CacheHit)
			return v, nil
		}

		flightKey := string(kind) + "\x00" + fmt.Sprint(key)
		ch := c.flights.DoChan(flightKey, func() (interface{}, error) {
			if v, ok := c.Get(kind, key); ok {
				return v, nil
			}
			metrics.ObserveCacheLookup(string(kind), metrics.CacheMiss)
			v, err := fetch(ctx, key)
			if err != nil {
				if ctx.Err() != nil {
					return nil, &abandonedFetch{err: err}
				}
				return nil, err
			}
			c.Set(kind, key, v)
			return v, nil
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if res.Shared {
				metrics.ObserveCacheLookup(string(kind), metrics.CacheCoalesced)
			}
			if res.Err == nil {
				return res.Val.(V), nil
			}
			// The shared fetch died with another caller's context; ours is still live.
			var abandoned *abandonedFetch
			if res.Shared && ctx.Err() == nil && errors.As(res.Err, &abandoned) {
				continue
			}
			return zero, res.Err
		}
	}
}

// abandonedFetch marks a fetch that failed after the context it ran under ended.
// A deadline set by the fetch itself does not count.
type abandonedFetch struct {
	err error
}

func (e *abandonedFetch) Error() string { return e.err.Error() }
func (e *abandonedFetch) Unwrap() error { return e.err }

// Set stores value under (kind, key), replacing any previous entry.
func (c *Cache[K, V]) Set(kind Kind, key K, value V) {
	now := c.now()
	e := &entry[V]{value: value, fetchedAt: now}
	e.lastUsed.Store(now.UnixNano())

	c.mu.Lock()
	defer c.mu.Unlock()
	ek := entryKey[K]{kind: kind, key: key}
	c.data[ek] = e
	if c.max > 0 && len(c.data) > c.max {
		c.evictLocked(ek, now)
	}
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *Cache[K, V]) fresh(kind Kind, e *entry[V], now time.Time) bool {
	return now.Sub(e.fetchedAt) < c.ttls[kind]
}

// evictLocked drops stale entries, then least-recently-used ones until the bound holds.
// keep is the entry just stored and is never a candidate.
func (c *Cache[K, V]) evictLocked(keep entryKey[K], now time.Time) {
	for k, e := range c.data {
		if k != keep && !c.fresh(k.kind, e, now) {
			delete(c.data, k)
		}
	}
	for len(c.data) > c.max {
		var (
			oldestKey entryKey[K]
			oldest    int64
			found     bool
		)
		for k, e := range c.data {
			if k == keep {
				continue
			}
			used := e.lastUsed.Load()
			if !found || used < oldest {
				oldestKey, oldest, found = k, used, true
			}
		}
		if !found {
			return
		}
		delete(c.data, oldestKey)
	}
}
