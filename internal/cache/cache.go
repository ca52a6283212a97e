// Package cache memoizes upstream fetches for a freshness window.
//
// Only successful results are stored. A failed fetch leaves no trace, so the
// next call for the same key goes upstream again.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Forever marks a value that never goes stale (e.g. the workspace id).
const Forever time.Duration = -1

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Key is the full identity of a call: the adapter name plus every argument.
type Key struct {
	Name string
	Args []string
}

func NewKey(name string, args ...string) Key {
	return Key{Name: name, Args: args}
}

func (k Key) String() string {
	quoted := make([]string, len(k.Args))
	for i, a := range k.Args {
		quoted[i] = strconv.Quote(a)
	}
	return k.Name + "(" + strings.Join(quoted, ",") + ")"
}

// Backend persists entries across restarts. Values are JSON.
type Backend interface {
	LoadEntry(key string) (value []byte, fetchedAt time.Time, ok bool, err error)
	SaveEntry(key string, value []byte, fetchedAt time.Time) error
	DeleteEntry(key string) error
	ClearEntries() error
}

type Stats struct {
	Hits     int
	Misses   int
	Failures int
}

type entry struct {
	value     any
	fetchedAt time.Time
}

type Cache struct {
	clock   Clock
	backend Backend

	mu      sync.Mutex
	entries map[string]entry
	stats   Stats

	group singleflight.Group
}

type Option func(*Cache)

func WithClock(c Clock) Option {
	return func(cache *Cache) { cache.clock = c }
}

func WithBackend(b Backend) Option {
	return func(cache *Cache) { cache.backend = b }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		clock:   systemClock{},
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func fresh(now, fetchedAt time.Time, ttl time.Duration) bool {
	if ttl < 0 {
		return true
	}
	return now.Sub(fetchedAt) <= ttl
}

// Fetch returns the cached value for key if it is younger than ttl. Otherwise
// it calls fn, stores a successful result and returns it. Errors from fn are
// returned unchanged and never stored. Concurrent calls for the same key share
// one call to fn. That call runs detached from any single caller's
// cancellation; each caller stops waiting when its own ctx is done.
func Fetch[T any](ctx context.Context, c *Cache, key Key, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	k := key.String()
	if v, ok := lookup[T](c, k, ttl, true); ok {
		return v, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k, func() (any, error) {
		// Another caller may have filled the key while we waited.
		if v, ok := lookup[T](c, k, ttl, false); ok {
			return v, nil
		}
		if v, ok := loadBackend[T](c, k, ttl); ok {
			return v, nil
		}

		v, err := fn(shared)
		if err != nil {
			c.mu.Lock()
			c.stats.Failures++
			c.mu.Unlock()
			return nil, err
		}

		now := c.clock.Now()
		c.mu.Lock()
		c.entries[k] = entry{value: v, fetchedAt: now}
		c.stats.Misses++
		c.mu.Unlock()
		c.saveBackend(k, v, now)
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

func lookup[T any](c *Cache, k string, ttl time.Duration, countHit bool) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok || !fresh(c.clock.Now(), e.fetchedAt, ttl) {
		return zero, false
	}
	v, ok := e.value.(T)
	if !ok {
		return zero, false
	}
	if countHit {
		c.stats.Hits++
	}
	return v, true
}

func loadBackend[T any](c *Cache, k string, ttl time.Duration) (T, bool) {
	var zero T
	if c.backend == nil {
		return zero, false
	}
	raw, fetchedAt, ok, err := c.backend.LoadEntry(k)
	if err != nil {
		log.Printf("[statusdash] cache backend load %s: %v", k, err)
		return zero, false
	}
	if !ok || !fresh(c.clock.Now(), fetchedAt, ttl) {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Printf("[statusdash] cache backend decode %s: %v", k, err)
		return zero, false
	}

	c.mu.Lock()
	c.entries[k] = entry{value: v, fetchedAt: fetchedAt}
	c.stats.Hits++
	c.mu.Unlock()
	return v, true
}

func (c *Cache) saveBackend(k string, v any, fetchedAt time.Time) {
	if c.backend == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("[statusdash] cache backend encode %s: %v", k, err)
		return
	}
	if err := c.backend.SaveEntry(k, raw, fetchedAt); err != nil {
		log.Printf("[statusdash] cache backend save %s: %v", k, err)
	}
}

// Peek returns the stored value for key regardless of its age, without
// calling upstream.
func Peek[T any](c *Cache, key Key) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return zero, false
	}
	v, ok := e.value.(T)
	return v, ok
}

// FetchedAt reports when key was last filled.
func (c *Cache) FetchedAt(key Key) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	return e.fetchedAt, ok
}

// Invalidate drops key so the next Fetch goes upstream.
func (c *Cache) Invalidate(key Key) {
	k := key.String()
	c.mu.Lock()
	delete(c.entries, k)
	c.mu.Unlock()
	if c.backend != nil {
		if err := c.backend.DeleteEntry(k); err != nil {
			log.Printf("[statusdash] cache backend delete %s: %v", k, err)
		}
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	if c.backend != nil {
		if err := c.backend.ClearEntries(); err != nil {
			log.Printf("[statusdash] cache backend clear: %v", err)
		}
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
