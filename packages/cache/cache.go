// Package cache provides a fixed-capacity store of recent response-like
// values with per-entry time-to-live.
//
// Eviction is by insertion time: when a new key arrives at capacity the
// entry stored longest ago is removed, independent of its remaining TTL.
// Expired entries are removed lazily on access or by an explicit Prune;
// there is no background sweep.
package cache

import (
	"cmp"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/mohae/deepcopy"
)

// ErrInvalidCapacity is returned by New for a capacity below one
var ErrInvalidCapacity = errors.New("cache: capacity must be at least 1")

// Cloner is implemented by values that know how to deep-copy themselves
type Cloner[V any] interface {
	Clone() V
}

// Entry is a stored value with its timing metadata
type Entry[V any] struct {
	Key      string
	Value    V
	StoredAt time.Time
	TTL      time.Duration

	seq uint64
}

// Expired reports whether the entry is past its TTL at now. A TTL of zero or
// less never expires.
func (e *Entry[V]) Expired(now time.Time) bool {
	return e.TTL > 0 && now.After(e.StoredAt.Add(e.TTL))
}

// Stats counts cache activity since creation or the last Clear
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
}

// Cache is safe for concurrent use
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*Entry[V]
	seq      uint64
	stats    Stats

	now   func() time.Time
	clone func(V) V
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithClock sets the time source used for storedAt and expiry checks
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		c.now = now
	}
}

// WithCloner sets the copy function applied on store and on get
func WithCloner[V any](fn func(V) V) Option[V] {
	return func(c *Cache[V]) {
		c.clone = fn
	}
}

// New creates a cache holding at most capacity live entries
func New[V any](capacity int, opts ...Option[V]) (*Cache[V], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}

	c := &Cache[V]{
		capacity: capacity,
		entries:  make(map[string]*Entry[V], capacity),
		now:      time.Now,
		clone:    defaultClone[V],
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// defaultClone prefers Cloner and otherwise deep-copies v. deepcopy only
// reaches exported fields, so types with unexported state should implement
// Cloner or be cached with WithCloner.
func defaultClone[V any](v V) V {
	if c, ok := any(v).(Cloner[V]); ok {
		return c.Clone()
	}
	if cp, ok := deepcopy.Copy(v).(V); ok {
		return cp
	}
	return v
}

// Capacity returns the configured capacity
func (c *Cache[V]) Capacity() int {
	return c.capacity
}

// Store inserts or replaces key. Replacing refreshes storedAt and never
// evicts another entry.
func (c *Cache[V]) Store(key string, value V, ttl time.Duration) {
	stored := c.clone(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.seq++
	c.entries[key] = &Entry[V]{Key: key, Value: stored, StoredAt: now, TTL: ttl, seq: c.seq}
}

// evictOldestLocked removes the entry inserted first. Insertion sequence
// breaks ties between equal storedAt values.
func (c *Cache[V]) evictOldestLocked() {
	var oldest *Entry[V]
	for _, e := range c.entries {
		if oldest == nil || e.seq < oldest.seq {
			oldest = e
		}
	}
	if oldest != nil {
		delete(c.entries, oldest.Key)
		c.stats.Evictions++
	}
}

// Get returns a copy of the value stored under key. Expired entries are
// deleted and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	entry, ok := c.lookupLocked(key)
	if !ok {
		c.stats.Misses++
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	c.stats.Hits++
	value := entry.Value
	c.mu.Unlock()

	return c.clone(value), true
}

// Has reports whether key holds a live entry
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookupLocked(key)
	return ok
}

func (c *Cache[V]) lookupLocked(key string) (*Entry[V], bool) {
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if entry.Expired(c.now()) {
		delete(c.entries, key)
		c.stats.Expirations++
		return nil, false
	}
	return entry, true
}

// Remove deletes key and reports whether it was present
func (c *Cache[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Clear removes every entry and resets stats
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry[V], c.capacity)
	c.stats = Stats{}
}

// Prune removes expired entries and returns how many were removed
func (c *Cache[V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.stats.Expirations += int64(removed)
	return removed
}

// Len returns the number of stored entries, including expired entries not yet
// removed
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns stored keys ordered oldest first
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]*Entry[V], 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *Entry[V]) int {
		return cmp.Compare(a.seq, b.seq)
	})

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// Stats returns a snapshot of the activity counters
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
