package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Expiring is a thread-safe keyed cache with a fixed TTL. Reads of expired
// entries evict lazily; StartCleanup runs an additional periodic full sweep.
// Entries are immutable once inserted; re-insertion replaces.
type Expiring[V any] struct {
	mu          sync.RWMutex
	entries     map[string]entry[V]
	ttl         time.Duration
	clock       clockwork.Clock
	logger      *zap.Logger
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// New creates a cache with the given TTL.
func New[V any](ttl time.Duration, logger *zap.Logger) *Expiring[V] {
	return NewWithClock[V](ttl, clockwork.NewRealClock(), logger)
}

// NewWithClock creates a cache with an injected clock for tests.
func NewWithClock[V any](ttl time.Duration, clock clockwork.Clock, logger *zap.Logger) *Expiring[V] {
	return &Expiring[V]{
		entries:     make(map[string]entry[V]),
		ttl:         ttl,
		clock:       clock,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}
}

// Get returns the cached value if present and not expired. An expired entry
// is evicted as a side effect of the read.
func (c *Expiring[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}

	if c.clock.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock: a concurrent Insert may have
		// refreshed the entry since the read lock was dropped.
		if cur, ok := c.entries[key]; ok && c.clock.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}

	return e.value, true
}

// Insert stores a value, overwriting any existing entry and resetting its TTL
// from now.
func (c *Expiring[V]) Insert(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

// Cleanup removes every expired entry regardless of access.
func (c *Expiring[V]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *Expiring[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartCleanup launches a background sweep on the given interval. Call Stop
// to terminate it.
func (c *Expiring[V]) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				before := c.Len()
				c.Cleanup()
				after := c.Len()
				if before != after && c.logger != nil {
					c.logger.Debug("Cache cleanup completed",
						zap.Int("removed", before-after),
						zap.Int("remaining", after))
				}
			case <-c.stopCleanup:
				return
			}
		}
	}()
}

// Stop terminates the background cleanup goroutine.
func (c *Expiring[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// NormalizeKey canonicalizes a location string for cache lookups so that
// "Chicago", " chicago " and "CHICAGO" collide.
func NormalizeKey(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}
