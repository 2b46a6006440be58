package cache

import (
	"sync"
	"time"
)

// TTLCache is an in-memory key/value store whose entries expire after a TTL.
type TTLCache[V any] struct {
	data    map[string]*cacheEntry[V]
	ttl     time.Duration
	mu      sync.RWMutex
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
	onEvict func(key string, value V)
}

type cacheEntry[V any] struct {
	value      V
	expiration time.Time
}

// Option configures a TTLCache.
type Option[V any] func(*TTLCache[V])

// WithEvictHook registers a callback invoked for every entry removed by the cleanup loop.
func WithEvictHook[V any](fn func(key string, value V)) Option[V] {
	return func(c *TTLCache[V]) {
		c.onEvict = fn
	}
}

// New creates a cache whose cleanup loop runs every interval.
func New[V any](ttl, interval time.Duration, opts ...Option[V]) *TTLCache[V] {
	if interval <= 0 {
		interval = time.Minute
	}
	c := &TTLCache[V]{
		data:    make(map[string]*cacheEntry[V]),
		ttl:     ttl,
		cleanup: time.NewTicker(interval),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupLoop()

	return c
}

// Get retrieves a live value from the cache
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	entry, ok := c.data[key]
	if !ok {
		return zero, false
	}
	if time.Now().After(entry.expiration) {
		return zero, false
	}
	return entry.value, true
}

// Take retrieves and removes a value in one step.
func (c *TTLCache[V]) Take(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.data[key]
	if !ok {
		return zero, false
	}
	delete(c.data, key)
	if time.Now().After(entry.expiration) {
		return zero, false
	}
	return entry.value, true
}

// Set stores a value with the default TTL
func (c *TTLCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL
func (c *TTLCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &cacheEntry[V]{
		value:      value,
		expiration: time.Now().Add(ttl),
	}
}

// Touch extends the expiration of an existing entry.
func (c *TTLCache[V]) Touch(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok || time.Now().After(entry.expiration) {
		return false
	}
	entry.expiration = time.Now().Add(c.ttl)
	return true
}

// Delete removes a value from the cache
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
}

// Size returns the number of entries, expired or not.
func (c *TTLCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.data)
}

func (c *TTLCache[V]) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.RemoveExpired()
		case <-c.done:
			return
		}
	}
}

// RemoveExpired drops expired entries and returns how many were removed.
func (c *TTLCache[V]) RemoveExpired() int {
	c.mu.Lock()
	now := time.Now()
	var evicted []string
	var values []V
	for key, entry := range c.data {
		if now.After(entry.expiration) {
			evicted = append(evicted, key)
			values = append(values, entry.value)
			delete(c.data, key)
		}
	}
	c.mu.Unlock()

	if c.onEvict != nil {
		for i, key := range evicted {
			c.onEvict(key, values[i])
		}
	}
	return len(evicted)
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (c *TTLCache[V]) Stop() {
	c.once.Do(func() {
		c.cleanup.Stop()
		close(c.done)
	})
}
