// Package memory keeps cached catalog entries inside the server process.
// It is used when no Redis address is configured.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/prn-tf/alexander-docstore/internal/repository"
)

// Options configures the in-memory cache.
type Options struct {
	// MaxSize bounds the number of entries. 0 means unbounded.
	MaxSize int

	// CleanupInterval is how often expired entries are evicted.
	CleanupInterval time.Duration
}

type entry struct {
	key     string
	value   []byte
	expires time.Time // zero never expires
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Cache is a least-recently-used cache with per-entry expiry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	maxSize int
	now     func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// NewCache creates a Cache and starts its expiry sweeper.
func NewCache(opts Options) *Cache {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}

	c := &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: opts.MaxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweep(opts.CleanupInterval)
	return c
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry).expired(now) {
			c.removeLocked(el)
		}
		el = prev
	}
}

// Stop ends the sweeper.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Len returns the number of entries, counting expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) removeLocked(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*entry).key)
}

// lookupLocked returns the live element for key and marks it used.
func (c *Cache) lookupLocked(key string) *list.Element {
	el, ok := c.entries[key]
	if !ok {
		return nil
	}
	if el.Value.(*entry).expired(c.now()) {
		c.removeLocked(el)
		return nil
	}
	c.order.MoveToFront(el)
	return el
}

// Get returns a copy of the value stored under key.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el := c.lookupLocked(key)
	if el == nil {
		return nil, repository.ErrCacheMiss
	}
	return append([]byte(nil), el.Value.(*entry).value...), nil
}

// Set stores a copy of value. A ttl of 0 keeps it until evicted.
// A full cache drops its least recently used entry.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := &entry{key: key, value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return nil
	}

	if c.maxSize > 0 && c.order.Len() >= c.maxSize {
		c.removeLocked(c.order.Back())
	}
	c.entries[key] = c.order.PushFront(e)
	return nil
}

// Delete drops key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

// Exists reports whether key holds a live value.
func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(key) != nil, nil
}

var _ repository.Cache = (*Cache)(nil)
