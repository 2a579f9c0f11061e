package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache is an in-process LRU Cache. When full, expired entries are
// dropped first, then the least recently used one.
type MemoryCache struct {
	mu         sync.Mutex
	entries    *lru.Cache[string, memoryEntry]
	maxEntries int
	closed     bool
	now        func() time.Time
}

// NewMemoryCache creates a memory cache holding at most maxEntries values.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, memoryEntry](maxEntries)
	return &MemoryCache{
		entries:    entries,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryCache) Name() string { return "memory" }

func (c *MemoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	e, ok := c.entries.Get(key)
	if ok && !c.now().Before(e.expires) {
		c.entries.Remove(key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.value, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.entries.Contains(key) && c.entries.Len() >= c.maxEntries {
		c.dropExpiredLocked()
	}
	c.entries.Add(key, memoryEntry{value: b, expires: c.now().Add(ttl)})
	return nil
}

func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	for _, k := range c.entries.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.entries.Remove(k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return c.entries.Len()
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.entries.Purge()
	return nil
}

func (c *MemoryCache) dropExpiredLocked() {
	now := c.now()
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok && !now.Before(e.expires) {
			c.entries.Remove(k)
		}
	}
}
