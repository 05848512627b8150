package cache

import (
	"bytes"
	"context"
	"sync"
)

// InMemoryCache keeps entries in a process-local map. Entries never expire;
// they live until a write evicts them.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[Key][]byte
}

func NewInMemory() *InMemoryCache {
	return &InMemoryCache{entries: make(map[Key][]byte)}
}

func (c *InMemoryCache) Get(_ context.Context, key Key) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(value), true, nil
}

func (c *InMemoryCache) Set(_ context.Context, key Key, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = bytes.Clone(value)
	return nil
}

func (c *InMemoryCache) Delete(_ context.Context, keys ...Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

// Contains reports whether key currently holds an entry.
func (c *InMemoryCache) Contains(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Len returns the number of cached entries.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
