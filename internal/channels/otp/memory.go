package otp

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryClient is an in-process stand-in for redis, used when no redis
// URL is configured. Entries expire lazily on read.
type MemoryClient struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   string
	expires time.Time
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{entries: make(map[string]memoryEntry)}
}

func (c *MemoryClient) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{value: value.(string)}
	if expiration > 0 {
		entry.expires = time.Now().Add(expiration)
	}
	c.entries[key] = entry
	return redis.NewStatusResult("OK", nil)
}

func (c *MemoryClient) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || (!entry.expires.IsZero() && time.Now().After(entry.expires)) {
		delete(c.entries, key)
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(entry.value, nil)
}

func (c *MemoryClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int64
	for _, key := range keys {
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}
