package store

import (
	"bytes"
	"io"
)

//The MemoryCache stores entries in a plain map.
// It does no synchronization of its own, callers sharing one instance
// across goroutines must serialize access externally or use the TTLCache
// which is safe for concurrent use.
type MemoryCache struct {
	entries map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string][]byte),
	}
}

func (c *MemoryCache) Get(key string) ([]byte, bool, error) {
	value, found := c.entries[key]
	return value, found, nil
}

func (c *MemoryCache) Set(key string, value []byte) error {
	c.entries[key] = value
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	delete(c.entries, key)
	return nil
}

//The SeparateBodyMemoryCache is the separate-body variant of the MemoryCache.
// Bodies live in a second map under the same key.
// Like the MemoryCache it does no synchronization of its own.
type SeparateBodyMemoryCache struct {
	MemoryCache

	bodies map[string][]byte
}

func NewSeparateBodyMemoryCache() *SeparateBodyMemoryCache {
	return &SeparateBodyMemoryCache{
		MemoryCache: MemoryCache{entries: make(map[string][]byte)},
		bodies:      make(map[string][]byte),
	}
}

func (c *SeparateBodyMemoryCache) GetBody(key string) (io.ReadCloser, bool, error) {
	body, found := c.bodies[key]
	if !found {
		return nil, false, nil
	}

	return io.NopCloser(bytes.NewReader(body)), true, nil
}

func (c *SeparateBodyMemoryCache) SetBody(key string, body []byte) error {
	c.bodies[key] = body
	return nil
}

func (c *SeparateBodyMemoryCache) Delete(key string) error {
	delete(c.entries, key)
	delete(c.bodies, key)
	return nil
}
