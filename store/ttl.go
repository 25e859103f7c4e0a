package store

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

//The TTLCache stores entries in memory with an optional time-to-live and
// capacity bound. Unlike the MemoryCache it is safe for concurrent use by
// multiple goroutines, making it the in-memory backend of choice when one
// cache instance is shared across an application.
//
// Note that the TTL here is an eviction policy of the store, the cache
// controller decides freshness from the entry metadata itself.
type TTLCache struct {
	inner *ttlcache.Cache[string, []byte]
}

//NewTTLCache creates a concurrent in-memory cache.
// Entries are evicted ttl after their last write, a ttl of zero keeps
// entries forever. A capacity of zero means unbounded, otherwise the least
// recently used entries are evicted once the capacity is exceeded.
func NewTTLCache(ttl time.Duration, capacity uint64) *TTLCache {
	opts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}

	if ttl > 0 {
		opts = append(opts, ttlcache.WithTTL[string, []byte](ttl))
	}

	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](capacity))
	}

	cache := &TTLCache{
		inner: ttlcache.New[string, []byte](opts...),
	}

	//Start the expiration loop, it stops when Stop is called
	go cache.inner.Start()

	return cache
}

func (c *TTLCache) Get(key string) ([]byte, bool, error) {
	item := c.inner.Get(key)
	if item == nil {
		return nil, false, nil
	}

	return item.Value(), true, nil
}

func (c *TTLCache) Set(key string, value []byte) error {
	c.inner.Set(key, value, ttlcache.DefaultTTL)
	return nil
}

func (c *TTLCache) Delete(key string) error {
	c.inner.Delete(key)
	return nil
}

//Stop stops the background expiration loop.
func (c *TTLCache) Stop() {
	c.inner.Stop()
}
