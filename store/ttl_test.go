package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCache(t *testing.T) {
	cache := NewTTLCache(0, 0)
	defer cache.Stop()

	_, found, err := cache.Get("key1")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, cache.Set("key1", []byte("Content")))

	value, found, err := cache.Get("key1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("Content"), value)

	require.NoError(t, cache.Delete("key1"))

	_, found, err = cache.Get("key1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestTTLCacheExpiry(t *testing.T) {
	cache := NewTTLCache(10*time.Millisecond, 0)
	defer cache.Stop()

	require.NoError(t, cache.Set("key1", []byte("Content")))

	time.Sleep(50 * time.Millisecond)

	_, found, err := cache.Get("key1")
	require.NoError(t, err)
	require.False(t, found, "entry should have been evicted after its ttl")
}

func TestTTLCacheConcurrent(t *testing.T) {
	cache := NewTTLCache(0, 0)
	defer cache.Stop()

	//Unlike the MemoryCache the TTLCache is safe for concurrent use
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			key := fmt.Sprintf("key%d", i)

			if err := cache.Set(key, []byte(key)); err != nil {
				t.Errorf("Error while setting key: %s", err)
				return
			}

			value, found, err := cache.Get(key)
			if err != nil || !found || string(value) != key {
				t.Errorf("Unexpected result for key %s: %v %v %v", key, value, found, err)
			}
		}(i)
	}
	wg.Wait()
}
