// cache.go wraps patrickmn/go-cache behind the NoOp/TTL cache-service
// contract the template configuration manager uses to avoid re-reading
// and re-merging template files on every lookup.
package templateconfig

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Stats reports a cache's current size and configured TTL.
type Stats struct {
	Size int
	TTL  time.Duration
}

// CacheService is the contract the manager depends on; NoOpCache and
// TTLCache are its two implementations.
type CacheService interface {
	GetOrLoad(key string, loader func() (map[string]any, error)) (map[string]any, error)
	Invalidate(key string)
	GetStats() Stats
	OptimizeCache()
}

// NoOpCache calls loader on every GetOrLoad; used when caching is
// disabled in config.
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache { return &NoOpCache{} }

func (NoOpCache) GetOrLoad(_ string, loader func() (map[string]any, error)) (map[string]any, error) {
	return loader()
}
func (NoOpCache) Invalidate(_ string) {}
func (NoOpCache) GetStats() Stats     { return Stats{} }
func (NoOpCache) OptimizeCache()      {}

// TTLCache memoizes GetOrLoad results for ttl, calling loader at most
// once per window even under concurrent callers racing for the same
// key.
type TTLCache struct {
	ttl   time.Duration
	inner *gocache.Cache

	mu      sync.Mutex
	loading map[string]*sync.WaitGroup
}

func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:     ttl,
		inner:   gocache.New(ttl, ttl*2),
		loading: make(map[string]*sync.WaitGroup),
	}
}

// GetOrLoad returns the cached value for key if present and unexpired;
// otherwise it calls loader exactly once, even if multiple goroutines
// call GetOrLoad for the same key concurrently — latecomers block on
// the in-flight load and then read its result from the cache.
func (c *TTLCache) GetOrLoad(key string, loader func() (map[string]any, error)) (map[string]any, error) {
	if v, ok := c.inner.Get(key); ok {
		return v.(map[string]any), nil
	}

	c.mu.Lock()
	if wg, inFlight := c.loading[key]; inFlight {
		c.mu.Unlock()
		wg.Wait()
		if v, ok := c.inner.Get(key); ok {
			return v.(map[string]any), nil
		}
		return loader()
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.loading[key] = wg
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.loading, key)
		c.mu.Unlock()
		wg.Done()
	}()

	v, err := loader()
	if err != nil {
		return nil, err
	}
	c.inner.Set(key, v, c.ttl)
	return v, nil
}

func (c *TTLCache) Invalidate(key string) {
	c.inner.Delete(key)
}

func (c *TTLCache) GetStats() Stats {
	return Stats{Size: c.inner.ItemCount(), TTL: c.ttl}
}

// OptimizeCache is advisory; go-cache already self-evicts expired
// entries on a background tick, so this just forces a sweep now.
func (c *TTLCache) OptimizeCache() {
	c.inner.DeleteExpired()
}
