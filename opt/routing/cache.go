package routing

import (
	"hash/fnv"
	"sync"
	"time"
)

const cacheShards = 16

// DefaultCacheTTL is how long a routed leg stays valid.
const DefaultCacheTTL = 24 * time.Hour

// DefaultSweepInterval is how often the background sweeper removes expired
// entries that lazy deletion has not touched.
const DefaultSweepInterval = 6 * time.Hour

type cacheEntry struct {
	leg     Leg
	expires time.Time
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// routeCache is a sharded TTL cache keyed by "origin|destination" rounded
// coordinate strings. Reads take only a shard read-lock; writes a shard
// write-lock. The cache is shared by every scenario in the process.
type routeCache struct {
	shards [cacheShards]*cacheShard
	ttl    time.Duration
	now    func() time.Time

	sweepStop chan struct{}
	sweepOnce sync.Once
}

func newRouteCache(ttl time.Duration) *routeCache {
	c := &routeCache{
		ttl:       ttl,
		now:       time.Now,
		sweepStop: make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &cacheShard{entries: make(map[string]cacheEntry)}
	}
	return c
}

func (c *routeCache) shardFor(key string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%cacheShards]
}

func (c *routeCache) get(key string) (Leg, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return Leg{}, false
	}
	if c.now().After(e.expires) {
		// Lazy deletion of the expired entry.
		s.mu.Lock()
		if cur, still := s.entries[key]; still && c.now().After(cur.expires) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return Leg{}, false
	}
	return e.leg, true
}

func (c *routeCache) put(key string, leg Leg) {
	s := c.shardFor(key)
	s.mu.Lock()
	s.entries[key] = cacheEntry{leg: leg, expires: c.now().Add(c.ttl)}
	s.mu.Unlock()
}

// sweep walks every shard and drops expired entries.
func (c *routeCache) sweep() {
	cutoff := c.now()
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if cutoff.After(e.expires) {
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
	}
}

func (c *routeCache) startSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-c.sweepStop:
				return
			}
		}
	}()
}

func (c *routeCache) stopSweeper() {
	c.sweepOnce.Do(func() { close(c.sweepStop) })
}

// len reports the total number of live entries. Used by tests.
func (c *routeCache) len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
