package routing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteCache_PutGet(t *testing.T) {
	c := newRouteCache(time.Hour)
	leg := Leg{KM: 12.5, Minutes: 19, Source: SourceOSRM}
	c.put("a|b", leg)

	got, ok := c.get("a|b")
	require.True(t, ok)
	assert.Equal(t, leg, got)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestRouteCache_ExpiryIsLazy(t *testing.T) {
	// GIVEN a cache whose clock we control
	c := newRouteCache(time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.put("a|b", Leg{KM: 1})
	require.Equal(t, 1, c.len())

	// WHEN the TTL passes
	now = now.Add(2 * time.Hour)

	// THEN the read misses and deletes the entry
	_, ok := c.get("a|b")
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}

func TestRouteCache_SweepDropsExpired(t *testing.T) {
	c := newRouteCache(time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 40; i++ {
		c.put(fmt.Sprintf("pair-%d", i), Leg{KM: float64(i)})
	}
	require.Equal(t, 40, c.len())

	now = now.Add(30 * time.Minute)
	c.put("fresh", Leg{KM: 1})

	now = now.Add(45 * time.Minute) // first batch expired, "fresh" not yet
	c.sweep()
	assert.Equal(t, 1, c.len())
	_, ok := c.get("fresh")
	assert.True(t, ok)
}

func TestRouteCache_KeysSpreadAcrossShards(t *testing.T) {
	c := newRouteCache(time.Hour)
	touched := make(map[*cacheShard]bool)
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("pair-%d", i)
		c.put(key, Leg{})
		touched[c.shardFor(key)] = true
	}
	// FNV over 200 keys should reach most of the 16 shards
	assert.Greater(t, len(touched), 8)
}
