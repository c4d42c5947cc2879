package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_RoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	// Missing checkpoints answer ErrNoCheckpoint
	_, err = store.Load(ctx, "scn-1")
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	// Save, load, overwrite, delete
	require.NoError(t, store.Save(ctx, "scn-1", []byte("first")))
	got, err := store.Load(ctx, "scn-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	require.NoError(t, store.Save(ctx, "scn-1", []byte("second")))
	got, err = store.Load(ctx, "scn-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	require.NoError(t, store.Delete(ctx, "scn-1"))
	_, err = store.Load(ctx, "scn-1")
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	// Deleting again is harmless
	assert.NoError(t, store.Delete(ctx, "scn-1"))
}

func TestFSStore_ScenariosAreIsolated(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a", []byte("aa")))
	require.NoError(t, store.Save(ctx, "b", []byte("bb")))

	got, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("aa"), got)
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "", ttl), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	ctx := context.Background()

	_, err := store.Load(ctx, "scn-1")
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	require.NoError(t, store.Save(ctx, "scn-1", []byte("blob")))
	got, err := store.Load(ctx, "scn-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)

	require.NoError(t, store.Delete(ctx, "scn-1"))
	_, err = store.Load(ctx, "scn-1")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestRedisStore_TTLExpires(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "scn-1", []byte("blob")))
	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "scn-1")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	store, mr := newRedisStore(t, 0)
	require.NoError(t, store.Save(context.Background(), "scn-1", []byte("x")))
	assert.True(t, mr.Exists("cdst:checkpoint:scn-1"))
}
