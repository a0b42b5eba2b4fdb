package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T) *RedisCache {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheWithClient(client, "test:")
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Logf("failed to close redis cache: %v", err)
		}
	})
	return c
}

func TestRedisCacheSetGet(t *testing.T) {
	c := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", testValue{Name: "a", N: 1}, 0))

	var got testValue
	require.NoError(t, c.Get(ctx, "key", &got))
	assert.Equal(t, testValue{Name: "a", N: 1}, got)
}

func TestRedisCacheMiss(t *testing.T) {
	c := setupRedisCache(t)

	var got testValue
	assert.ErrorIs(t, c.Get(context.Background(), "absent", &got), ErrNotFound)
}

func TestRedisCacheExistsAndDelete(t *testing.T) {
	c := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", 42, 0))

	exists, err := c.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "key"))
	exists, err = c.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisCacheFlushScopedToPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	scoped := NewRedisCacheWithClient(client, "scoped:")
	ctx := context.Background()

	require.NoError(t, scoped.Set(ctx, "key", 1, 0))
	require.NoError(t, client.Set(ctx, "other", "kept", 0).Err())

	require.NoError(t, scoped.Flush(ctx))

	exists, err := scoped.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, exists)

	kept, err := client.Get(ctx, "other").Result()
	require.NoError(t, err)
	assert.Equal(t, "kept", kept)
}
