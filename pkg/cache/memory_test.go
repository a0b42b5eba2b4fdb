package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testValue struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", testValue{Name: "a", N: 1}, 0))

	var got testValue
	require.NoError(t, c.Get(ctx, "key", &got))
	assert.Equal(t, testValue{Name: "a", N: 1}, got)
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache()

	var got testValue
	err := c.Get(context.Background(), "absent", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", testValue{}, time.Nanosecond))
	time.Sleep(10 * time.Millisecond)

	var got testValue
	assert.ErrorIs(t, c.Get(ctx, "key", &got), ErrNotFound)

	exists, err := c.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryCacheDeleteAndFlush(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))

	require.NoError(t, c.Delete(ctx, "a"))
	exists, err := c.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Flush(ctx))
	exists, err = c.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, exists)
}
