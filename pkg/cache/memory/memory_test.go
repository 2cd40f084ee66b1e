package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"balance-ledger/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, config MemoryCacheConfig) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(config)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{Name: "L1"})
	ctx := context.Background()

	_, err := c.Get(ctx, "transaction:missing")
	assert.ErrorIs(t, err, cache.ErrKeyNotFound)

	require.NoError(t, c.Set(ctx, "transaction:1", "value", 0))
	v, err := c.Get(ctx, "transaction:1")
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	require.NoError(t, c.Delete(ctx, "transaction:1"))
	_, err = c.Get(ctx, "transaction:1")
	assert.True(t, cache.IsNotFound(err))

	assert.NoError(t, c.Delete(ctx, "transaction:never-set"))
	assert.Equal(t, "L1", c.Name())
}

func TestMemoryCache_Expiration(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{CleanupInterval: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "transaction:1", "value", 30*time.Millisecond))
	_, err := c.Get(ctx, "transaction:1")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, err = c.Get(ctx, "transaction:1")
	assert.ErrorIs(t, err, cache.ErrKeyNotFound)
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestMemoryCache_EvictsLeastRecentlyRead(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{MaxSize: 2})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "transaction:a", 1, 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "transaction:b", 2, 0))
	time.Sleep(time.Millisecond)

	_, err := c.Get(ctx, "transaction:a")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	require.NoError(t, c.Set(ctx, "transaction:c", 3, 0))

	_, err = c.Get(ctx, "transaction:b")
	assert.ErrorIs(t, err, cache.ErrKeyNotFound)
	_, err = c.Get(ctx, "transaction:a")
	assert.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCache_OverwriteDoesNotEvict(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{MaxSize: 2})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "transaction:a", 1, 0))
	require.NoError(t, c.Set(ctx, "transaction:b", 2, 0))
	require.NoError(t, c.Set(ctx, "transaction:a", 10, 0))

	v, err := c.Get(ctx, "transaction:b")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMemoryCache_InvalidKey(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{})
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, 0), cache.ErrInvalidKey)
	_, err := c.Get(ctx, " padded ")
	assert.ErrorIs(t, err, cache.ErrInvalidKey)
}

func TestMemoryCache_Concurrency(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{MaxSize: 50})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := cache.NewKeyPattern("transaction", ":").Build(string(rune('a' + i)))
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, key, j, 0)
				_, _ = c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
