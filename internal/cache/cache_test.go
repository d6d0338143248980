package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	type facets struct {
		Brands []string `json:"brands"`
	}
	require.NoError(t, c.Set(ctx, "facets", facets{Brands: []string{"nike"}}, time.Minute))

	var got facets
	require.NoError(t, c.Get(ctx, "facets", &got))
	assert.Equal(t, []string{"nike"}, got.Brands)

	err := c.Get(ctx, "missing", &got)
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestMemoryCache_Expiration(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", "v", time.Second))
	require.NoError(t, c.Set(ctx, "forever", "v", 0))

	now = now.Add(2 * time.Second)

	var v string
	assert.True(t, errors.Is(c.Get(ctx, "short", &v), ErrCacheMiss))
	require.NoError(t, c.Get(ctx, "forever", &v))

	exists, err := c.Exists(ctx, "short")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryCache_SetNXConcurrent(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.SetNX(ctx, "lock", "owner", time.Minute)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemoryCache_DelAndClose(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))
	require.NoError(t, c.Del(ctx, "a"))

	exists, _ := c.Exists(ctx, "a")
	assert.False(t, exists)

	require.NoError(t, c.Close())
	exists, _ = c.Exists(ctx, "b")
	assert.False(t, exists)
}

func TestNullCache(t *testing.T) {
	c := NewNullCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	var v string
	assert.True(t, errors.Is(c.Get(ctx, "k", &v), ErrCacheDisabled))

	ok, err := c.SetNX(ctx, "k", "v", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
