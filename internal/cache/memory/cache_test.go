package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-docstore/internal/repository"
)

func TestCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewCache(Options{})
	defer c.Stop()

	_, err := c.Get(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrCacheMiss)

	value := []byte("value")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'X'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "value", string(got))

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, repository.ErrCacheMiss)
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewCache(Options{})
	defer c.Stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "forever", []byte("v"), 0))
	now = now.Add(2 * time.Minute)

	_, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, repository.ErrCacheMiss)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, c.Set(ctx, "k2", []byte("v"), time.Minute))
	now = now.Add(2 * time.Minute)
	c.cleanup()
	require.Equal(t, 1, c.Len())

	_, err = c.Get(ctx, "forever")
	require.NoError(t, err)
}

func TestCache_MaxSize(t *testing.T) {
	ctx := context.Background()
	c := NewCache(Options{MaxSize: 2})
	defer c.Stop()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	// Touching a makes b the least recently used entry.
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))
	require.Equal(t, 2, c.Len())

	_, err = c.Get(ctx, "b")
	require.ErrorIs(t, err, repository.ErrCacheMiss)

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "1", string(got))

	// Overwriting an existing key never evicts.
	require.NoError(t, c.Set(ctx, "c", []byte("4"), 0))
	require.Equal(t, 2, c.Len())
}
