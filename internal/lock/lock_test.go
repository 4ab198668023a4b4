package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	defer l.Stop()

	ok, err := l.Acquire(ctx, Keys.BlobGC(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire(ctx, Keys.BlobGC(), time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second acquire must fail while held")

	held, err := l.IsHeld(ctx, Keys.BlobGC())
	require.NoError(t, err)
	require.True(t, held)

	released, err := l.Release(ctx, Keys.BlobGC())
	require.NoError(t, err)
	require.True(t, released)

	ok, err = l.Acquire(ctx, Keys.BlobGC(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	defer l.Stop()

	now := time.Now()
	l.now = func() time.Time { return now }

	ok, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)

	extended, err := l.Extend(ctx, "k", time.Second)
	require.NoError(t, err)
	require.False(t, extended)

	ok, err = l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok, "expired lock can be taken")
}

func TestMemoryLocker_AcquireWithRetryHonorsContext(t *testing.T) {
	l := NewMemoryLocker()
	defer l.Stop()

	_, err := l.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ok, err := AcquireWithRetry(ctx, l, "k", time.Minute, 100, 5*time.Millisecond)
	require.False(t, ok)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireWithRetry_WaitsForRelease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	defer l.Stop()

	key := Keys.Migrations("sqlite")
	_, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Release(ctx, key)
	}()

	ok, err := AcquireWithRetry(ctx, l, key, time.Minute, 200, 5*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireWithRetry_GivesUp(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	defer l.Stop()

	_, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	ok, err := AcquireWithRetry(ctx, l, "k", time.Minute, 3, time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	defer l.Stop()

	now := time.Now()
	l.now = func() time.Time { return now }

	lease, err := Hold(ctx, l, Keys.BlobGC(), time.Minute)
	require.NoError(t, err)
	require.True(t, lease.Held())
	require.Equal(t, Keys.BlobGC(), lease.Key())

	_, err = Hold(ctx, l, Keys.BlobGC(), time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)

	now = now.Add(30 * time.Second)
	require.NoError(t, lease.Renew(ctx))

	now = now.Add(90 * time.Second)
	require.ErrorIs(t, lease.Renew(ctx), ErrNotAcquired, "expired lease cannot be renewed")
	require.False(t, lease.Held())
	require.NoError(t, lease.Release(ctx))

	lease, err = Hold(ctx, l, Keys.BlobGC(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	held, err := l.IsHeld(ctx, Keys.BlobGC())
	require.NoError(t, err)
	require.False(t, held)
}

func TestNoOpLocker(t *testing.T) {
	ctx := context.Background()
	l := NewNoOpLocker()

	ok, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	ok, err = l.Acquire(cancelled, "k", time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ok)
}

func TestRedisLocker(t *testing.T) {
	host := os.Getenv("DOCSTORE_TEST_REDIS_HOST")
	if host == "" {
		t.Skip("DOCSTORE_TEST_REDIS_HOST not set")
	}

	ctx := context.Background()
	client := goredis.NewClient(&goredis.Options{Addr: host + ":6379"})
	t.Cleanup(func() { client.Close() })

	key := "docstore-test:lock:" + uuid.NewString()
	a := NewRedisLocker(client)
	b := NewRedisLocker(client)

	ok, err := a.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	released, err := b.Release(ctx, key)
	require.NoError(t, err)
	require.False(t, released, "non-owner cannot release")

	extended, err := a.Extend(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, extended)

	released, err = a.Release(ctx, key)
	require.NoError(t, err)
	require.True(t, released)

	held, err := b.IsHeld(ctx, key)
	require.NoError(t, err)
	require.False(t, held)
}
