// Package lock coordinates maintenance work between docstore instances.
// A single server uses memory locks; instances sharing a database through
// Redis use Redis locks so that migrations and blob collection never overlap.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired indicates the lock is held by another owner.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker grants expiring, named locks.
type Locker interface {
	// Acquire takes key for ttl. It returns false without error when
	// another owner holds the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release gives up key. It returns false if this locker did not hold it.
	Release(ctx context.Context, key string) (bool, error)

	// Extend resets the ttl of a held key. It returns false if the key
	// expired or belongs to someone else.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsHeld reports whether anyone holds key.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// AcquireWithRetry polls Acquire until it succeeds, attempts are used up or
// ctx is done.
func AcquireWithRetry(ctx context.Context, l Locker, key string, ttl time.Duration, attempts int, delay time.Duration) (bool, error) {
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		ok, err := l.Acquire(ctx, key, ttl)
		if err != nil || ok {
			return ok, err
		}
		if attempt == attempts {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Lease is a held lock that is renewed while long work runs under it.
type Lease struct {
	locker Locker
	key    string
	ttl    time.Duration
	held   bool
}

// Hold acquires key for ttl. It returns ErrNotAcquired when another owner
// holds the key.
func Hold(ctx context.Context, l Locker, key string, ttl time.Duration) (*Lease, error) {
	ok, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lease{locker: l, key: key, ttl: ttl, held: true}, nil
}

// Key returns the leased key.
func (l *Lease) Key() string {
	return l.key
}

// Renew extends the lease by its ttl. ErrNotAcquired means the lease was
// lost and the caller must stop working under it.
func (l *Lease) Renew(ctx context.Context) error {
	if !l.held {
		return ErrNotAcquired
	}
	ok, err := l.locker.Extend(ctx, l.key, l.ttl)
	if err != nil {
		return err
	}
	if !ok {
		l.held = false
		return ErrNotAcquired
	}
	return nil
}

// Release gives the lease up. Releasing twice is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	_, err := l.locker.Release(ctx, l.key)
	return err
}

// Held reports whether the lease is still owned.
func (l *Lease) Held() bool {
	return l.held
}

// Keys names the locks used by docstore.
var Keys = lockKeys{}

type lockKeys struct{}

// BlobGC is held while orphan blobs are collected.
func (lockKeys) BlobGC() string {
	return "lock:gc:blob"
}

// Migrations is held while the schema of a database driver is migrated.
func (lockKeys) Migrations(driver string) string {
	return "lock:migrate:" + driver
}
