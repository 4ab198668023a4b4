package lock

import (
	"context"
	"time"
)

// NoOpLocker grants every lock without tracking it. Components constructed
// without a locker fall back to it.
type NoOpLocker struct{}

// NewNoOpLocker creates a new no-op locker.
func NewNoOpLocker() *NoOpLocker {
	return &NoOpLocker{}
}

func (NoOpLocker) Acquire(ctx context.Context, _ string, _ time.Duration) (bool, error) {
	return granted(ctx)
}

func (NoOpLocker) Release(ctx context.Context, _ string) (bool, error) {
	return granted(ctx)
}

func (NoOpLocker) Extend(ctx context.Context, _ string, _ time.Duration) (bool, error) {
	return granted(ctx)
}

// IsHeld is always false.
func (NoOpLocker) IsHeld(ctx context.Context, _ string) (bool, error) {
	return false, ctx.Err()
}

func granted(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

var _ Locker = NoOpLocker{}
