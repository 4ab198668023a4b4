package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Cache stores catalog rows by id in front of the database. Callers treat
// every cache error as a miss and fall through to the repository.
type Cache interface {
	// Get returns ErrCacheMiss when key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)
}

var (
	// ErrCacheMiss reports an absent key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable wraps transport failures of a remote cache.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// CacheKey builds the keys catalog rows are cached under.
type CacheKey struct{}

func (CacheKey) Document(id uuid.UUID) string {
	return "doc:" + id.String()
}

func (CacheKey) Blob(id uuid.UUID) string {
	return "blob:" + id.String()
}
