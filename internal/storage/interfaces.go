// Package storage implements the chunked blob store.
// A blob's bytes are split into fixed-size chunks, each persisted under
// (blob id, sequence number) by a ChunkBackend, and streamed back in order.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/prn-tf/alexander-docstore/internal/domain"
)

// ChunkBackend defines the interface for chunk persistence.
// Implementations include the SQL chunks table (sqlite/postgres), the local
// filesystem and S3-compatible object storage.
type ChunkBackend interface {
	// PutChunk persists one framed chunk.
	// Once it returns nil the chunk must be durably stored.
	PutChunk(ctx context.Context, chunk *domain.Chunk) error

	// GetChunk returns the framed payload of chunk seq of a blob.
	// Returns domain.ErrChunkNotFound if the chunk does not exist.
	GetChunk(ctx context.Context, blobID uuid.UUID, seq int) ([]byte, error)

	// DeleteChunks removes every chunk of a blob.
	// Deleting a blob without chunks is a no-op, not an error.
	DeleteChunks(ctx context.Context, blobID uuid.UUID) error
}

// HealthChecker is implemented by backends that can verify connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// IsNotFound reports whether err means the chunk or blob does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
