// Package repository defines data access interfaces for Alexander DocStore.
// These interfaces abstract database operations, allowing for different implementations
// (SQLite, PostgreSQL, in-memory for testing, etc.) while keeping the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/storage"
)

// =============================================================================
// Blob Repository
// =============================================================================

// BlobRepository defines the interface for blob metadata access.
// A blob row is the commit marker of a chunk set: it is inserted only after
// every chunk has been written.
type BlobRepository interface {
	// Create inserts a committed blob.
	Create(ctx context.Context, blob *domain.Blob) error

	// GetByID retrieves a blob by ID.
	// Returns domain.ErrBlobNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Blob, error)

	// Delete deletes a blob row by ID.
	// Returns domain.ErrBlobNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListUnreferenced returns blobs older than the grace period that no
	// document references. Used by garbage collection.
	ListUnreferenced(ctx context.Context, gracePeriod time.Duration, limit int) ([]*domain.Blob, error)
}

// =============================================================================
// Chunk Repository
// =============================================================================

// ChunkRepository stores chunk frames in the database.
// It is the "database" storage backend.
type ChunkRepository interface {
	storage.ChunkBackend
}

// =============================================================================
// Document Repository
// =============================================================================

// DocumentRepository defines the interface for document metadata access.
type DocumentRepository interface {
	// Create persists a new document.
	Create(ctx context.Context, doc *domain.Document) error

	// GetByID retrieves a document by ID.
	// Returns domain.ErrDocumentNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)

	// List returns all documents, newest first.
	List(ctx context.Context) ([]*domain.Document, error)

	// Delete deletes a document by ID.
	// Returns domain.ErrDocumentNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}

// =============================================================================
// Database
// =============================================================================

// Database is implemented by both SQL drivers.
type Database interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Migrate(ctx context.Context) error
	MigrationVersion(ctx context.Context) (int, error)
	Close() error
}
