package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

const blobColumns = `id, storage_name, filename, content_type, length, chunk_size,
	chunk_count, compression, encrypted, checksum, created_at`

// blobRepository implements repository.BlobRepository for SQLite.
type blobRepository struct {
	db *DB
}

// NewBlobRepository creates a new SQLite blob repository.
func NewBlobRepository(db *DB) repository.BlobRepository {
	return &blobRepository{db: db}
}

// Create inserts a committed blob.
func (r *blobRepository) Create(ctx context.Context, blob *domain.Blob) error {
	query := `
		INSERT INTO blobs (` + blobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.db.ExecContext(ctx, query,
		blob.ID.String(),
		blob.StorageName,
		blob.Filename,
		blob.ContentType,
		blob.Length,
		blob.ChunkSize,
		blob.ChunkCount,
		blob.Compression,
		blob.Encrypted,
		blob.Checksum,
		formatTime(blob.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("blob %s already exists: %w", blob.ID, err)
		}
		return fmt.Errorf("failed to insert blob: %w", err)
	}

	return nil
}

// GetByID retrieves a blob by ID.
func (r *blobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Blob, error) {
	query := `SELECT ` + blobColumns + ` FROM blobs WHERE id = ?`

	blob, err := scanBlob(r.db.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}

	return blob, nil
}

// Delete deletes a blob row by ID.
func (r *blobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrBlobNotFound
	}

	return nil
}

// ListUnreferenced returns blobs older than the grace period that no document references.
func (r *blobRepository) ListUnreferenced(ctx context.Context, gracePeriod time.Duration, limit int) ([]*domain.Blob, error) {
	query := `
		SELECT ` + blobColumns + `
		FROM blobs b
		WHERE b.created_at < ?
		  AND NOT EXISTS (SELECT 1 FROM documents d WHERE d.file_id = b.id)
		ORDER BY b.created_at ASC
		LIMIT ?
	`

	cutoff := formatTime(time.Now().Add(-gracePeriod))
	rows, err := r.db.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unreferenced blobs: %w", err)
	}
	defer rows.Close()

	var blobs []*domain.Blob
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blob: %w", err)
		}
		blobs = append(blobs, blob)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blobs: %w", err)
	}

	return blobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlob(row scanner) (*domain.Blob, error) {
	var (
		blob      domain.Blob
		id        string
		createdAt string
	)

	err := row.Scan(
		&id,
		&blob.StorageName,
		&blob.Filename,
		&blob.ContentType,
		&blob.Length,
		&blob.ChunkSize,
		&blob.ChunkCount,
		&blob.Compression,
		&blob.Encrypted,
		&blob.Checksum,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if blob.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid stored blob id %q: %w", id, err)
	}
	if blob.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &blob, nil
}

var (
	_ repository.BlobRepository = (*blobRepository)(nil)
	_ scanner                   = (*sql.Row)(nil)
	_ scanner                   = (*sql.Rows)(nil)
)
