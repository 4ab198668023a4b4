package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

const blobColumns = `id, storage_name, filename, content_type, length, chunk_size,
	chunk_count, compression, encrypted, checksum, created_at`

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// blobRepository implements repository.BlobRepository.
type blobRepository struct {
	q Querier
}

// NewBlobRepository creates a new PostgreSQL blob repository.
func NewBlobRepository(db *DB) repository.BlobRepository {
	return &blobRepository{q: db.Pool}
}

// Create inserts a committed blob.
func (r *blobRepository) Create(ctx context.Context, blob *domain.Blob) error {
	query := `
		INSERT INTO blobs (` + blobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.Exec(ctx, query,
		blob.ID,
		blob.StorageName,
		blob.Filename,
		blob.ContentType,
		blob.Length,
		blob.ChunkSize,
		blob.ChunkCount,
		blob.Compression,
		blob.Encrypted,
		blob.Checksum,
		blob.CreatedAt.UTC(),
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
	query := `SELECT ` + blobColumns + ` FROM blobs WHERE id = $1`

	blob, err := scanBlob(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}

	return blob, nil
}

// Delete deletes a blob row by ID.
func (r *blobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.q.Exec(ctx, `DELETE FROM blobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrBlobNotFound
	}

	return nil
}

// ListUnreferenced returns blobs older than the grace period that no document references.
func (r *blobRepository) ListUnreferenced(ctx context.Context, gracePeriod time.Duration, limit int) ([]*domain.Blob, error) {
	query := `
		SELECT ` + blobColumns + `
		FROM blobs b
		WHERE b.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM documents d WHERE d.file_id = b.id)
		ORDER BY b.created_at ASC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, time.Now().UTC().Add(-gracePeriod), limit)
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

func scanBlob(row pgx.Row) (*domain.Blob, error) {
	var blob domain.Blob
	err := row.Scan(
		&blob.ID,
		&blob.StorageName,
		&blob.Filename,
		&blob.ContentType,
		&blob.Length,
		&blob.ChunkSize,
		&blob.ChunkCount,
		&blob.Compression,
		&blob.Encrypted,
		&blob.Checksum,
		&blob.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &blob, nil
}

var _ repository.BlobRepository = (*blobRepository)(nil)
