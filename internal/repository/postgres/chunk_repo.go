package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

// chunkRepository stores chunk frames in the chunks table.
type chunkRepository struct {
	db *DB
}

// NewChunkRepository creates a new PostgreSQL chunk repository.
func NewChunkRepository(db *DB) repository.ChunkRepository {
	return &chunkRepository{db: db}
}

// PutChunk stores one chunk. Rewriting the same (blob, seq) replaces it.
func (r *chunkRepository) PutChunk(ctx context.Context, chunk *domain.Chunk) error {
	query := `
		INSERT INTO chunks (blob_id, seq, size, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (blob_id, seq) DO UPDATE SET size = EXCLUDED.size, data = EXCLUDED.data
	`

	if _, err := r.db.Pool.Exec(ctx, query, chunk.BlobID, chunk.Seq, chunk.Size, chunk.Data); err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

// GetChunk returns the stored frame of a chunk.
func (r *chunkRepository) GetChunk(ctx context.Context, blobID uuid.UUID, seq int) ([]byte, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT data FROM chunks WHERE blob_id = $1 AND seq = $2`,
		blobID, seq,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return data, nil
}

// DeleteChunks removes every chunk of a blob.
func (r *chunkRepository) DeleteChunks(ctx context.Context, blobID uuid.UUID) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM chunks WHERE blob_id = $1`, blobID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (r *chunkRepository) HealthCheck(ctx context.Context) error {
	return r.db.Ping(ctx)
}

var _ repository.ChunkRepository = (*chunkRepository)(nil)
