package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

// chunkRepository stores chunk frames in the chunks table.
type chunkRepository struct {
	db *DB
}

// NewChunkRepository creates a new SQLite chunk repository.
func NewChunkRepository(db *DB) repository.ChunkRepository {
	return &chunkRepository{db: db}
}

// PutChunk stores one chunk. Rewriting the same (blob, seq) replaces it.
func (r *chunkRepository) PutChunk(ctx context.Context, chunk *domain.Chunk) error {
	query := `
		INSERT INTO chunks (blob_id, seq, size, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (blob_id, seq) DO UPDATE SET size = excluded.size, data = excluded.data
	`

	_, err := r.db.db.ExecContext(ctx, query, chunk.BlobID.String(), chunk.Seq, chunk.Size, chunk.Data)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

// GetChunk returns the stored frame of a chunk.
func (r *chunkRepository) GetChunk(ctx context.Context, blobID uuid.UUID, seq int) ([]byte, error) {
	var data []byte
	err := r.db.db.QueryRowContext(ctx,
		`SELECT data FROM chunks WHERE blob_id = ? AND seq = ?`,
		blobID.String(), seq,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return data, nil
}

// DeleteChunks removes every chunk of a blob.
func (r *chunkRepository) DeleteChunks(ctx context.Context, blobID uuid.UUID) error {
	if _, err := r.db.db.ExecContext(ctx, `DELETE FROM chunks WHERE blob_id = ?`, blobID.String()); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (r *chunkRepository) HealthCheck(ctx context.Context) error {
	return r.db.Ping(ctx)
}

var _ repository.ChunkRepository = (*chunkRepository)(nil)
