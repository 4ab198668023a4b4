// Package filesystem stores chunks as files on a local disk.
//
// Layout:
//
//	{data_dir}/{ab}/{cd}/{blob key}/00000000.chunk
//	{data_dir}/.tmp/
//
// Chunks are written to the temp directory and renamed into place, so a
// chunk file either exists complete or not at all.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/storage"
)

const tempDirName = ".tmp"

// Config contains filesystem backend settings.
type Config struct {
	DataDir  string
	DirMode  fs.FileMode
	FileMode fs.FileMode
}

// Backend implements storage.ChunkBackend on the local filesystem.
type Backend struct {
	config Config
	tmpDir string
	logger zerolog.Logger
}

// NewBackend creates the data directory and returns a Backend.
func NewBackend(config Config, logger zerolog.Logger) (*Backend, error) {
	if config.DataDir == "" {
		return nil, errors.New("filesystem backend: data directory is required")
	}
	if config.DirMode == 0 {
		config.DirMode = 0o750
	}
	if config.FileMode == 0 {
		config.FileMode = 0o640
	}

	tmpDir := filepath.Join(config.DataDir, tempDirName)
	if err := os.MkdirAll(tmpDir, config.DirMode); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Backend{
		config: config,
		tmpDir: tmpDir,
		logger: logger.With().Str("component", "fs-backend").Logger(),
	}, nil
}

func (b *Backend) blobDir(blobID uuid.UUID) string {
	return storage.BlobDir(b.config.DataDir, blobID)
}

func (b *Backend) chunkPath(blobID uuid.UUID, seq int) string {
	return storage.ChunkPath(b.config.DataDir, blobID, seq)
}

// PutChunk implements storage.ChunkBackend.
func (b *Backend) PutChunk(ctx context.Context, chunk *domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := b.blobDir(chunk.BlobID)
	if err := os.MkdirAll(dir, b.config.DirMode); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(b.tmpDir, "chunk-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Remove the temp file unless it was renamed into place.
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(chunk.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close chunk: %w", err)
	}
	if err := os.Chmod(tmpPath, b.config.FileMode); err != nil {
		return fmt.Errorf("failed to set chunk permissions: %w", err)
	}

	if err := os.Rename(tmpPath, b.chunkPath(chunk.BlobID, chunk.Seq)); err != nil {
		return fmt.Errorf("failed to commit chunk: %w", err)
	}
	committed = true

	return nil
}

// GetChunk implements storage.ChunkBackend.
func (b *Backend) GetChunk(ctx context.Context, blobID uuid.UUID, seq int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(b.chunkPath(blobID, seq))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, fmt.Errorf("failed to read chunk: %w", err)
	}
	return data, nil
}

// DeleteChunks implements storage.ChunkBackend.
func (b *Backend) DeleteChunks(ctx context.Context, blobID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := b.blobDir(blobID)
	// Idempotent: RemoveAll doesn't fail if the directory doesn't exist.
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete blob directory: %w", err)
	}

	b.cleanupEmptyDirs(filepath.Dir(dir))
	return nil
}

// cleanupEmptyDirs removes empty shard directories up to the data directory.
func (b *Backend) cleanupEmptyDirs(dir string) {
	root := filepath.Clean(b.config.DataDir)
	for dir = filepath.Clean(dir); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		// os.Remove fails on non-empty directories, which ends the walk.
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

// HealthCheck verifies the data directory is writable.
func (b *Backend) HealthCheck(ctx context.Context) error {
	f, err := os.CreateTemp(b.tmpDir, "health-*")
	if err != nil {
		return fmt.Errorf("data directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

var (
	_ storage.ChunkBackend  = (*Backend)(nil)
	_ storage.HealthChecker = (*Backend)(nil)
)
