package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/metrics"
	"github.com/prn-tf/alexander-docstore/internal/pkg/crypto"
	"github.com/prn-tf/alexander-docstore/internal/repository"
	"github.com/prn-tf/alexander-docstore/internal/storage"
)

// BlobRegistry names, commits, resolves and deletes blobs.
// Chunks are written first; the blob row inserted afterwards is the commit
// marker that makes a blob resolvable.
type BlobRegistry struct {
	blobRepo repository.BlobRepository
	store    *storage.ChunkStore
	cache    repository.Cache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// BlobRegistryConfig contains optional registry settings.
type BlobRegistryConfig struct {
	// Cache holds resolved blob rows. Nil disables caching.
	Cache repository.Cache

	// CacheTTL is how long a resolved blob stays cached.
	CacheTTL time.Duration

	// Clock overrides time.Now. Used by tests.
	Clock func() time.Time
}

// NewBlobRegistry creates a new BlobRegistry.
func NewBlobRegistry(
	blobRepo repository.BlobRepository,
	store *storage.ChunkStore,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config BlobRegistryConfig,
) *BlobRegistry {
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	return &BlobRegistry{
		blobRepo: blobRepo,
		store:    store,
		cache:    config.Cache,
		cacheTTL: config.CacheTTL,
		metrics:  m,
		logger:   logger.With().Str("service", "blob").Logger(),
		now:      clock,
	}
}

// CreateBlobInput contains the data needed to store a blob.
type CreateBlobInput struct {
	Body        io.Reader
	Filename    string
	ContentType string
}

// Create streams input.Body into the chunk store and commits the blob row.
// If the row cannot be inserted the written chunks are removed best-effort.
func (r *BlobRegistry) Create(ctx context.Context, input CreateBlobInput) (*domain.Blob, error) {
	if input.Body == nil {
		return nil, domain.ErrNoFile
	}

	storageName, err := crypto.GenerateStorageName(domain.StorageExtension(input.Filename))
	if err != nil {
		return nil, domain.StorageError("generate storage name", err)
	}

	contentType := strings.TrimSpace(input.ContentType)
	if contentType == "" {
		contentType = domain.DefaultContentType
	}

	blobID := uuid.New()
	result, err := r.store.Write(ctx, blobID, input.Body)
	if err != nil {
		return nil, err
	}

	blob := &domain.Blob{
		ID:          blobID,
		StorageName: storageName,
		Filename:    input.Filename,
		ContentType: contentType,
		Length:      result.Length,
		ChunkSize:   result.ChunkSize,
		ChunkCount:  result.ChunkCount,
		Compression: result.Compression,
		Encrypted:   result.Encrypted,
		Checksum:    result.Checksum,
		CreatedAt:   r.now().UTC(),
	}

	if err := r.blobRepo.Create(ctx, blob); err != nil {
		r.discardChunks(ctx, blobID)
		return nil, domain.StorageError("commit blob", err)
	}

	r.logger.Info().
		Str("blob_id", blob.ID.String()).
		Str("storage_name", blob.StorageName).
		Int64("length", blob.Length).
		Int("chunks", blob.ChunkCount).
		Msg("blob committed")

	return blob, nil
}

// Resolve returns the committed blob with the given id.
// Returns domain.ErrBlobNotFound if it does not exist.
func (r *BlobRegistry) Resolve(ctx context.Context, id uuid.UUID) (*domain.Blob, error) {
	if blob, ok := r.cached(ctx, id); ok {
		return blob, nil
	}

	blob, err := r.blobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.remember(ctx, blob)
	return blob, nil
}

// Open resolves a blob and returns a lazy reader over its chunks.
func (r *BlobRegistry) Open(ctx context.Context, id uuid.UUID) (*storage.ChunkReader, error) {
	blob, err := r.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.store.Open(ctx, blob)
}

// Delete removes the blob row and then its chunks.
// Deleting an unknown blob is a no-op.
func (r *BlobRegistry) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.blobRepo.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
		return err
	}
	r.evict(ctx, id)

	// Chunks are removed even without a row: they may be left over from an
	// upload whose commit failed.
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}

	r.logger.Debug().Str("blob_id", id.String()).Msg("blob deleted")
	return nil
}

func (r *BlobRegistry) discardChunks(ctx context.Context, id uuid.UUID) {
	if err := r.store.Delete(context.WithoutCancel(ctx), id); err != nil {
		r.metrics.RecordCleanupFailure()
		r.logger.Warn().Err(err).
			Str("blob_id", id.String()).
			Msg("failed to remove chunks of uncommitted blob")
	}
}

// =============================================================================
// Cache helpers
// =============================================================================

func (r *BlobRegistry) cached(ctx context.Context, id uuid.UUID) (*domain.Blob, bool) {
	if r.cache == nil {
		return nil, false
	}

	data, err := r.cache.Get(ctx, repository.CacheKey{}.Blob(id))
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			r.logger.Debug().Err(err).Msg("blob cache lookup failed")
		}
		return nil, false
	}

	var blob domain.Blob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, false
	}
	return &blob, true
}

func (r *BlobRegistry) remember(ctx context.Context, blob *domain.Blob) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, repository.CacheKey{}.Blob(blob.ID), data, r.cacheTTL); err != nil {
		r.logger.Debug().Err(err).Msg("blob cache write failed")
	}
}

func (r *BlobRegistry) evict(ctx context.Context, id uuid.UUID) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, repository.CacheKey{}.Blob(id)); err != nil {
		r.logger.Debug().Err(err).Msg("blob cache eviction failed")
	}
}
