package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/metrics"
	"github.com/prn-tf/alexander-docstore/internal/pkg/crypto"
)

// ChunkStoreConfig contains chunk store settings.
type ChunkStoreConfig struct {
	// ChunkSize is the maximum decoded size of one chunk.
	ChunkSize int

	// MaxBlobSize caps the total size of a written blob. 0 disables the cap.
	MaxBlobSize int64
}

// ChunkStore splits byte streams into chunks and reassembles them.
// It holds at most one chunk in memory per write or read.
type ChunkStore struct {
	backend ChunkBackend
	codec   *Codec
	config  ChunkStoreConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// WriteResult describes a fully written chunk set.
type WriteResult struct {
	Length      int64
	ChunkSize   int
	ChunkCount  int
	Checksum    string
	Compression string
	Encrypted   bool
}

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(
	backend ChunkBackend,
	codec *Codec,
	config ChunkStoreConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ChunkStore {
	if config.ChunkSize <= 0 {
		config.ChunkSize = domain.DefaultChunkSize
	}
	if codec == nil {
		codec = NewCodec(CompressionNone, nil)
	}
	return &ChunkStore{
		backend: backend,
		codec:   codec,
		config:  config,
		metrics: m,
		logger:  logger.With().Str("component", "chunkstore").Logger(),
	}
}

// ChunkSize returns the configured chunk size.
func (s *ChunkStore) ChunkSize() int {
	return s.config.ChunkSize
}

// Backend returns the underlying chunk backend.
func (s *ChunkStore) Backend() ChunkBackend {
	return s.backend
}

// Write consumes r and persists it as the chunk set of blobID.
// Chunks are written sequentially with strictly increasing sequence numbers.
// No result is returned unless every chunk was stored; on failure the chunks
// written so far are removed best-effort.
func (s *ChunkStore) Write(ctx context.Context, blobID uuid.UUID, r io.Reader) (*WriteResult, error) {
	hr := crypto.NewHashReader(r)
	buf := make([]byte, s.config.ChunkSize)
	seq := 0
	attempted := false

	fail := func(err error) (*WriteResult, error) {
		if attempted {
			s.discard(ctx, blobID)
		}
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		n, readErr := io.ReadFull(hr, buf)
		if n > 0 {
			if s.config.MaxBlobSize > 0 && hr.Size() > s.config.MaxBlobSize {
				return fail(domain.ErrPayloadTooLarge)
			}

			frame, err := s.codec.Encode(blobID, seq, buf[:n])
			if err != nil {
				return fail(domain.StorageError("encode chunk", err))
			}

			chunk := &domain.Chunk{BlobID: blobID, Seq: seq, Size: n, Data: frame}
			attempted = true
			if err := s.backend.PutChunk(ctx, chunk); err != nil {
				s.logger.Error().Err(err).
					Str("blob_id", blobID.String()).
					Int("seq", seq).
					Msg("failed to write chunk")
				return fail(domain.StorageError(fmt.Sprintf("write chunk %d", seq), err))
			}

			s.metrics.RecordChunkWrite(len(frame))
			seq++
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return fail(fmt.Errorf("%w: reading upload stream: %w", domain.ErrBadRequest, readErr))
		}
	}

	result := &WriteResult{
		Length:      hr.Size(),
		ChunkSize:   s.config.ChunkSize,
		ChunkCount:  seq,
		Checksum:    hr.Checksum(),
		Compression: s.codec.Compression().String(),
		Encrypted:   s.codec.Encrypted(),
	}

	s.logger.Debug().
		Str("blob_id", blobID.String()).
		Int64("length", result.Length).
		Int("chunks", result.ChunkCount).
		Msg("chunk set written")

	return result, nil
}

// Open returns a lazy reader over the chunks of blob.
// The first chunk is fetched eagerly so that a missing blob is reported as
// domain.ErrBlobNotFound before any byte is handed to the caller.
func (s *ChunkStore) Open(ctx context.Context, blob *domain.Blob) (*ChunkReader, error) {
	reader := newChunkReader(ctx, s, blob)
	if blob.ChunkCount == 0 {
		return reader, nil
	}

	first, err := reader.fetch(0)
	if err != nil {
		if errors.Is(err, domain.ErrChunkMissing) {
			return nil, domain.NewDomainError(domain.ErrBlobNotFound, "no chunk data", blob.ID.String())
		}
		return nil, err
	}
	reader.pending = first

	return reader, nil
}

// Delete removes every chunk of blobID. Deleting an unknown blob is a no-op.
func (s *ChunkStore) Delete(ctx context.Context, blobID uuid.UUID) error {
	if err := s.backend.DeleteChunks(ctx, blobID); err != nil {
		if IsNotFound(err) {
			return nil
		}
		return domain.StorageError("delete chunks", err)
	}
	return nil
}

// discard removes a partially written chunk set. It is best-effort and uses
// a context detached from cancellation so a disconnect still cleans up.
func (s *ChunkStore) discard(ctx context.Context, blobID uuid.UUID) {
	if err := s.Delete(context.WithoutCancel(ctx), blobID); err != nil {
		s.metrics.RecordCleanupFailure()
		s.logger.Warn().Err(err).
			Str("blob_id", blobID.String()).
			Msg("failed to discard partial chunk set")
	}
}
