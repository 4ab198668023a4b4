package filesystem

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/storage"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewBackend(Config{DataDir: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	return b
}

func TestBackend_PutGetChunk(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	blobID := uuid.New()

	for seq, payload := range []string{"first", "second"} {
		err := b.PutChunk(ctx, &domain.Chunk{BlobID: blobID, Seq: seq, Size: len(payload), Data: []byte(payload)})
		require.NoError(t, err)
	}

	data, err := b.GetChunk(ctx, blobID, 1)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))

	path := storage.ChunkPath(b.config.DataDir, blobID, 0)
	_, err = os.Stat(path)
	require.NoError(t, err)

	entries, err := os.ReadDir(b.tmpDir)
	require.NoError(t, err)
	require.Empty(t, entries, "temp files must be renamed into place")
}

func TestBackend_GetChunkNotFound(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.GetChunk(context.Background(), uuid.New(), 0)
	require.ErrorIs(t, err, domain.ErrChunkNotFound)
	require.True(t, storage.IsNotFound(err))
}

func TestBackend_DeleteChunks(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	blobID := uuid.New()

	require.NoError(t, b.PutChunk(ctx, &domain.Chunk{BlobID: blobID, Seq: 0, Size: 1, Data: []byte("x")}))
	require.NoError(t, b.DeleteChunks(ctx, blobID))

	_, err := b.GetChunk(ctx, blobID, 0)
	require.ErrorIs(t, err, domain.ErrChunkNotFound)

	_, err = os.Stat(storage.BlobDir(b.config.DataDir, blobID))
	require.True(t, os.IsNotExist(err))

	// Second delete is a no-op.
	require.NoError(t, b.DeleteChunks(ctx, blobID))
}

func TestBackend_HealthCheck(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.HealthCheck(context.Background()))
}

func TestNewBackend_RequiresDataDir(t *testing.T) {
	_, err := NewBackend(Config{}, zerolog.Nop())
	require.Error(t, err)
}
