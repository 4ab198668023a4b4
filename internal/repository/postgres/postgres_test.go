package postgres

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-docstore/internal/config"
	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

// testConfig points at DOCSTORE_TEST_POSTGRES_HOST or skips. User, password
// and database default to docstore.
func testConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()

	host := os.Getenv("DOCSTORE_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("DOCSTORE_TEST_POSTGRES_HOST not set")
	}
	env := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}
	port, err := strconv.Atoi(env("DOCSTORE_TEST_POSTGRES_PORT", "5432"))
	require.NoError(t, err)

	return config.DatabaseConfig{
		Driver:       "postgres",
		Host:         host,
		Port:         port,
		User:         env("DOCSTORE_TEST_POSTGRES_USER", "docstore"),
		Password:     env("DOCSTORE_TEST_POSTGRES_PASSWORD", "docstore"),
		Database:     env("DOCSTORE_TEST_POSTGRES_DB", "docstore"),
		SSLMode:      "disable",
		MaxOpenConns: 4,
	}
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	db, err := NewDB(ctx, testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE documents, chunks, blobs`)
	require.NoError(t, err)
	return db
}

// stamp rounds to the microsecond precision of TIMESTAMPTZ.
func stamp(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Microsecond)
}

func testBlob(createdAt time.Time) *domain.Blob {
	return &domain.Blob{
		ID:          uuid.New(),
		StorageName: uuid.NewString() + ".pdf",
		Filename:    "paper.pdf",
		ContentType: "application/pdf",
		Length:      10,
		ChunkSize:   8,
		ChunkCount:  2,
		Compression: "none",
		Checksum:    "abc",
		CreatedAt:   stamp(createdAt),
	}
}

func testDocument(blob *domain.Blob, title string, createdAt time.Time) *domain.Document {
	return &domain.Document{
		ID:          uuid.New(),
		Title:       title,
		Author:      domain.DefaultAuthor,
		Price:       4.5,
		Category:    "science",
		FileID:      blob.ID,
		Filename:    blob.Filename,
		ContentType: blob.ContentType,
		Size:        blob.Length,
		CreatedAt:   stamp(createdAt),
		Locked:      true,
	}
}

func TestDB_ConcurrentMigrate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	other, err := NewDB(ctx, testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer other.Close()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, d := range []*DB{db, other} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = d.Migrate(ctx)
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	version, err := db.MigrationVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, version)
	require.NoError(t, db.Health(ctx))
}

func TestBlobRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewBlobRepository(newTestDB(t))

	blob := testBlob(time.Now())
	blob.Encrypted = true
	require.NoError(t, repo.Create(ctx, blob))
	require.ErrorContains(t, repo.Create(ctx, blob), "already exists")

	got, err := repo.GetByID(ctx, blob.ID)
	require.NoError(t, err)
	require.Equal(t, blob.StorageName, got.StorageName)
	require.Equal(t, blob.ChunkCount, got.ChunkCount)
	require.True(t, got.Encrypted)
	require.True(t, blob.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, repo.Delete(ctx, blob.ID))
	_, err = repo.GetByID(ctx, blob.ID)
	require.ErrorIs(t, err, domain.ErrBlobNotFound)
	require.ErrorIs(t, repo.Delete(ctx, blob.ID), domain.ErrBlobNotFound)
}

func TestBlobRepository_ListUnreferenced(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	blobs := NewBlobRepository(db)
	docs := NewDocumentRepository(db)

	old := time.Now().Add(-48 * time.Hour)
	orphan := testBlob(old)
	referenced := testBlob(old)
	recent := testBlob(time.Now())

	for _, b := range []*domain.Blob{orphan, referenced, recent} {
		require.NoError(t, blobs.Create(ctx, b))
	}
	require.NoError(t, docs.Create(ctx, testDocument(referenced, "kept", old)))

	got, err := blobs.ListUnreferenced(ctx, 24*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, orphan.ID, got[0].ID)
}

func TestChunkRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(newTestDB(t))
	blobID := uuid.New()

	_, err := repo.GetChunk(ctx, blobID, 0)
	require.ErrorIs(t, err, domain.ErrChunkNotFound)

	require.NoError(t, repo.PutChunk(ctx, &domain.Chunk{BlobID: blobID, Seq: 0, Size: 3, Data: []byte("abc")}))
	require.NoError(t, repo.PutChunk(ctx, &domain.Chunk{BlobID: blobID, Seq: 1, Size: 2, Data: []byte("de")}))
	require.NoError(t, repo.PutChunk(ctx, &domain.Chunk{BlobID: blobID, Seq: 1, Size: 2, Data: []byte("fg")}))

	data, err := repo.GetChunk(ctx, blobID, 1)
	require.NoError(t, err)
	require.Equal(t, "fg", string(data))

	require.NoError(t, repo.DeleteChunks(ctx, blobID))
	_, err = repo.GetChunk(ctx, blobID, 0)
	require.ErrorIs(t, err, domain.ErrChunkNotFound)
	require.NoError(t, repo.DeleteChunks(ctx, blobID))
}

func TestDocumentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))
	blob := testBlob(time.Now())

	doc := testDocument(blob, "Physics", time.Now())
	doc.Description = "notes"
	require.NoError(t, repo.Create(ctx, doc))

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.Title, got.Title)
	require.Equal(t, doc.FileID, got.FileID)
	require.Equal(t, doc.Price, got.Price)
	require.Equal(t, "notes", got.Description)
	require.True(t, got.Locked)
	require.True(t, doc.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, repo.Delete(ctx, doc.ID))
	_, err = repo.GetByID(ctx, doc.ID)
	require.ErrorIs(t, err, domain.ErrDocumentNotFound)
	require.ErrorIs(t, repo.Delete(ctx, doc.ID), domain.ErrNotFound)
}

func TestDocumentRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))
	blob := testBlob(time.Now())

	empty, err := repo.List(ctx)
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := testDocument(blob, "second", base.Add(time.Second))
	first := testDocument(blob, "first", base)
	tieA := testDocument(blob, "tie", base.Add(10*time.Second))
	tieB := testDocument(blob, "tie", base.Add(10*time.Second))
	for _, d := range []*domain.Document{second, first, tieA, tieB} {
		require.NoError(t, repo.Create(ctx, d))
	}

	docs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 4)

	// Equal timestamps fall back to id order.
	hi, lo := tieA.ID, tieB.ID
	if hi.String() < lo.String() {
		hi, lo = lo, hi
	}
	require.Equal(t, []uuid.UUID{hi, lo, second.ID, first.ID},
		[]uuid.UUID{docs[0].ID, docs[1].ID, docs[2].ID, docs[3].ID})
}

func TestFactory_OpenPostgres(t *testing.T) {
	ctx := context.Background()
	factory := repository.NewFactory(testConfig(t), zerolog.Nop())
	require.False(t, factory.IsEmbedded())
	require.Contains(t, repository.Drivers(), "postgres")

	store, err := factory.Open(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { store.Database.Close() })

	require.NoError(t, store.Database.Migrate(ctx))
	require.NoError(t, store.Database.Health(ctx))
}
