package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/storage"
)

// =============================================================================
// Mock Repositories
// =============================================================================

// MockChunkBackend keeps chunk frames in memory.
type MockChunkBackend struct {
	mu        sync.Mutex
	chunks    map[string][]byte
	deleteErr error
}

func NewMockChunkBackend() *MockChunkBackend {
	return &MockChunkBackend{chunks: make(map[string][]byte)}
}

func mockChunkKey(blobID uuid.UUID, seq int) string {
	return fmt.Sprintf("%s/%08d", blobID, seq)
}

func (m *MockChunkBackend) PutChunk(_ context.Context, chunk *domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[mockChunkKey(chunk.BlobID, chunk.Seq)] = append([]byte(nil), chunk.Data...)
	return nil
}

func (m *MockChunkBackend) GetChunk(_ context.Context, blobID uuid.UUID, seq int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.chunks[mockChunkKey(blobID, seq)]
	if !ok {
		return nil, domain.ErrChunkNotFound
	}
	return data, nil
}

func (m *MockChunkBackend) DeleteChunks(_ context.Context, blobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	prefix := blobID.String() + "/"
	for key := range m.chunks {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(m.chunks, key)
		}
	}
	return nil
}

func (m *MockChunkBackend) countFor(blobID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := blobID.String() + "/"
	n := 0
	for key := range m.chunks {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (m *MockChunkBackend) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}

// MockBlobRepository is a map-backed repository.BlobRepository.
type MockBlobRepository struct {
	mu        sync.Mutex
	blobs     map[uuid.UUID]*domain.Blob
	docs      *MockDocumentRepository
	createErr error
	getCalls  int
}

func NewMockBlobRepository(docs *MockDocumentRepository) *MockBlobRepository {
	return &MockBlobRepository{blobs: make(map[uuid.UUID]*domain.Blob), docs: docs}
}

func (m *MockBlobRepository) Create(_ context.Context, blob *domain.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	copied := *blob
	m.blobs[blob.ID] = &copied
	return nil
}

func (m *MockBlobRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	blob, ok := m.blobs[id]
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	copied := *blob
	return &copied, nil
}

func (m *MockBlobRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; !ok {
		return domain.ErrBlobNotFound
	}
	delete(m.blobs, id)
	return nil
}

func (m *MockBlobRepository) ListUnreferenced(_ context.Context, gracePeriod time.Duration, limit int) ([]*domain.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-gracePeriod)
	var result []*domain.Blob
	for _, blob := range m.blobs {
		if !blob.CreatedAt.Before(cutoff) {
			continue
		}
		if m.docs != nil && m.docs.references(blob.ID) {
			continue
		}
		copied := *blob
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockBlobRepository) exists(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[id]
	return ok
}

// MockDocumentRepository is a map-backed repository.DocumentRepository.
type MockDocumentRepository struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]*domain.Document
	createErr error
	getCalls  int
}

func NewMockDocumentRepository() *MockDocumentRepository {
	return &MockDocumentRepository{docs: make(map[uuid.UUID]*domain.Document)}
}

func (m *MockDocumentRepository) Create(_ context.Context, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	copied := *doc
	m.docs[doc.ID] = &copied
	return nil
}

func (m *MockDocumentRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	doc, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copied := *doc
	return &copied, nil
}

func (m *MockDocumentRepository) List(_ context.Context) ([]*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		copied := *doc
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MockDocumentRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *MockDocumentRepository) references(blobID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.docs {
		if doc.FileID == blobID {
			return true
		}
	}
	return false
}

// =============================================================================
// Fixture
// =============================================================================

const testChunkSize = 16

type testEnv struct {
	chunks    *MockChunkBackend
	blobRepo  *MockBlobRepository
	docRepo   *MockDocumentRepository
	state     *State
	blobs     *BlobRegistry
	catalog   *CatalogService
	uploads   *UploadService
	documents *DocumentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	env := &testEnv{
		chunks:  NewMockChunkBackend(),
		docRepo: NewMockDocumentRepository(),
		state:   NewState(),
	}
	env.blobRepo = NewMockBlobRepository(env.docRepo)

	store := storage.NewChunkStore(env.chunks, nil, storage.ChunkStoreConfig{
		ChunkSize:   testChunkSize,
		MaxBlobSize: 1024,
	}, nil, logger)

	env.blobs = NewBlobRegistry(env.blobRepo, store, nil, logger, BlobRegistryConfig{})
	env.catalog = NewCatalogService(env.docRepo, logger, CatalogConfig{})
	env.uploads = NewUploadService(env.blobs, env.catalog, env.state, nil, logger)
	env.documents = NewDocumentService(env.catalog, env.blobs, nil, logger)

	require.NoError(t, env.state.MarkReady(&Services{
		Blobs:     env.blobs,
		Catalog:   env.catalog,
		Uploads:   env.uploads,
		Documents: env.documents,
	}))
	return env
}

func (e *testEnv) createBlob(t *testing.T, data []byte) *domain.Blob {
	t.Helper()
	blob, err := e.blobs.Create(context.Background(), CreateBlobInput{
		Body:        bytes.NewReader(data),
		Filename:    "Paper.PDF",
		ContentType: "application/pdf",
	})
	require.NoError(t, err)
	return blob
}

func readAllChunks(t *testing.T, r *storage.ChunkReader) []byte {
	t.Helper()
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func validFields() domain.DocumentFields {
	return domain.DocumentFields{
		Title:    "Quantum Notes",
		Price:    "12.5",
		Category: "physics",
	}
}

var errInjected = errors.New("injected failure")
