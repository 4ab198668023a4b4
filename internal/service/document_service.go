package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/metrics"
	"github.com/prn-tf/alexander-docstore/internal/storage"
)

// DocumentService serves document files and deletes documents together
// with their blobs.
type DocumentService struct {
	catalog *CatalogService
	blobs   *BlobRegistry
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(
	catalog *CatalogService,
	blobs *BlobRegistry,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *DocumentService {
	return &DocumentService{
		catalog: catalog,
		blobs:   blobs,
		metrics: m,
		logger:  logger.With().Str("service", "document").Logger(),
	}
}

// OpenFileOutput is an opened document file.
type OpenFileOutput struct {
	// Document is nil when the id addressed a blob directly.
	Document *domain.Document
	Blob     *domain.Blob
	Reader   *storage.ChunkReader
}

// Filename returns the name the file should be served under.
func (o *OpenFileOutput) Filename() string {
	if o.Document != nil && o.Document.Filename != "" {
		return o.Document.Filename
	}
	if o.Blob.Filename != "" {
		return o.Blob.Filename
	}
	return o.Blob.StorageName
}

// OpenFile opens the file of a document for streaming.
//
// The id is first looked up as a document id. When no document has that id
// it is treated as a blob id, which is what older clients send.
// A malformed id returns domain.ErrMalformedID.
func (s *DocumentService) OpenFile(ctx context.Context, rawID string) (*OpenFileOutput, error) {
	id, err := domain.ParseID(rawID)
	if err != nil {
		return nil, err
	}

	output := &OpenFileOutput{}
	blobID := id

	doc, err := s.catalog.GetByID(ctx, id)
	switch {
	case err == nil:
		output.Document = doc
		blobID = doc.FileID
	case errors.Is(err, domain.ErrDocumentNotFound):
	default:
		return nil, err
	}

	reader, err := s.blobs.Open(ctx, blobID)
	if err != nil {
		return nil, err
	}

	output.Blob = reader.Blob()
	output.Reader = reader
	return output, nil
}

// Delete removes a document. Its blob is deleted best-effort first; the
// catalog delete decides the outcome.
func (s *DocumentService) Delete(ctx context.Context, rawID string) error {
	doc, err := s.catalog.Get(ctx, rawID)
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, doc.FileID); err != nil {
		s.metrics.RecordCleanupFailure()
		s.logger.Warn().Err(err).
			Str("document_id", doc.ID.String()).
			Str("blob_id", doc.FileID.String()).
			Msg("failed to delete blob, continuing with document delete")
	}

	return s.catalog.DeleteByID(ctx, doc.ID)
}

// List returns every document, newest first.
func (s *DocumentService) List(ctx context.Context) ([]*domain.Document, error) {
	return s.catalog.List(ctx)
}

// Get returns a document.
func (s *DocumentService) Get(ctx context.Context, rawID string) (*domain.Document, error) {
	return s.catalog.Get(ctx, rawID)
}
