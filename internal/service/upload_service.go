package service

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/metrics"
)

// UploadState is the state of one upload pipeline run.
type UploadState string

const (
	UploadReceiving   UploadState = "receiving"
	UploadStoring     UploadState = "storing"
	UploadRegistering UploadState = "registering"
	UploadCommitted   UploadState = "committed"
	UploadFailed      UploadState = "failed"
)

// Readiness reports whether the storage backend is initialized.
type Readiness interface {
	Ready() bool
}

// UploadService runs the upload pipeline: the file is stored as a blob, then
// a document referencing it is registered in the catalog.
type UploadService struct {
	blobs     *BlobRegistry
	catalog   *CatalogService
	readiness Readiness
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewUploadService creates a new UploadService. A nil readiness means always ready.
func NewUploadService(
	blobs *BlobRegistry,
	catalog *CatalogService,
	readiness Readiness,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *UploadService {
	return &UploadService{
		blobs:     blobs,
		catalog:   catalog,
		readiness: readiness,
		metrics:   m,
		logger:    logger.With().Str("service", "upload").Logger(),
	}
}

// FilePart is the file section of an upload.
type FilePart struct {
	Body        io.Reader
	Filename    string
	ContentType string
}

// UploadInput contains a complete upload.
type UploadInput struct {
	File   *FilePart
	Fields domain.DocumentFields
}

// Upload tracks one run of the pipeline. It is not safe for concurrent use.
type Upload struct {
	svc   *UploadService
	state UploadState
	blob  *domain.Blob
	doc   *domain.Document
	err   error
}

// Begin starts an upload in the Receiving state.
// Returns domain.ErrServiceUnavailable if the backend is not ready.
func (s *UploadService) Begin(ctx context.Context) (*Upload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.readiness != nil && !s.readiness.Ready() {
		return nil, domain.ErrServiceUnavailable
	}
	return &Upload{svc: s, state: UploadReceiving}, nil
}

// Upload runs the whole pipeline for a request whose file and fields are
// both available.
func (s *UploadService) Upload(ctx context.Context, input UploadInput) (*domain.Document, error) {
	upload, err := s.Begin(ctx)
	if err != nil {
		return nil, err
	}

	if input.File != nil {
		if _, err := upload.Store(ctx, *input.File); err != nil {
			return nil, err
		}
	}

	return upload.Commit(ctx, input.Fields)
}

// State returns the current state.
func (u *Upload) State() UploadState {
	return u.state
}

// Blob returns the stored blob, or nil before Store succeeded.
func (u *Upload) Blob() *domain.Blob {
	return u.blob
}

// Err returns the error that moved the upload to Failed.
func (u *Upload) Err() error {
	return u.err
}

// Store writes the file part as a blob.
func (u *Upload) Store(ctx context.Context, part FilePart) (*domain.Blob, error) {
	if u.state != UploadReceiving {
		return nil, ErrUploadState
	}
	if part.Body == nil {
		return nil, u.fail(domain.ErrNoFile)
	}

	u.state = UploadStoring
	blob, err := u.svc.blobs.Create(ctx, CreateBlobInput{
		Body:        part.Body,
		Filename:    part.Filename,
		ContentType: part.ContentType,
	})
	if err != nil {
		return nil, u.fail(err)
	}

	u.blob = blob
	return blob, nil
}

// Commit registers the document for the stored blob.
//
// Fields are validated before the catalog is touched; on a validation error
// the unreferenced blob is removed. If the catalog write itself fails the blob
// is kept and left to the orphan collector.
func (u *Upload) Commit(ctx context.Context, fields domain.DocumentFields) (*domain.Document, error) {
	switch u.state {
	case UploadReceiving:
		return nil, u.fail(domain.ErrNoFile)
	case UploadStoring:
	default:
		return nil, ErrUploadState
	}
	if u.blob == nil {
		return nil, u.fail(domain.ErrNoFile)
	}

	u.state = UploadRegistering

	if err := fields.Validate(); err != nil {
		u.discardBlob(ctx)
		return nil, u.fail(err)
	}

	doc, err := u.svc.catalog.Create(ctx, CreateDocumentInput{Fields: fields, Blob: u.blob})
	if err != nil {
		u.svc.logger.Error().Err(err).
			Str("blob_id", u.blob.ID.String()).
			Msg("catalog write failed, blob left unreferenced")
		return nil, u.fail(err)
	}

	u.doc = doc
	u.state = UploadCommitted
	u.svc.metrics.RecordUpload(string(UploadCommitted), u.blob.Length)

	return doc, nil
}

// Abort fails the upload and removes a stored blob best-effort.
// Aborting a committed or failed upload is a no-op.
func (u *Upload) Abort(ctx context.Context, cause error) {
	if u.state == UploadCommitted || u.state == UploadFailed {
		return
	}
	u.discardBlob(ctx)
	u.fail(cause)
}

func (u *Upload) fail(err error) error {
	u.state = UploadFailed
	u.err = err
	u.svc.metrics.RecordUpload(string(UploadFailed), 0)
	u.svc.logger.Debug().Err(err).Msg("upload failed")
	return err
}

func (u *Upload) discardBlob(ctx context.Context) {
	if u.blob == nil {
		return
	}
	if err := u.svc.blobs.Delete(context.WithoutCancel(ctx), u.blob.ID); err != nil {
		u.svc.metrics.RecordCleanupFailure()
		u.svc.logger.Warn().Err(err).
			Str("blob_id", u.blob.ID.String()).
			Msg("failed to remove blob of rejected upload")
	}
}
