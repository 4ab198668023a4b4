package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

// CatalogService manages document metadata records.
type CatalogService struct {
	docRepo  repository.DocumentRepository
	cache    repository.Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// CatalogConfig contains optional catalog settings.
type CatalogConfig struct {
	// Cache holds documents read by Get. Nil disables caching.
	Cache repository.Cache

	// CacheTTL is how long a cached document stays valid.
	CacheTTL time.Duration

	// Clock overrides time.Now. Used by tests.
	Clock func() time.Time
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(
	docRepo repository.DocumentRepository,
	logger zerolog.Logger,
	config CatalogConfig,
) *CatalogService {
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CatalogService{
		docRepo:  docRepo,
		cache:    config.Cache,
		cacheTTL: config.CacheTTL,
		logger:   logger.With().Str("service", "catalog").Logger(),
		now:      clock,
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// CreateDocumentInput contains the data needed to create a document.
type CreateDocumentInput struct {
	Fields domain.DocumentFields
	Blob   *domain.Blob
}

// =============================================================================
// Service Methods
// =============================================================================

// Create validates the fields, applies defaults and persists a new document.
func (s *CatalogService) Create(ctx context.Context, input CreateDocumentInput) (*domain.Document, error) {
	doc, err := domain.NewDocument(input.Fields, input.Blob, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		s.logger.Error().Err(err).Str("title", doc.Title).Msg("failed to create document")
		return nil, err
	}

	s.logger.Info().
		Str("document_id", doc.ID.String()).
		Str("file_id", doc.FileID.String()).
		Bool("locked", doc.Locked).
		Msg("document created")

	return doc, nil
}

// List returns every document, newest first.
func (s *CatalogService) List(ctx context.Context) ([]*domain.Document, error) {
	docs, err := s.docRepo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list documents")
		return nil, err
	}
	return docs, nil
}

// Get returns a document. A malformed id is reported as not found.
func (s *CatalogService) Get(ctx context.Context, rawID string) (*domain.Document, error) {
	id, err := domain.ParseID(rawID)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrDocumentNotFound, "malformed id", rawID)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns a document by parsed id, reading through the cache.
func (s *CatalogService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	if doc, ok := s.cached(ctx, id); ok {
		return doc, nil
	}

	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.remember(ctx, doc)
	return doc, nil
}

// Delete removes a document. A malformed id is reported as not found.
func (s *CatalogService) Delete(ctx context.Context, rawID string) error {
	id, err := domain.ParseID(rawID)
	if err != nil {
		return domain.NewDomainError(domain.ErrDocumentNotFound, "malformed id", rawID)
	}
	return s.DeleteByID(ctx, id)
}

// DeleteByID removes a document by parsed id.
func (s *CatalogService) DeleteByID(ctx context.Context, id uuid.UUID) error {
	if err := s.docRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.evict(ctx, id)

	s.logger.Info().Str("document_id", id.String()).Msg("document deleted")
	return nil
}

func (s *CatalogService) cached(ctx context.Context, id uuid.UUID) (*domain.Document, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(ctx, repository.CacheKey{}.Document(id))
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Debug().Err(err).Msg("document cache lookup failed")
		}
		return nil, false
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	return &doc, true
}

func (s *CatalogService) remember(ctx context.Context, doc *domain.Document) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, repository.CacheKey{}.Document(doc.ID), data, s.cacheTTL); err != nil {
		s.logger.Debug().Err(err).Msg("document cache write failed")
	}
}

func (s *CatalogService) evict(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, repository.CacheKey{}.Document(id)); err != nil {
		s.logger.Warn().Err(err).Str("document_id", id.String()).Msg("document cache eviction failed")
	}
}
