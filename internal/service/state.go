package service

import (
	"context"
	"sync"

	"github.com/prn-tf/alexander-docstore/internal/domain"
)

// Services groups the pipelines that become available once the storage
// backend is initialized.
type Services struct {
	Blobs     *BlobRegistry
	Catalog   *CatalogService
	Uploads   *UploadService
	Documents *DocumentService
	GC        *GarbageCollector

	// Health probes the backing stores for the readiness endpoint. Optional.
	Health func(ctx context.Context) error
}

// State is the readiness gate of the runtime. The HTTP server starts before
// the backend is connected; until MarkReady is called every request fails
// fast with domain.ErrServiceUnavailable instead of blocking.
type State struct {
	mu       sync.RWMutex
	services *Services
}

// NewState creates a State that is not ready.
func NewState() *State {
	return &State{}
}

// MarkReady publishes the initialized services. It can only be called once.
func (s *State) MarkReady(services *Services) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.services != nil {
		return ErrAlreadyReady
	}
	s.services = services
	return nil
}

// Ready reports whether the services are initialized.
func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services != nil
}

// Services returns the initialized services or domain.ErrServiceUnavailable.
func (s *State) Services() (*Services, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.services == nil {
		return nil, domain.ErrServiceUnavailable
	}
	return s.services, nil
}
