package postgres

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/config"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

func init() {
	repository.Register("postgres", Open)
}

// Open connects to PostgreSQL and builds the repositories.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.Store, error) {
	db, err := NewDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &repository.Store{
		Repos: &repository.Repositories{
			Blob:     NewBlobRepository(db),
			Chunk:    NewChunkRepository(db),
			Document: NewDocumentRepository(db),
		},
		Database: db,
	}, nil
}
