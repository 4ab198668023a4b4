// Package app wires configuration into the storage backends, repositories
// and services shared by the docstore binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/cache/memory"
	rediscache "github.com/prn-tf/alexander-docstore/internal/cache/redis"
	"github.com/prn-tf/alexander-docstore/internal/config"
	"github.com/prn-tf/alexander-docstore/internal/lock"
	"github.com/prn-tf/alexander-docstore/internal/metrics"
	"github.com/prn-tf/alexander-docstore/internal/pkg/crypto"
	"github.com/prn-tf/alexander-docstore/internal/repository"
	_ "github.com/prn-tf/alexander-docstore/internal/repository/postgres"
	_ "github.com/prn-tf/alexander-docstore/internal/repository/sqlite"
	"github.com/prn-tf/alexander-docstore/internal/service"
	"github.com/prn-tf/alexander-docstore/internal/storage"
	"github.com/prn-tf/alexander-docstore/internal/storage/filesystem"
	s3store "github.com/prn-tf/alexander-docstore/internal/storage/s3"
)

const (
	migrationLockTTL      = 5 * time.Minute
	migrationLockAttempts = 120
)

// Options controls how the application is opened.
type Options struct {
	// Migrate applies pending migrations after connecting.
	Migrate bool

	// Metrics receives instrumentation. Nil disables it.
	Metrics *metrics.Metrics

	// Readiness gates the upload pipeline. Nil means always ready.
	Readiness service.Readiness
}

// App holds the opened infrastructure and services.
type App struct {
	Config   *config.Config
	Store    *repository.Store
	Backend  storage.ChunkBackend
	Chunks   *storage.ChunkStore
	Cache    repository.Cache
	Locker   lock.Locker
	Services *service.Services

	logger  zerolog.Logger
	closers []func() error
}

// Open connects to the database and the chunk backend and builds the services.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (_ *App, err error) {
	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := repository.NewFactory(cfg.Database, logger).Open(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Database.Close)

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = rediscache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redisClient.Close)
	}
	a.Locker = a.openLocker(redisClient)

	if opts.Migrate {
		if err := a.migrate(ctx); err != nil {
			return nil, err
		}
	}

	if a.Backend, err = a.openBackend(ctx, store.Repos); err != nil {
		return nil, err
	}

	codec, err := newCodec(cfg.Storage)
	if err != nil {
		return nil, err
	}

	a.Chunks = storage.NewChunkStore(a.Backend, codec, storage.ChunkStoreConfig{
		ChunkSize:   cfg.Storage.ChunkSize,
		MaxBlobSize: cfg.Storage.MaxUploadSize,
	}, opts.Metrics, logger)

	a.Cache = a.openCache(redisClient)

	blobs := service.NewBlobRegistry(store.Repos.Blob, a.Chunks, opts.Metrics, logger, service.BlobRegistryConfig{
		Cache:    a.Cache,
		CacheTTL: cfg.Cache.TTL,
	})
	catalog := service.NewCatalogService(store.Repos.Document, logger, service.CatalogConfig{
		Cache:    a.Cache,
		CacheTTL: cfg.Cache.TTL,
	})

	a.Services = &service.Services{
		Blobs:     blobs,
		Catalog:   catalog,
		Uploads:   service.NewUploadService(blobs, catalog, opts.Readiness, opts.Metrics, logger),
		Documents: service.NewDocumentService(catalog, blobs, opts.Metrics, logger),
		GC: service.NewGarbageCollector(store.Repos.Blob, blobs, a.Locker, opts.Metrics, logger, service.GCConfig{
			Enabled:     cfg.GC.Enabled,
			Interval:    cfg.GC.Interval,
			GracePeriod: cfg.GC.GracePeriod,
			BatchSize:   cfg.GC.BatchSize,
			DryRun:      cfg.GC.DryRun,
		}),
	}
	a.Services.Health = a.HealthCheck

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("backend", cfg.Storage.Backend).
		Int("chunk_size", cfg.Storage.ChunkSize).
		Str("compression", codec.Compression().String()).
		Bool("encrypted", codec.Encrypted()).
		Bool("cache", a.Cache != nil).
		Msg("storage initialized")

	return a, nil
}

// migrate applies pending migrations while holding the migration lock, so
// instances starting together against one database take turns.
func (a *App) migrate(ctx context.Context) error {
	key := lock.Keys.Migrations(a.Config.Database.Driver)

	ok, err := lock.AcquireWithRetry(ctx, a.Locker, key, migrationLockTTL, migrationLockAttempts, time.Second)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to acquire migration lock: %w", lock.ErrNotAcquired)
	}
	defer func() {
		if _, err := a.Locker.Release(context.WithoutCancel(ctx), key); err != nil {
			a.logger.Warn().Err(err).Msg("failed to release migration lock")
		}
	}()

	if err := a.Store.Database.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// HealthCheck verifies the database and the chunk backend.
func (a *App) HealthCheck(ctx context.Context) error {
	if err := a.Store.Database.Health(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if checker, ok := a.Backend.(storage.HealthChecker); ok {
		if err := checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("chunk backend: %w", err)
		}
	}
	return nil
}

// Close releases every opened resource in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openBackend(ctx context.Context, repos *repository.Repositories) (storage.ChunkBackend, error) {
	cfg := a.Config.Storage

	switch cfg.Backend {
	case "database":
		return repos.Chunk, nil

	case "filesystem":
		backend, err := filesystem.NewBackend(filesystem.Config{DataDir: cfg.DataDir}, a.logger)
		if err != nil {
			return nil, err
		}
		return backend, nil

	case "s3":
		s3cfg := s3store.Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		}
		client, err := s3store.NewClient(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		backend, err := s3store.NewBackend(client, s3cfg, a.logger)
		if err != nil {
			return nil, err
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func (a *App) openCache(redisClient *goredis.Client) repository.Cache {
	if !a.Config.Cache.Enabled {
		return nil
	}
	if redisClient != nil {
		return rediscache.NewCache(redisClient, "docstore:")
	}

	c := memory.NewCache(memory.Options{
		MaxSize:         a.Config.Cache.MaxSize,
		CleanupInterval: a.Config.Cache.CleanupInterval,
	})
	a.closers = append(a.closers, func() error {
		c.Stop()
		return nil
	})
	return c
}

func (a *App) openLocker(redisClient *goredis.Client) lock.Locker {
	if redisClient != nil {
		return lock.NewRedisLocker(redisClient)
	}

	l := lock.NewMemoryLocker()
	a.closers = append(a.closers, func() error {
		l.Stop()
		return nil
	})
	return l
}

func newCodec(cfg config.StorageConfig) (*storage.Codec, error) {
	compression, err := storage.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	key, err := cfg.GetEncryptionKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return storage.NewCodec(compression, nil), nil
	}

	encryptor, err := crypto.NewEncryptor(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	return storage.NewCodec(compression, encryptor), nil
}
