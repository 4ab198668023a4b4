package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/lock"
	"github.com/prn-tf/alexander-docstore/internal/metrics"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

// gcRenewEvery is how many deletions run between lease renewals.
const gcRenewEvery = 16

// GarbageCollector removes blobs that no document references.
// These are left behind when a catalog write fails after the blob was
// committed, or when a best-effort blob delete failed.
type GarbageCollector struct {
	blobRepo repository.BlobRepository
	blobs    *BlobRegistry
	locker   lock.Locker
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	config   GCConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// GCConfig contains garbage collection configuration.
type GCConfig struct {
	// Enabled determines if the server schedules runs.
	Enabled bool

	// Interval is the time between scheduled runs.
	Interval time.Duration

	// GracePeriod is how old an unreferenced blob must be before deletion.
	// It keeps blobs of in-flight uploads out of reach.
	GracePeriod time.Duration

	// BatchSize caps the blobs handled per run.
	BatchSize int

	// DryRun reports candidates without deleting them.
	DryRun bool
}

// DefaultGCConfig returns the defaults used for unset fields.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		Interval:    time.Hour,
		GracePeriod: 24 * time.Hour,
		BatchSize:   1000,
	}
}

// NewGarbageCollector creates a new garbage collector. A nil locker
// disables coordination with other instances.
func NewGarbageCollector(
	blobRepo repository.BlobRepository,
	blobs *BlobRegistry,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config GCConfig,
) *GarbageCollector {
	defaults := DefaultGCConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = defaults.GracePeriod
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if locker == nil {
		locker = lock.NewNoOpLocker()
	}

	return &GarbageCollector{
		blobRepo: blobRepo,
		blobs:    blobs,
		locker:   locker,
		metrics:  m,
		logger:   logger.With().Str("service", "gc").Logger(),
		config:   config,
	}
}

// Start runs the collector now and then every Interval until Stop.
// Calling Start on a running collector does nothing.
func (gc *GarbageCollector) Start() {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	if gc.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	gc.cancel = cancel
	gc.done = make(chan struct{})

	gc.logger.Info().
		Dur("interval", gc.config.Interval).
		Dur("grace_period", gc.config.GracePeriod).
		Int("batch_size", gc.config.BatchSize).
		Bool("dry_run", gc.config.DryRun).
		Msg("Starting garbage collector")

	go gc.loop(ctx, gc.done)
}

// Stop cancels a running pass and waits for the scheduler to exit.
func (gc *GarbageCollector) Stop() {
	gc.mu.Lock()
	cancel, done := gc.cancel, gc.done
	gc.cancel, gc.done = nil, nil
	gc.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	gc.logger.Info().Msg("Garbage collector stopped")
}

func (gc *GarbageCollector) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(gc.config.Interval)
	defer ticker.Stop()

	for {
		gc.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GCResult contains the result of a garbage collection run.
type GCResult struct {
	// BlobsDeleted counts deleted blobs, or candidates in dry-run mode.
	BlobsDeleted int

	// BytesFreed is the total decoded length of those blobs.
	BytesFreed int64

	// Errors counts failed deletions and aborted steps.
	Errors int

	// Skipped is set when another collector held the lock.
	Skipped bool

	Duration time.Duration

	// OrphanBlobsRemaining is non-zero when the batch limit left orphans behind.
	OrphanBlobsRemaining int
}

// RunOnce performs one collection pass under the BlobGC lock.
func (gc *GarbageCollector) RunOnce(ctx context.Context) GCResult {
	start := time.Now()
	var result GCResult

	lease, err := lock.Hold(ctx, gc.locker, lock.Keys.BlobGC(), gc.leaseTTL())
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		gc.logger.Debug().Msg("GC lock held by another process, skipping run")
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	case err != nil:
		gc.logger.Error().Err(err).Msg("Failed to acquire GC lock")
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			gc.logger.Error().Err(err).Msg("Failed to release GC lock")
		}
	}()

	gc.collect(ctx, lease, &result)

	result.Duration = time.Since(start)
	gc.metrics.RecordGCRun(result.Duration.Seconds(), result.BlobsDeleted, result.BytesFreed, result.OrphanBlobsRemaining)

	if result.BlobsDeleted > 0 || result.Errors > 0 {
		gc.logger.Info().
			Int("blobs_deleted", result.BlobsDeleted).
			Int64("bytes_freed", result.BytesFreed).
			Int("errors", result.Errors).
			Int("remaining", result.OrphanBlobsRemaining).
			Dur("duration", result.Duration).
			Bool("dry_run", gc.config.DryRun).
			Msg("Garbage collection run completed")
	}

	return result
}

func (gc *GarbageCollector) collect(ctx context.Context, lease *lock.Lease, result *GCResult) {
	orphans, err := gc.blobRepo.ListUnreferenced(ctx, gc.config.GracePeriod, gc.config.BatchSize)
	if err != nil {
		gc.logger.Error().Err(err).Msg("Failed to list unreferenced blobs")
		result.Errors++
		return
	}
	if len(orphans) == 0 {
		return
	}

	for i, blob := range orphans {
		if ctx.Err() != nil {
			result.Errors++
			return
		}

		if i > 0 && i%gcRenewEvery == 0 {
			if err := lease.Renew(ctx); err != nil {
				gc.logger.Warn().Err(err).Msg("GC lock lost, stopping run")
				result.Errors++
				return
			}
		}

		log := gc.logger.With().Str("blob_id", blob.ID.String()).Int64("length", blob.Length).Logger()

		if !gc.config.DryRun {
			if err := gc.blobs.Delete(ctx, blob.ID); err != nil {
				log.Error().Err(err).Msg("Failed to delete unreferenced blob")
				result.Errors++
				continue
			}
		}

		log.Debug().Bool("dry_run", gc.config.DryRun).Msg("Collected unreferenced blob")
		result.BlobsDeleted++
		result.BytesFreed += blob.Length
	}

	if len(orphans) == gc.config.BatchSize && !gc.config.DryRun {
		remaining, err := gc.blobRepo.ListUnreferenced(ctx, gc.config.GracePeriod, 1)
		if err == nil {
			result.OrphanBlobsRemaining = len(remaining)
		}
	}
}

// leaseTTL outlives a run but expires before the next scheduled one.
func (gc *GarbageCollector) leaseTTL() time.Duration {
	ttl := gc.config.Interval / 2
	if ttl < 5*time.Minute {
		ttl = 5 * time.Minute
	}
	return ttl
}

// GCStats describes the orphan backlog.
type GCStats struct {
	OrphanBlobCount int
	OrphanBlobSize  int64
	HasMoreOrphans  bool
	GracePeriod     time.Duration
	NextRunIn       time.Duration
}

// GetStats counts orphan blobs up to one batch.
func (gc *GarbageCollector) GetStats(ctx context.Context) (*GCStats, error) {
	orphans, err := gc.blobRepo.ListUnreferenced(ctx, gc.config.GracePeriod, gc.config.BatchSize+1)
	if err != nil {
		return nil, err
	}

	stats := &GCStats{
		HasMoreOrphans: len(orphans) > gc.config.BatchSize,
		GracePeriod:    gc.config.GracePeriod,
		NextRunIn:      gc.config.Interval,
	}
	if stats.HasMoreOrphans {
		orphans = orphans[:gc.config.BatchSize]
	}
	for _, blob := range orphans {
		stats.OrphanBlobCount++
		stats.OrphanBlobSize += blob.Length
	}
	return stats, nil
}
