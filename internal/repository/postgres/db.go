// Package postgres stores the catalog, blob rows and (optionally) chunk
// payloads in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/config"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	connectTimeout = 10 * time.Second

	// slowQuery is the duration above which queries are logged at warn level.
	slowQuery = 500 * time.Millisecond

	// migrationLockID keys the advisory lock held while migrations run.
	migrationLockID int64 = 0x646f6373 // "docs"
)

// DB owns the connection pool shared by the PostgreSQL repositories.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB opens a pool for cfg and pings the server once.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	pc.MaxConns = int32(cfg.MaxOpenConns)
	pc.MinConns = int32(cfg.MaxIdleConns)
	pc.MaxConnLifetime = cfg.ConnMaxLifetime
	pc.MaxConnIdleTime = cfg.ConnMaxIdleTime
	pc.ConnConfig.ConnectTimeout = connectTimeout
	pc.ConnConfig.Tracer = queryLogger{logger: logger.With().Str("component", "postgres").Logger()}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Int32("max_conns", pc.MaxConns).
		Msg("Connected to PostgreSQL")

	return &DB{Pool: pool, logger: logger}, nil
}

// Close drains the pool.
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Health runs a trivial query on a pooled connection.
func (db *DB) Health(ctx context.Context) error {
	var one int
	if err := db.Pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("postgres health check: %w", err)
	}
	return nil
}

// queryLogger traces queries: every query at debug level, slow or failed
// ones at warn level.
type queryLogger struct {
	logger zerolog.Logger
}

type queryStartKey struct{}

func (q queryLogger) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, time.Now())
}

func (q queryLogger) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)

	event := q.logger.Debug()
	if data.Err != nil || elapsed > slowQuery {
		event = q.logger.Warn().Err(data.Err)
	}
	event.Str("command", data.CommandTag.String()).Dur("duration", elapsed).Msg("query")
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// MigrationVersion returns the highest applied migration, 0 for a fresh database.
func (db *DB) MigrationVersion(ctx context.Context) (int, error) {
	return migrationVersion(ctx, db.Pool)
}

func migrationVersion(ctx context.Context, q Querier) (int, error) {
	if _, err := q.Exec(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	var version int
	if err := q.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, nil
}

// Migrate applies pending embedded migrations in one transaction. A
// transaction-scoped advisory lock keeps concurrent servers from applying
// the same version twice.
func (db *DB) Migrate(ctx context.Context) error {
	migrations, err := repository.LoadMigrations(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("failed to take migration lock: %w", err)
		}

		current, err := migrationVersion(ctx, tx)
		if err != nil {
			return err
		}

		for _, m := range repository.Pending(migrations, current) {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			db.logger.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration")
		}
		return nil
	})
}

// Querier is the query surface shared by the pool and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ Querier             = (*pgxpool.Pool)(nil)
	_ Querier             = (pgx.Tx)(nil)
	_ repository.Database = (*DB)(nil)
)
