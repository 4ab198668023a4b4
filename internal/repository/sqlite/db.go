// Package sqlite keeps the catalog in a single SQLite file using the
// pure-Go modernc.org/sqlite driver, so embedded deployments need no cgo.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/prn-tf/alexander-docstore/internal/config"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat is a fixed-width UTC layout so that text order equals time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// DSN returns the driver connection string for cfg. Unset pragmas fall
// back to WAL journaling with a 5s busy timeout.
func DSN(cfg config.DatabaseConfig) string {
	pragma := func(name string, value any) string {
		return fmt.Sprintf("%s(%v)", name, value)
	}
	or := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5000
	}

	q := url.Values{}
	q.Add("_pragma", pragma("journal_mode", or(cfg.JournalMode, "WAL")))
	q.Add("_pragma", pragma("busy_timeout", busy))
	if cfg.CacheSize != 0 {
		q.Add("_pragma", pragma("cache_size", cfg.CacheSize))
	}
	q.Add("_pragma", pragma("synchronous", or(cfg.SynchronousMode, "NORMAL")))
	q.Add("_pragma", pragma("foreign_keys", 1))
	return "file:" + cfg.Path + "?" + q.Encode()
}

// DB is a single-writer handle on the database file.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewDB opens the database at cfg.Path, creating its directory if needed.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Path, err)
	}
	// SQLite serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Path, err)
	}

	logger.Info().Str("path", cfg.Path).Msg("Opened SQLite database")
	return &DB{db: db, logger: logger}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Health verifies the file is still readable.
func (db *DB) Health(ctx context.Context) error {
	var v int
	return db.db.QueryRowContext(ctx, `PRAGMA schema_version`).Scan(&v)
}

// MigrationVersion returns the highest applied migration, 0 for a new file.
func (db *DB) MigrationVersion(ctx context.Context) (int, error) {
	_, err := db.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var version int
	if err := db.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, nil
}

// Migrate applies each pending embedded migration in its own transaction.
func (db *DB) Migrate(ctx context.Context) error {
	current, err := db.MigrationVersion(ctx)
	if err != nil {
		return err
	}
	migrations, err := repository.LoadMigrations(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	for _, m := range repository.Pending(migrations, current) {
		if err := db.apply(ctx, m); err != nil {
			return err
		}
		db.logger.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration")
	}
	return nil
}

func (db *DB) apply(ctx context.Context, m repository.Migration) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.Version, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

var _ repository.Database = (*DB)(nil)
