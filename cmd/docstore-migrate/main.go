// Package main is the entry point for the Alexander DocStore database migration tool.
// Migrations are embedded in each database driver and applied in version order.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/prn-tf/alexander-docstore/internal/config"
	"github.com/prn-tf/alexander-docstore/internal/repository"
	_ "github.com/prn-tf/alexander-docstore/internal/repository/postgres"
	_ "github.com/prn-tf/alexander-docstore/internal/repository/sqlite"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flags := pflag.NewFlagSet("docstore-migrate", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the configuration file")
	flags.Usage = printUsage

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if flags.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flags.Arg(0)

	switch command {
	case "version":
		fmt.Printf("Alexander DocStore Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "up", "status":
		if err := run(command, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "docstore-migrate: %v\n", err)
			os.Exit(1)
		}

	case "help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func run(command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return migrate(ctx, repository.NewFactory(cfg.Database, logger), command, os.Stdout)
}

// migrate opens the factory's database, applies migrations for "up" and
// reports the resulting schema version to w.
func migrate(ctx context.Context, factory *repository.Factory, command string, w io.Writer) error {
	store, err := factory.Open(ctx)
	if err != nil {
		return err
	}
	defer store.Database.Close()

	if command == "up" {
		if err := store.Database.Migrate(ctx); err != nil {
			return err
		}
	}

	version, err := store.Database.MigrationVersion(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Driver: %s\n", factory.Driver())
	fmt.Fprintf(w, "Schema version: %d\n", version)
	return nil
}

func printUsage() {
	fmt.Println(`Alexander DocStore Migration Tool

Usage:
  docstore-migrate [--config path] <command>

Commands:
  up          Apply all pending migrations
  status      Show the current schema version
  version     Print version information
  help        Show this help message

Environment Variables:
  DOCSTORE_DATABASE_DRIVER    sqlite or postgres
  DOCSTORE_DATABASE_PATH      SQLite database file
  DOCSTORE_DATABASE_HOST      PostgreSQL host

Examples:
  docstore-migrate up
  docstore-migrate --config configs/config.yaml status`)
}
