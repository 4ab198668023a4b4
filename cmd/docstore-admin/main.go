// Package main is the entry point for the Alexander DocStore admin CLI.
// It provides maintenance commands that run against the configured storage.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/prn-tf/alexander-docstore/internal/app"
	"github.com/prn-tf/alexander-docstore/internal/config"
	"github.com/prn-tf/alexander-docstore/internal/pkg/crypto"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	var err error
	switch command {
	case "version":
		fmt.Printf("Alexander DocStore Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "gc":
		err = runGC(os.Args[2:])

	case "list":
		err = runList(os.Args[2:])

	case "purge":
		err = runPurge(os.Args[2:])

	case "keygen":
		err = runKeygen()

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "docstore-admin %s: %v\n", command, err)
		os.Exit(1)
	}
}

func openApp(ctx context.Context, configPath string, override func(*config.Config)) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	return app.Open(ctx, cfg, logger, app.Options{})
}

func runGC(args []string) error {
	flags := pflag.NewFlagSet("gc", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the configuration file")
	dryRun := flags.Bool("dry-run", false, "report orphan blobs without deleting them")
	statsOnly := flags.Bool("stats", false, "only print orphan statistics")
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, *configPath, func(cfg *config.Config) {
		if *dryRun {
			cfg.GC.DryRun = true
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	gc := a.Services.GC

	if *statsOnly {
		stats, err := gc.GetStats(ctx)
		if err != nil {
			return err
		}
		more := ""
		if stats.HasMoreOrphans {
			more = "+"
		}
		fmt.Printf("Orphan blobs: %d%s\n", stats.OrphanBlobCount, more)
		fmt.Printf("Orphan bytes: %d\n", stats.OrphanBlobSize)
		fmt.Printf("Grace period: %s\n", stats.GracePeriod)
		return nil
	}

	result := gc.RunOnce(ctx)
	if result.Skipped {
		fmt.Println("Another collector is running; nothing done.")
		return nil
	}

	verb := "Deleted"
	if *dryRun {
		verb = "Would delete"
	}
	fmt.Printf("%s %d blobs (%d bytes) in %s\n", verb, result.BlobsDeleted, result.BytesFreed, result.Duration.Round(time.Millisecond))
	if result.OrphanBlobsRemaining > 0 {
		fmt.Printf("Orphans remaining: %d\n", result.OrphanBlobsRemaining)
	}
	if result.Errors > 0 {
		return fmt.Errorf("%d blobs could not be deleted", result.Errors)
	}
	return nil
}

func runList(args []string) error {
	flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the configuration file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, *configPath, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.Services.Documents.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE ID\tTITLE\tCATEGORY\tPRICE\tSIZE\tCREATED")
	for _, doc := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%d\t%s\n",
			doc.ID, doc.FileID, doc.Title, doc.Category, doc.Price, doc.Size,
			doc.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// runPurge removes the given blobs together with any chunks left behind
// when an earlier chunk removal failed after the blob row was gone.
func runPurge(args []string) error {
	flags := pflag.NewFlagSet("purge", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the configuration file")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errors.New("at least one blob id is required")
	}

	ids := make([]uuid.UUID, 0, flags.NArg())
	for _, arg := range flags.Args() {
		id, err := uuid.Parse(arg)
		if err != nil {
			return fmt.Errorf("invalid blob id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, *configPath, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	var errs []error
	for _, id := range ids {
		if err := a.Services.Blobs.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("blob %s: %w", id, err))
			continue
		}
		fmt.Printf("Purged %s\n", id)
	}
	return errors.Join(errs...)
}

// runKeygen prints a fresh value for storage.encryption_key.
func runKeygen() error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}

func printUsage() {
	fmt.Println(`Alexander DocStore Admin CLI

Usage:
  docstore-admin <command> [arguments]

Commands:
  gc          Remove blobs that no document references
  list        List documents, newest first
  purge       Remove blobs and any chunks left without a blob row
  keygen      Generate a chunk encryption key
  version     Print version information
  help        Show this help message

Examples:
  docstore-admin gc --dry-run
  docstore-admin gc --stats
  docstore-admin list --config configs/config.yaml
  docstore-admin purge 7b0c2e8e-4f7a-4d8e-9a51-2f3c1b6d9e10
  DOCSTORE_STORAGE_ENCRYPTION_KEY=$(docstore-admin keygen) docstore-server

Use "docstore-admin <command> --help" for more information about a command.`)
}
