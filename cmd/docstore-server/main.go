// Package main is the entry point for the Alexander DocStore server.
// Alexander DocStore stores uploaded PDF documents as chunked blobs with a
// metadata catalog and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/prn-tf/alexander-docstore/internal/app"
	"github.com/prn-tf/alexander-docstore/internal/config"
	"github.com/prn-tf/alexander-docstore/internal/handler"
	"github.com/prn-tf/alexander-docstore/internal/metrics"
	"github.com/prn-tf/alexander-docstore/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flags := pflag.NewFlagSet("docstore-server", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the configuration file")
	showVersion := flags.Bool("version", false, "print version information and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if *showVersion {
		fmt.Printf("Alexander DocStore Server\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "docstore-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("Starting Alexander DocStore Server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go serveMetrics(ctx, cfg.Metrics, m, logger)
	}

	state := service.NewState()
	router := handler.NewRouter(handler.RouterConfig{
		State:         state,
		MaxUploadSize: cfg.Storage.MaxUploadSize,
		Metrics:       m,
		CORSOrigins:   cfg.Server.CORSOrigins,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Bind before the backend is connected so that early requests get 503
	// instead of connection refused.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		serveErr <- srv.Serve(ln)
	}()

	initDone := make(chan *app.App, 1)
	initErr := make(chan error, 1)
	go func() {
		a, err := app.Open(ctx, cfg, logger, app.Options{
			Migrate:   true,
			Metrics:   m,
			Readiness: state,
		})
		if err != nil {
			initErr <- err
			return
		}
		if err := state.MarkReady(a.Services); err != nil {
			a.Close()
			initErr <- err
			return
		}
		if cfg.GC.Enabled {
			a.Services.GC.Start()
		}
		logger.Info().Msg("storage ready")
		initDone <- a
	}()

	var (
		application  *app.App
		initFinished bool
		runErr       error
	)

wait:
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down server...")
			break wait
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				runErr = fmt.Errorf("http server: %w", err)
			}
			break wait
		case err := <-initErr:
			initFinished = true
			runErr = fmt.Errorf("failed to initialize storage: %w", err)
			break wait
		case a := <-initDone:
			initFinished = true
			application = a
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.Server))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if !initFinished {
		logger.Info().Msg("waiting for storage initialization to finish")
		application = awaitInit(shutdownCtx, initDone, initErr)
		if application == nil && shutdownCtx.Err() != nil {
			logger.Warn().Msg("storage initialization did not finish before shutdown timeout")
		}
	}
	if application != nil {
		application.Services.GC.Stop()
		if err := application.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close storage")
		}
	}

	logger.Info().Msg("Server stopped")
	return runErr
}

// awaitInit blocks until initialization delivers an App or fails, or ctx
// expires. It returns nil unless an App was delivered.
func awaitInit(ctx context.Context, done <-chan *app.App, failed <-chan error) *app.App {
	select {
	case a := <-done:
		return a
	case <-failed:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig, m *metrics.Metrics, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, m.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", srv.Addr).Str("path", cfg.Path).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server failed")
	}
}

func shutdownTimeout(cfg config.ServerConfig) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return 30 * time.Second
}
