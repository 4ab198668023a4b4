package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-docstore/internal/config"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

func TestMigrate_StatusThenUp(t *testing.T) {
	ctx := context.Background()
	factory := repository.NewFactory(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "docstore.db"),
	}, zerolog.Nop())

	var out bytes.Buffer
	require.NoError(t, migrate(ctx, factory, "status", &out))
	require.Equal(t, "Driver: sqlite\nSchema version: 0\n", out.String())

	out.Reset()
	require.NoError(t, migrate(ctx, factory, "up", &out))
	require.Equal(t, "Driver: sqlite\nSchema version: 1\n", out.String())
}

func TestMigrate_UnknownDriver(t *testing.T) {
	factory := repository.NewFactory(config.DatabaseConfig{Driver: "oracle"}, zerolog.Nop())

	var out bytes.Buffer
	require.ErrorContains(t, migrate(context.Background(), factory, "up", &out), "unknown database driver")
	require.Empty(t, out.String())
}
