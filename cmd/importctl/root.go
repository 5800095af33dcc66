package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/a7mdelbanna/classboom/internal/config"
	"github.com/a7mdelbanna/classboom/internal/core"
	"github.com/a7mdelbanna/classboom/internal/logging"
	"github.com/a7mdelbanna/classboom/internal/store"
)

// creatorSource resolves the creator for one entity and institution.
type creatorSource interface {
	For(entity string, institutionID uuid.UUID) (core.EntityCreator, error)
}

// openFunc connects to the database at url. The returned func releases it.
type openFunc func(ctx context.Context, url string, migrate bool) (creatorSource, func(), error)

// app carries what every command shares.
type app struct {
	out    io.Writer
	getenv func(string) string
	open   openFunc

	logLevel string
	verbose  bool
}

func newApp(out io.Writer, getenv func(string) string) *app {
	return &app{out: out, getenv: getenv, open: openPostgres}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "importctl",
		Short:         "Bulk import records from CSV and Excel files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := a.logLevel
			if a.verbose {
				level = "debug"
			}
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), level, "text"))
		},
	}
	root.SetOut(a.out)

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newSampleCmd(a),
		newSchemasCmd(a),
		newInspectCmd(a),
		newValidateCmd(a),
		newImportCmd(a),
	)
	return root
}

// importConfig loads the IMPORT_* settings, which flags may override.
func (a *app) importConfig() (config.ImportConfig, error) {
	cfg, err := config.LoadImport(a.getenv)
	if err != nil {
		return config.ImportConfig{}, fmt.Errorf("load import config: %w", err)
	}
	return cfg, nil
}

func openPostgres(ctx context.Context, url string, migrate bool) (creatorSource, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if migrate {
		if err := store.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return store.NewCreators(pool), pool.Close, nil
}
