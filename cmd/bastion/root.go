package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacentio/bastion/internal/app"
	"github.com/jacentio/bastion/store"
)

var errNoCollection = errors.New("no collection selected: use --collection or BASTION_COLLECTION")

var (
	verbose    bool
	collection string
	opts       app.Options
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bastion",
	Short: "Validated, hooked access to a schemaless document store",
	Long: `Bastion validates documents against model files before they reach the
store and runs every read through the collection's filters.

Flags fall back to BASTION_* environment variables (BASTION_DRIVER,
BASTION_DSN, BASTION_MODELS, ...).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		handlerOpts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if code := store.KindOf(err).Code(); code != "" && code != "E_STORE" {
			fmt.Fprintf(os.Stderr, "Error: %v (%s)\n", err, code)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// withBackend opens the backend, loads the models and runs fn.
func withBackend(cmd *cobra.Command, fn func(ctx context.Context, backend store.Backend, registry *store.Registry) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	models, err := app.LoadModels(opts)
	if err != nil {
		return err
	}
	backend, closeFn, err := app.OpenBackend(ctx, opts, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(ctx); err != nil {
			slog.Warn("closing backend", "error", err)
		}
	}()

	return fn(ctx, backend, app.Registry(backend, models, opts, slog.Default()))
}

// withCollection runs fn against the collection selected by --collection.
func withCollection(cmd *cobra.Command, fn func(ctx context.Context, c *store.Collection) error) error {
	if collection == "" {
		return errNoCollection
	}
	return withBackend(cmd, func(ctx context.Context, backend store.Backend, registry *store.Registry) error {
		return fn(ctx, app.Collection(registry, backend, collection, slog.Default()))
	})
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVarP(&collection, "collection", "c", app.Env("COLLECTION", ""), "Collection to operate on")
	flags.StringVar(&opts.Driver, "driver", app.Env("DRIVER", app.DriverSQLite), "Storage driver: memory, sqlite, mongodb or dynamodb")
	flags.StringVar(&opts.DSN, "dsn", app.Env("DSN", "bastion.db"), "SQLite path, MongoDB URI or DynamoDB endpoint")
	flags.StringVar(&opts.Database, "database", app.Env("DATABASE", ""), "MongoDB database")
	flags.StringVar(&opts.TablePrefix, "table-prefix", app.Env("TABLE_PREFIX", ""), "DynamoDB table name prefix")
	flags.StringVar(&opts.Region, "region", app.Env("REGION", ""), "AWS region")
	flags.StringVar(&opts.Profile, "profile", app.Env("PROFILE", ""), "AWS shared config profile")
	flags.IntVar(&opts.ScanSegments, "scan-segments", app.EnvInt("SCAN_SEGMENTS", 1), "DynamoDB parallel scan segments")
	flags.StringVar(&opts.Models, "models", app.Env("MODELS", ""), "Directory of YAML/JSON model files")
	flags.IntVar(&opts.MaxConcurrentRemoves, "max-removes", app.EnvInt("MAX_REMOVES", 0), "Bound on concurrent removals (0 = unbounded)")
}
