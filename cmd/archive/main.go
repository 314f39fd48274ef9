/*
main.go - Application entry point

PURPOSE:
  The archive command runs the HTTP server and offers operator commands
  that call the same engine directly, without going through HTTP.

COMMANDS:
  serve                       Start the HTTP API
  ingest FILE...              Ingest one or more spreadsheets
  box get TYPE                Show the open box for a type
  box next TYPE --dok-id ID   Roll over to the next box
  assign NUMBER --box-name N --box-type T --dok-id ID
  template FILE               Write an empty upload template (.xlsx)

CONFIGURATION:
  --config archive.yaml, or ARCHIVE_* environment variables:
    ARCHIVE_STORE_DRIVER   sqlite | postgres | memory (default sqlite)
    ARCHIVE_STORE_DSN      file path or postgres:// URL
    ARCHIVE_HTTP_PORT      default 8080
    ARCHIVE_LOG_LEVEL      default info

EXAMPLES:
  # Local operator workstation
  archive serve

  # Shared database
  ARCHIVE_STORE_DRIVER=postgres ARCHIVE_STORE_DSN=postgres://... archive serve

  # Bulk load from the command line
  archive ingest scans/2019/*.xlsx

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/archive-engine/archive"
	"github.com/warp/archive-engine/config"
	"github.com/warp/archive-engine/logging"
)

// Global flag values.
var flagConfig string

// app is filled in by PersistentPreRunE and reaches subcommands through
// the command context. execute closes it however the command ends.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  openedStore
	engine *archive.Engine
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

type appKey struct{}

func withApp(ctx context.Context, a *app) context.Context {
	return context.WithValue(ctx, appKey{}, a)
}

// appFrom returns the app set up for the running command.
func appFrom(ctx context.Context) *app {
	a, _ := ctx.Value(appKey{}).(*app)
	return a
}

var rootCmd = &cobra.Command{
	Use:           "archive",
	Short:         "Paper archive digitization engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Subcommands keep the context of their first run; ExecuteContext
		// only refreshes the root's.
		ctx := cmd.Root().Context()
		cmd.SetContext(ctx)
		if cmd.Name() == "template" {
			return nil
		}
		a := appFrom(ctx)
		if a == nil {
			return errors.New("command context carries no app")
		}

		cfg, err := config.Load(config.New(), flagConfig)
		if err != nil {
			return err
		}

		logger, err := logging.New(cfg.LogLevel)
		if err != nil {
			return err
		}

		store, err := openStore(ctx, cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to initialize %s store: %w", cfg.Store.Driver, err)
		}

		a.cfg = cfg
		a.logger = logger
		a.store = store
		a.engine = archive.NewEngine(store, cfg.EngineOptions(), logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ./archive.yaml if present)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(boxCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(templateCmd)
}

// execute runs rootCmd with args and releases whatever a acquired,
// including when the command fails.
func execute(ctx context.Context, a *app, args []string) error {
	defer a.close()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(withApp(ctx, a))
}

func main() {
	if err := execute(context.Background(), &app{}, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
