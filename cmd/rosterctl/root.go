package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rosterimport/internal/config"
	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/JonMunkholm/rosterimport/internal/logging"
	"github.com/JonMunkholm/rosterimport/internal/store"
)

// app carries what the commands share. openStore is swapped out in tests.
type app struct {
	envFile   string
	openStore func(ctx context.Context, cfg config.StoreConfig) (core.Store, error)

	cfg     *config.Config
	records core.Store
	service *core.Service
}

func defaultApp() *app {
	return &app{openStore: store.Open}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "rosterctl",
		Short:         "Import and export roster records",
		Long:          "Import CSV or XLSX roster files into the record store and export the stored records.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file to load before reading configuration")

	root.AddCommand(newImportCmd(a), newExportCmd(a))
	return root
}

// reportError prints err for a terminal user. Errors with a support code are
// shown with their message and suggested action; the underlying error follows
// so row details and paths are not lost.
func reportError(w io.Writer, err error) {
	if core.IsUserFacing(err) {
		fmt.Fprintf(w, "Error: %s\n  %v\n", core.FormatUserError(err), err)
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// setup loads configuration and opens the store.
func (a *app) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if a.envFile != "" {
		if err := godotenv.Overload(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Store.ConnectTimeout)
	defer cancel()
	records, err := a.openStore(connectCtx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.records = records

	a.service = core.NewService(records, core.ServiceConfig{
		PerPage:       cfg.Upload.PerPage,
		MaxConcurrent: 1,
		MaxWait:       cfg.Upload.MaxWaitTime,
		TempDir:       cfg.Upload.TempDir,
		PhoneRegion:   cfg.Upload.PhoneRegion,
		MaxRowErrors:  cfg.Upload.MaxRowErrors,
	})
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.records == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.records.Close(ctx); err != nil {
		slog.Warn("store close error", "error", err)
	}
	return nil
}
