package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rosterimport/internal/core"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		out    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every stored record",
		Long:  "Export every stored record as JSON lines (default), CSV or XLSX.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := core.ParseExportFormat(format)
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err := a.service.Export(cmd.Context(), cmd.OutOrStdout(), f)
				return err
			}

			n, err := exportFile(cmd.Context(), a.service, out, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&format, "format", string(core.ExportJSONLines), "Output format: jsonl, csv or xlsx")
	return cmd
}

// createFile opens export destinations; tests replace it.
var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// exportFile writes the export to path. The file is closed before returning so
// a failed flush is reported instead of leaving a truncated export behind.
func exportFile(ctx context.Context, svc *core.Service, path string, format core.ExportFormat) (int, error) {
	file, err := createFile(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}

	n, err := svc.Export(ctx, file, format)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", path, cerr)
	}
	return n, err
}
