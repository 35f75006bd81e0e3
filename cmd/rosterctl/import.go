package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rosterimport/internal/core"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		file     string
		fileType string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a roster file",
		Long: `Import a CSV or XLSX file whose first row is the header "name,mobile".
The whole file is validated first; nothing is stored if any row is invalid.`,
		Example: "  rosterctl import --file staff.xlsx\n  rosterctl import --file export.txt --type csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			mediaType, err := resolveMediaType(file, fileType)
			if err != nil {
				return err
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open %s: %w", file, err)
			}
			defer f.Close()

			result, err := a.service.Import(cmd.Context(), core.Upload{
				FileName:  filepath.Base(file),
				MediaType: mediaType,
				Body:      f,
			})
			if err != nil {
				var importErr *core.ImportError
				if errors.As(err, &importErr) {
					for _, msg := range importErr.Messages() {
						fmt.Fprintln(cmd.ErrOrStderr(), "  "+msg)
					}
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records from %s in %s\n",
				result.Inserted, result.FileName, result.Duration.Round(1e6))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File to import (required)")
	cmd.Flags().StringVarP(&fileType, "type", "t", "", "File type: csv, xlsx or a media type (default: from the file extension)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// resolveMediaType maps the --type flag, or the file extension when the flag
// is empty, to an upload media type.
func resolveMediaType(file, fileType string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(fileType))
	if t == "" {
		t = strings.TrimPrefix(strings.ToLower(filepath.Ext(file)), ".")
	}
	switch t {
	case "csv":
		return core.MediaTypeCSV, nil
	case "xlsx":
		return core.MediaTypeXLSX, nil
	}
	if strings.Contains(t, "/") {
		return t, nil
	}
	return "", fmt.Errorf("%w: cannot infer a type for %q, pass --type csv or --type xlsx", core.ErrUnsupportedFileType, file)
}
