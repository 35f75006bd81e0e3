package core

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"
)

// ExportFormat selects how Export serializes records.
type ExportFormat string

const (
	ExportJSONLines ExportFormat = "jsonl"
	ExportCSV       ExportFormat = "csv"
	ExportXLSX      ExportFormat = "xlsx"
)

// ParseExportFormat validates a user-supplied format name.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(s); f {
	case ExportJSONLines, ExportCSV, ExportXLSX:
		return f, nil
	case "":
		return ExportJSONLines, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", ErrInvalidInput, s)
	}
}

// exportSheet is the sheet name used for XLSX exports.
const exportSheet = "Records"

// Export writes every record to w and returns how many were written.
func (s *Service) Export(ctx context.Context, w io.Writer, format ExportFormat) (int, error) {
	switch format {
	case ExportCSV:
		return s.exportCSV(ctx, w)
	case ExportXLSX:
		return s.exportXLSX(ctx, w)
	default:
		return s.exportJSONLines(ctx, w)
	}
}

func (s *Service) exportJSONLines(ctx context.Context, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	err := s.store.Each(ctx, func(r Record) error {
		n++
		return enc.Encode(r)
	})
	if err != nil {
		return n, fmt.Errorf("export records: %w", err)
	}
	return n, nil
}

func (s *Service) exportCSV(ctx context.Context, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	// An empty collection still gets a header row.
	if err := enc.EncodeHeader(Record{}); err != nil {
		return 0, fmt.Errorf("export header: %w", err)
	}

	n := 0
	err := s.store.Each(ctx, func(r Record) error {
		n++
		return enc.Encode(r)
	})
	if err != nil {
		return n, fmt.Errorf("export records: %w", err)
	}
	cw.Flush()
	return n, cw.Error()
}

func (s *Service) exportXLSX(ctx context.Context, w io.Writer) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return 0, err
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return 0, err
	}

	header := []any{"id", ColumnName, ColumnMobile, "categories"}
	if err := sw.SetRow("A1", header); err != nil {
		return 0, err
	}

	n := 0
	err = s.store.Each(ctx, func(r Record) error {
		n++
		cell, err := excelize.CoordinatesToCellName(1, n+1)
		if err != nil {
			return err
		}
		return sw.SetRow(cell, []any{r.ID, r.Name, r.Mobile, r.Categories})
	})
	if err != nil {
		return n, fmt.Errorf("export records: %w", err)
	}
	if err := sw.Flush(); err != nil {
		return n, err
	}
	if _, err := f.WriteTo(w); err != nil {
		return n, fmt.Errorf("write workbook: %w", err)
	}
	return n, nil
}
