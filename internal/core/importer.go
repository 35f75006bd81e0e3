package core

// importer.go reads an uploaded CSV or XLSX file into raw rows.
//
// The importer only understands file structure. It does not decide whether
// the header is acceptable or whether a mobile number parses; RowValidator
// does that over the returned ParsedFile. The one exception is that data rows
// are only read when the header names both required columns, since without
// them there is nothing to map the cells onto.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"
)

// Accepted upload media types.
const (
	MediaTypeCSV  = "text/csv"
	MediaTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Column names every upload must carry.
const (
	ColumnName   = "name"
	ColumnMobile = "mobile"
)

// FileFormat identifies a supported upload format.
type FileFormat string

const (
	FormatCSV  FileFormat = "csv"
	FormatXLSX FileFormat = "xlsx"
)

// RawRow is one data row before typing. Width is the number of cells the
// source row actually had, so rows with extra columns can be rejected.
type RawRow struct {
	Line   int    `csv:"-"`
	Name   string `csv:"name"`
	Mobile string `csv:"mobile"`
	Width  int    `csv:"-"`
}

// ParsedFile is the structural content of an upload.
type ParsedFile struct {
	Format FileFormat
	Header []string
	Rows   []RawRow
}

// NormalizeMediaType strips parameters and lowercases a declared content type,
// so "text/csv; charset=utf-8" compares equal to MediaTypeCSV.
func NormalizeMediaType(declared string) string {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return mt
}

// FormatForMediaType maps a declared content type to a file format.
func FormatForMediaType(declared string) (FileFormat, error) {
	switch NormalizeMediaType(declared) {
	case MediaTypeCSV:
		return FormatCSV, nil
	case MediaTypeXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, declared)
	}
}

// ParseUpload reads r according to its declared media type.
func ParseUpload(r io.Reader, mediaType string) (*ParsedFile, error) {
	format, err := FormatForMediaType(mediaType)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatXLSX:
		return parseXLSX(r)
	default:
		return parseCSV(r)
	}
}

func hasRequiredColumns(idx HeaderIndex) bool {
	_, hasName := idx[ColumnName]
	_, hasMobile := idx[ColumnMobile]
	return hasName && hasMobile
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.ToLower(CleanCell(h))
	}
	return out
}

func parseCSV(r io.Reader) (*ParsedFile, error) {
	cr := csv.NewReader(NewTextReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	raw, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: file is empty", ErrMissingHeaders)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrUnreadableFile, err)
	}

	pf := &ParsedFile{Format: FormatCSV, Header: raw}
	header := normalizeHeader(raw)
	idx := MakeHeaderIndex(header)
	if !hasRequiredColumns(idx) {
		return pf, nil
	}

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		// Duplicate column names are the only way a valid header gets here.
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedColumns, err)
	}

	for {
		var row RawRow
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}

		var pe *csv.ParseError
		switch {
		case errors.As(err, &pe):
			return nil, &ImportError{Rows: []RowError{{Line: pe.Line, Message: pe.Err.Error()}}}
		case errors.Is(err, csvutil.ErrFieldCount):
			record := dec.Record()
			row = RawRow{
				Name:   cellAt(record, idx[ColumnName]),
				Mobile: cellAt(record, idx[ColumnMobile]),
			}
		case err != nil:
			return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
		}

		line, _ := cr.FieldPos(0)
		row.Line = line
		row.Width = len(dec.Record())
		pf.Rows = append(pf.Rows, row)
	}
	return pf, nil
}

func parseXLSX(r io.Reader) (*ParsedFile, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMissingHeaders)
	}

	// Only the first sheet is imported.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}

	// Leading blank rows are not part of the table.
	start := 0
	for start < len(rows) && isBlank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return nil, fmt.Errorf("%w: sheet %q is empty", ErrMissingHeaders, sheets[0])
	}

	pf := &ParsedFile{Format: FormatXLSX, Header: trimTrailingBlank(rows[start])}
	idx := MakeHeaderIndex(pf.Header)
	if !hasRequiredColumns(idx) {
		return pf, nil
	}

	for i := start + 1; i < len(rows); i++ {
		cells := trimTrailingBlank(rows[i])
		if len(cells) == 0 {
			continue
		}
		// Short rows are padded out to the header: a missing cell is an empty
		// value, not a missing column.
		width := len(cells)
		if width < len(pf.Header) {
			width = len(pf.Header)
		}
		pf.Rows = append(pf.Rows, RawRow{
			Line:   i + 1,
			Name:   cellAt(cells, idx[ColumnName]),
			Mobile: cellAt(cells, idx[ColumnMobile]),
			Width:  width,
		})
	}
	return pf, nil
}

func cellAt(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimTrailingBlank(cells []string) []string {
	n := len(cells)
	for n > 0 && strings.TrimSpace(cells[n-1]) == "" {
		n--
	}
	return cells[:n]
}
