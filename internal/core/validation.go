package core

// validation.go checks a ParsedFile before anything is written.
//
// Validation happens at two levels:
//  1. Header validation: the header must name exactly the columns name and mobile.
//  2. Row validation: every data row must have exactly two cells, a non-empty
//     name, and a mobile that parses as a non-negative integer (and, when a
//     phone region is configured, as a valid number for that region).
//
// A single bad row rejects the whole file. Row problems are collected up to a
// limit so the user can fix several at once.

import (
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// DefaultMaxRowErrors caps how many row problems one ImportError reports.
const DefaultMaxRowErrors = 20

// RowValidator validates parsed uploads.
type RowValidator struct {
	phoneRegion string
	maxErrors   int
}

// NewRowValidator returns a validator. An empty phoneRegion disables the
// phone number check; maxErrors <= 0 uses DefaultMaxRowErrors.
func NewRowValidator(phoneRegion string, maxErrors int) *RowValidator {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxRowErrors
	}
	return &RowValidator{
		phoneRegion: strings.ToUpper(phoneRegion),
		maxErrors:   maxErrors,
	}
}

// ValidateHeader checks that the header names exactly the two required columns.
func ValidateHeader(header []string) error {
	idx := MakeHeaderIndex(header)

	var missing []string
	for _, col := range []string{ColumnName, ColumnMobile} {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMissingHeaders, strings.Join(missing, ", "))
	}
	if len(header) != 2 {
		return fmt.Errorf("%w: found %d columns", ErrUnexpectedColumns, len(header))
	}
	return nil
}

// Validate checks the header and every row, returning the typed rows only if
// all of them are valid.
func (v *RowValidator) Validate(pf *ParsedFile) ([]ImportRow, error) {
	if err := ValidateHeader(pf.Header); err != nil {
		return nil, err
	}

	rows := make([]ImportRow, 0, len(pf.Rows))
	var ie ImportError
	for _, raw := range pf.Rows {
		if raw.Width <= 2 && CleanCell(raw.Name) == "" && CleanCell(raw.Mobile) == "" {
			continue
		}

		row, problems := v.ValidateRow(raw)
		if len(problems) == 0 {
			rows = append(rows, row)
			continue
		}
		for _, p := range problems {
			if len(ie.Rows) == v.maxErrors {
				ie.Truncated = true
				break
			}
			ie.Rows = append(ie.Rows, p)
		}
	}

	if len(ie.Rows) > 0 {
		return nil, &ie
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrMissingHeaders)
	}
	return rows, nil
}

// ValidateRow types a single row, returning every problem found.
func (v *RowValidator) ValidateRow(raw RawRow) (ImportRow, []RowError) {
	var problems []RowError

	if raw.Width != 2 {
		problems = append(problems, RowError{
			Line:    raw.Line,
			Message: fmt.Sprintf("expected 2 columns, found %d", raw.Width),
			Err:     ErrUnexpectedColumns,
		})
		return ImportRow{}, problems
	}

	// Both fields are optional: a blank name stays "" and a blank mobile is 0.
	name := CleanCell(raw.Name)

	var mobile int64
	if cell := CleanCell(raw.Mobile); cell != "" {
		m, err := ParseMobile(cell)
		switch {
		case err != nil:
			problems = append(problems, RowError{
				Line:    raw.Line,
				Field:   ColumnMobile,
				Value:   cell,
				Message: err.Error(),
			})
		case v.phoneRegion != "" && !v.validPhone(m):
			problems = append(problems, RowError{
				Line:    raw.Line,
				Field:   ColumnMobile,
				Value:   FormatMobile(m),
				Message: fmt.Sprintf("not a valid %s phone number", v.phoneRegion),
			})
		default:
			mobile = m
		}
	}

	if len(problems) > 0 {
		return ImportRow{}, problems
	}
	return ImportRow{Line: raw.Line, Name: name, Mobile: mobile}, nil
}

func (v *RowValidator) validPhone(mobile int64) bool {
	num, err := libphonenumber.Parse(FormatMobile(mobile), v.phoneRegion)
	if err != nil {
		return false
	}
	return libphonenumber.IsValidNumberForRegion(num, v.phoneRegion) || libphonenumber.IsValidNumber(num)
}
