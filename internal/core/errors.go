package core

import (
	"errors"
	"fmt"
	"strings"
)

// Import input errors. Handlers map these to 400 and re-render the upload form.
var (
	ErrNoFileUploaded      = errors.New("no file uploaded")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrUnreadableFile      = errors.New("file could not be read")
	ErrMissingHeaders      = errors.New("invalid or missing headers")
	ErrUnexpectedColumns   = errors.New("file must contain exactly two columns: name and mobile")
	ErrInvalidRows         = errors.New("file contains invalid rows")
)

// Record lookup errors.
var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidID is returned when an id is not well-formed for the store.
	ErrInvalidID = errors.New("invalid record id")
)

// ErrInvalidInput is returned for malformed edit requests (e.g. a non-numeric mobile).
var ErrInvalidInput = errors.New("invalid input")

// ErrBulkEditIncomplete is returned when at least one bulk edit item failed.
// The accompanying BulkEditReport lists which items succeeded.
var ErrBulkEditIncomplete = errors.New("bulk edit incomplete")

// RowError describes a problem with one data row of an upload.
type RowError struct {
	Line    int    // 1-based line (CSV) or row (XLSX) number in the source file
	Field   string // "name", "mobile", or empty for whole-row problems
	Value   string
	Message string
	Err     error // optional sentinel, e.g. ErrUnexpectedColumns
}

func (e RowError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "line %d", e.Line)
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Value != "" {
		fmt.Fprintf(&b, " (%q)", e.Value)
	}
	return b.String()
}

func (e RowError) Unwrap() error {
	return e.Err
}

// ImportError collects every row problem found while validating an upload.
type ImportError struct {
	Rows      []RowError
	Truncated bool // more problems existed than were collected
}

func (e *ImportError) Error() string {
	if len(e.Rows) == 0 {
		return ErrInvalidRows.Error()
	}
	msg := fmt.Sprintf("%s: %s", ErrInvalidRows, e.Rows[0].Error())
	if extra := len(e.Rows) - 1; extra > 0 || e.Truncated {
		more := fmt.Sprintf("%d", extra)
		if e.Truncated {
			more += "+"
		}
		msg += fmt.Sprintf(" (and %s more)", more)
	}
	return msg
}

// Unwrap exposes ErrInvalidRows plus the distinct sentinels of the row errors,
// so errors.Is(err, ErrUnexpectedColumns) holds when any row had the wrong width.
func (e *ImportError) Unwrap() []error {
	errs := []error{ErrInvalidRows}
	seen := make(map[error]bool)
	for _, r := range e.Rows {
		if r.Err != nil && !seen[r.Err] {
			seen[r.Err] = true
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// Messages returns one human-readable line per row problem.
func (e *ImportError) Messages() []string {
	out := make([]string, len(e.Rows))
	for i, r := range e.Rows {
		out[i] = r.Error()
	}
	return out
}

// IsImportInputError reports whether err is caused by the uploaded file rather
// than by the store or the server.
func IsImportInputError(err error) bool {
	for _, target := range []error{
		ErrNoFileUploaded,
		ErrUnsupportedFileType,
		ErrUnreadableFile,
		ErrMissingHeaders,
		ErrUnexpectedColumns,
		ErrInvalidRows,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
