// Package core provides the business logic for importing and browsing roster records.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"context"
	"math"
	"time"
)

// DefaultCategory is assigned to every record created by an import.
const DefaultCategory = "x"

// DefaultPerPage is the record table page size when none is configured.
const DefaultPerPage = 10

// Record is one imported name/mobile entry.
type Record struct {
	ID         string `json:"_id" csv:"id"`
	Name       string `json:"name" csv:"name"`
	Mobile     int64  `json:"mobile" csv:"mobile"`
	Categories string `json:"categories" csv:"categories"`
}

// ImportRow is a validated row ready to be persisted.
type ImportRow struct {
	Line   int
	Name   string
	Mobile int64
}

// SortDirection orders records by name.
type SortDirection int

const (
	SortAsc  SortDirection = 1
	SortDesc SortDirection = -1
)

// SortDescendingParam is the sort query value that selects descending order.
const SortDescendingParam = "-username"

// ParseSort maps the sort query parameter to a direction.
// Only "-username" selects descending order; anything else is ascending.
func ParseSort(s string) SortDirection {
	if s == SortDescendingParam {
		return SortDesc
	}
	return SortAsc
}

// ListQuery selects one page of records.
// Page is 1-indexed.
type ListQuery struct {
	Page    int
	PerPage int
	Sort    SortDirection
}

// Normalize clamps the query to valid values.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	// Keep the skip within int32 so no backend sees an overflowed offset.
	if maxPage := math.MaxInt32 / q.PerPage; q.Page > maxPage {
		q.Page = maxPage
	}
	if q.Sort != SortDesc {
		q.Sort = SortAsc
	}
	return q
}

// Skip returns the number of records preceding the page.
func (q ListQuery) Skip() int {
	return (q.Page - 1) * q.PerPage
}

// Page is one page of records plus the total record count.
type Page struct {
	Records []Record
	Total   int64
	Page    int
	PerPage int
	Sort    SortDirection
}

// TotalPages returns the number of pages needed to show every record.
func (p Page) TotalPages() int {
	if p.PerPage <= 0 {
		return 0
	}
	return int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

// HasPrev reports whether a previous page exists.
func (p Page) HasPrev() bool {
	return p.Page > 1
}

// HasNext reports whether a following page exists.
func (p Page) HasNext() bool {
	return p.Page < p.TotalPages()
}

// UpdateResult reports how many records a bulk update touched.
type UpdateResult struct {
	Matched  int64 `json:"matched"`
	Modified int64 `json:"modified"`
}

// BulkEditItem identifies the records to re-categorize by exact name and mobile.
type BulkEditItem struct {
	Name   string
	Mobile int64
}

// BulkEditOutcome is the result of applying the bulk edit to one item.
type BulkEditOutcome struct {
	Name     string `json:"name"`
	Mobile   int64  `json:"mobile"`
	Matched  int64  `json:"matched"`
	Modified int64  `json:"modified"`
	Error    string `json:"error,omitempty"`
}

// BulkEditReport lists which items were applied and which failed.
type BulkEditReport struct {
	Category  string            `json:"category"`
	Succeeded []BulkEditOutcome `json:"succeeded"`
	Failed    []BulkEditOutcome `json:"failed"`
	Matched   int64             `json:"matched"`
	Modified  int64             `json:"modified"`
}

// ImportResult summarizes a completed import.
type ImportResult struct {
	FileName  string        `json:"file_name"`
	MediaType string        `json:"media_type"`
	TotalRows int           `json:"total_rows"`
	Inserted  int           `json:"inserted"`
	Duration  time.Duration `json:"duration"`
}

// Store persists records. Implementations must be safe for concurrent use.
type Store interface {
	// InsertMany creates one record per row with DefaultCategory and returns the count.
	InsertMany(ctx context.Context, rows []ImportRow) (int, error)

	// Find returns a page of records ordered case-insensitively by name.
	Find(ctx context.Context, q ListQuery) (Page, error)

	// FindByID returns ErrNotFound, or ErrInvalidID for malformed ids.
	FindByID(ctx context.Context, id string) (Record, error)

	// UpdateByID overwrites name and mobile and returns the updated record.
	UpdateByID(ctx context.Context, id, name string, mobile int64) (Record, error)

	// UpdateCategoriesByNameAndMobile sets categories on every exact match.
	// Zero matches is not an error.
	UpdateCategoriesByNameAndMobile(ctx context.Context, name string, mobile int64, category string) (UpdateResult, error)

	// Search matches q against name or categories (case-insensitive substring)
	// or against mobile exactly when q is an integer.
	Search(ctx context.Context, q string, limit int) ([]Record, error)

	// Each calls fn for every record in storage order, stopping at the first error.
	Each(ctx context.Context, fn func(Record) error) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
