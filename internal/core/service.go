package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/JonMunkholm/rosterimport/internal/logging"
)

// ImportTimeout bounds parsing plus insertion of one upload.
var ImportTimeout = 5 * time.Minute

// SearchLimit caps the number of records a search returns.
const SearchLimit = 50

// ServiceConfig tunes a Service. Zero values fall back to package defaults.
type ServiceConfig struct {
	PerPage       int
	MaxConcurrent int
	MaxWait       time.Duration
	TempDir       string // staging directory for uploads; "" uses os.TempDir
	PhoneRegion   string // ISO 3166 region for phone validation; "" disables it
	MaxRowErrors  int
}

// Service provides the roster operations shared by the web server and the CLI.
type Service struct {
	store     Store
	limiter   *ImportLimiter
	validator *RowValidator
	perPage   int
	tempDir   string
}

// NewService creates a Service backed by store.
func NewService(store Store, cfg ServiceConfig) *Service {
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Service{
		store:     store,
		limiter:   NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		validator: NewRowValidator(cfg.PhoneRegion, cfg.MaxRowErrors),
		perPage:   perPage,
		tempDir:   cfg.TempDir,
	}
}

// PerPage returns the configured page size.
func (s *Service) PerPage() int {
	return s.perPage
}

// Upload is a file received from a client.
type Upload struct {
	FileName  string
	MediaType string
	Body      io.Reader
}

// Import parses, validates and stores an uploaded file. Either every row is
// inserted or none is: validation runs over the whole file before the store
// is touched.
//
// Returns ErrTooManyImports if no import slot frees up in time.
func (s *Service) Import(ctx context.Context, up Upload) (*ImportResult, error) {
	start := time.Now()
	if up.Body == nil {
		return nil, ErrNoFileUploaded
	}
	if _, err := FormatForMediaType(up.MediaType); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, ImportTimeout)
	defer cancel()

	logger := logging.WithFields(ctx, "file", up.FileName, "media_type", NormalizeMediaType(up.MediaType))

	staged, size, err := s.stage(up.Body)
	if err != nil {
		return nil, err
	}
	defer func() {
		staged.Close()
		if err := os.Remove(staged.Name()); err != nil {
			logger.Warn("failed to remove staged upload", "path", staged.Name(), "error", err)
		}
	}()

	pf, err := ParseUpload(staged, up.MediaType)
	if err != nil {
		logger.Info("upload rejected", "bytes", size, "error", err)
		return nil, err
	}

	rows, err := s.validator.Validate(pf)
	if err != nil {
		logger.Info("upload rejected", "bytes", size, "rows", len(pf.Rows), "error", err)
		return nil, err
	}

	inserted, err := s.store.InsertMany(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("insert records: %w", err)
	}

	result := &ImportResult{
		FileName:  up.FileName,
		MediaType: NormalizeMediaType(up.MediaType),
		TotalRows: len(rows),
		Inserted:  inserted,
		Duration:  time.Since(start),
	}
	logger.Info("upload imported",
		"bytes", size,
		"inserted", inserted,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// stage copies the upload body to a temporary file and rewinds it.
func (s *Service) stage(body io.Reader) (*os.File, int64, error) {
	f, err := os.CreateTemp(s.tempDir, "roster-upload-*")
	if err != nil {
		return nil, 0, fmt.Errorf("create staging file: %w", err)
	}

	cr := NewCountingReader(body)
	if _, err := io.Copy(f, cr); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, 0, fmt.Errorf("stage upload: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, 0, fmt.Errorf("rewind staged upload: %w", err)
	}
	return f, cr.BytesRead(), nil
}

// List returns one page of records sorted by name.
func (s *Service) List(ctx context.Context, page int, sort SortDirection) (Page, error) {
	q := ListQuery{Page: page, PerPage: s.perPage, Sort: sort}.Normalize()
	p, err := s.store.Find(ctx, q)
	if err != nil {
		return Page{}, fmt.Errorf("list records: %w", err)
	}
	return p, nil
}

// Get returns the record with the given id.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, ErrInvalidID
	}
	return s.store.FindByID(ctx, id)
}

// Update overwrites the name and mobile of one record and returns the result.
// newMobile must parse as a non-negative integer.
func (s *Service) Update(ctx context.Context, id, newName, newMobile string) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, ErrInvalidID
	}
	mobile, err := ParseMobile(newMobile)
	if err != nil {
		return Record{}, fmt.Errorf("%w: mobile %s", ErrInvalidInput, err)
	}

	rec, err := s.store.UpdateByID(ctx, id, strings.TrimSpace(newName), mobile)
	if err != nil {
		return Record{}, err
	}
	logging.FromContext(ctx).Info("record updated", "id", id)
	return rec, nil
}

// BulkEditCategories sets category on every record matching each item's exact
// name and mobile. Every item is attempted; if any fails the report is
// returned together with ErrBulkEditIncomplete.
func (s *Service) BulkEditCategories(ctx context.Context, items []BulkEditItem, category string) (*BulkEditReport, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", ErrInvalidInput)
	}

	report := &BulkEditReport{
		Category:  category,
		Succeeded: []BulkEditOutcome{},
		Failed:    []BulkEditOutcome{},
	}
	for _, item := range items {
		outcome := BulkEditOutcome{Name: item.Name, Mobile: item.Mobile}

		res, err := s.store.UpdateCategoriesByNameAndMobile(ctx, item.Name, item.Mobile, category)
		if err != nil {
			outcome.Error = MapError(err).Message
			report.Failed = append(report.Failed, outcome)
			logging.FromContext(ctx).Error("bulk edit item failed",
				"name", item.Name, "mobile", item.Mobile, "error", err)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			continue
		}

		outcome.Matched, outcome.Modified = res.Matched, res.Modified
		report.Matched += res.Matched
		report.Modified += res.Modified
		report.Succeeded = append(report.Succeeded, outcome)
	}

	logging.FromContext(ctx).Info("bulk edit applied",
		"category", category,
		"items", len(items),
		"failed", len(report.Failed),
		"modified", report.Modified,
	)
	if len(report.Failed) > 0 || len(report.Succeeded) < len(items) {
		return report, fmt.Errorf("%w: %d of %d items failed", ErrBulkEditIncomplete, len(items)-len(report.Succeeded), len(items))
	}
	return report, nil
}

// Search returns up to SearchLimit records whose name or categories contain q,
// or whose mobile equals q.
func (s *Service) Search(ctx context.Context, q string) ([]Record, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []Record{}, nil
	}
	recs, err := s.store.Search(ctx, q, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	return recs, nil
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ImportStatus reports the import limiter's state.
func (s *Service) ImportStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until in-flight imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
