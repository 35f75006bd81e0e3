package core_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/JonMunkholm/rosterimport/internal/store/memstore"
)

func newService(t *testing.T) (*core.Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	svc := core.NewService(st, core.ServiceConfig{PerPage: 2, TempDir: t.TempDir()})
	return svc, st
}

func csvUpload(body string) core.Upload {
	return core.Upload{FileName: "roster.csv", MediaType: core.MediaTypeCSV, Body: strings.NewReader(body)}
}

func TestImport_CSV(t *testing.T) {
	svc, st := newService(t)

	res, err := svc.Import(context.Background(), csvUpload("name,mobile\nAlice,5550100\nBob,5550101\nAlice,5550100\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, core.MediaTypeCSV, res.MediaType)
	assert.Equal(t, 3, st.Len(), "duplicate rows are kept")
}

func TestImport_XLSX(t *testing.T) {
	svc, st := newService(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"name", "mobile"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Alice", 5550100}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res, err := svc.Import(context.Background(), core.Upload{
		FileName:  "roster.xlsx",
		MediaType: core.MediaTypeXLSX,
		Body:      buf,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, st.Len())
}

func TestImport_RejectsWithoutWriting(t *testing.T) {
	tests := []struct {
		name    string
		upload  core.Upload
		wantErr error
	}{
		{"no body", core.Upload{MediaType: core.MediaTypeCSV}, core.ErrNoFileUploaded},
		{"unsupported type", core.Upload{MediaType: "application/pdf", Body: strings.NewReader("%PDF")}, core.ErrUnsupportedFileType},
		{"missing headers", csvUpload("first,phone\nAlice,5550100\n"), core.ErrMissingHeaders},
		{"header only", csvUpload("name,mobile\n"), core.ErrMissingHeaders},
		{"extra column", csvUpload("name,mobile,email\nAlice,5550100,a@b.c\n"), core.ErrUnexpectedColumns},
		{"one bad row", csvUpload("name,mobile\nAlice,5550100\nBob,call me\n"), core.ErrInvalidRows},
		{"wide row", csvUpload("name,mobile\nAlice,5550100\nBob,5550101,oops\n"), core.ErrUnexpectedColumns},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newService(t)
			_, err := svc.Import(context.Background(), tt.upload)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, st.Len(), "nothing may be written on rejection")
		})
	}
}

func TestImport_RemovesStagedFile(t *testing.T) {
	dir := t.TempDir()
	svc := core.NewService(memstore.New(), core.ServiceConfig{TempDir: dir})

	_, err := svc.Import(context.Background(), csvUpload("name,mobile\nAlice,5550100\n"))
	require.NoError(t, err)
	_, err = svc.Import(context.Background(), csvUpload("nope\n"))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImport_BusyLimiter(t *testing.T) {
	svc := core.NewService(memstore.New(), core.ServiceConfig{MaxConcurrent: 1, MaxWait: 1, TempDir: t.TempDir()})

	// A body that blocks keeps the single slot occupied.
	block := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Import(context.Background(), core.Upload{
			MediaType: core.MediaTypeCSV,
			Body:      &blockingReader{started: started, release: block},
		})
	}()
	<-started

	_, err := svc.Import(context.Background(), csvUpload("name,mobile\nAlice,1\n"))
	assert.ErrorIs(t, err, core.ErrTooManyImports)
	close(block)
	<-done
}

type blockingReader struct {
	started chan struct{}
	release chan struct{}
	once    bool
}

func (b *blockingReader) Read(p []byte) (int, error) {
	if !b.once {
		b.once = true
		close(b.started)
		<-b.release
	}
	return 0, errors.New("closed")
}

func TestList_PaginatesAndSorts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Import(ctx, csvUpload("name,mobile\ncarol,3\nAlice,1\nbob,2\n"))
	require.NoError(t, err)

	p1, err := svc.List(ctx, 1, core.ParseSort("name"))
	require.NoError(t, err)
	require.Len(t, p1.Records, 2)
	assert.Equal(t, "Alice", p1.Records[0].Name)
	assert.Equal(t, "bob", p1.Records[1].Name)
	assert.True(t, p1.HasNext())
	assert.False(t, p1.HasPrev())

	p2, err := svc.List(ctx, 2, core.SortAsc)
	require.NoError(t, err)
	require.Len(t, p2.Records, 1)
	assert.Equal(t, "carol", p2.Records[0].Name)
	assert.False(t, p2.HasNext())

	desc, err := svc.List(ctx, 1, core.ParseSort("-username"))
	require.NoError(t, err)
	assert.Equal(t, "carol", desc.Records[0].Name)

	clamped, err := svc.List(ctx, 0, core.SortAsc)
	require.NoError(t, err)
	assert.Equal(t, 1, clamped.Page)
}

func TestGetAndUpdate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Import(ctx, csvUpload("name,mobile\nAlice,5550100\n"))
	require.NoError(t, err)
	page, err := svc.List(ctx, 1, core.SortAsc)
	require.NoError(t, err)
	id := page.Records[0].ID

	rec, err := svc.Update(ctx, id, " Alicia ", "9876543210")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", rec.Name)
	assert.EqualValues(t, 9876543210, rec.Mobile)
	assert.Equal(t, "x", rec.Categories)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = svc.Update(ctx, id, "Alicia", "not a number")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = svc.Get(ctx, "64b7f0c2a1b2c3d4e5f60718")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = svc.Get(ctx, "garbage")
	assert.ErrorIs(t, err, core.ErrInvalidID)

	_, err = svc.Get(ctx, "")
	assert.ErrorIs(t, err, core.ErrInvalidID)
}

func TestBulkEditCategories(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	_, err := svc.Import(ctx, csvUpload("name,mobile\nAlice,1\nAlice,1\nBob,2\nCarol,3\n"))
	require.NoError(t, err)

	report, err := svc.BulkEditCategories(ctx, []core.BulkEditItem{
		{Name: "Alice", Mobile: 1},
		{Name: "Bob", Mobile: 2},
		{Name: "Nobody", Mobile: 9},
	}, " vip ")
	require.NoError(t, err)
	assert.Equal(t, "vip", report.Category)
	assert.Len(t, report.Succeeded, 3)
	assert.Empty(t, report.Failed)
	assert.EqualValues(t, 3, report.Matched)
	assert.EqualValues(t, 3, report.Modified)

	var cats []string
	require.NoError(t, st.Each(ctx, func(r core.Record) error {
		cats = append(cats, r.Categories)
		return nil
	}))
	assert.Equal(t, []string{"vip", "vip", "vip", "x"}, cats)

	_, err = svc.BulkEditCategories(ctx, nil, "   ")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestBulkEditCategories_ReportsFailures(t *testing.T) {
	st := &failingStore{Store: memstore.New(), failName: "Bob"}
	svc := core.NewService(st, core.ServiceConfig{TempDir: t.TempDir()})
	ctx := context.Background()
	_, err := svc.Import(ctx, csvUpload("name,mobile\nAlice,1\nBob,2\n"))
	require.NoError(t, err)

	report, err := svc.BulkEditCategories(ctx, []core.BulkEditItem{{Name: "Bob", Mobile: 2}, {Name: "Alice", Mobile: 1}}, "vip")
	assert.ErrorIs(t, err, core.ErrBulkEditIncomplete)
	require.NotNil(t, report)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "Bob", report.Failed[0].Name)
	require.Len(t, report.Succeeded, 1, "later items are still attempted")
	assert.Equal(t, "Alice", report.Succeeded[0].Name)
}

type failingStore struct {
	*memstore.Store
	failName string
}

func (f *failingStore) UpdateCategoriesByNameAndMobile(ctx context.Context, name string, mobile int64, category string) (core.UpdateResult, error) {
	if name == f.failName {
		return core.UpdateResult{}, errors.New("connection reset by peer")
	}
	return f.Store.UpdateCategoriesByNameAndMobile(ctx, name, mobile, category)
}

func TestSearch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Import(ctx, csvUpload("name,mobile\nAlice Smith,5550100\nBob,5550101\n"))
	require.NoError(t, err)

	got, err := svc.Search(ctx, "  smith ")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice Smith", got[0].Name)

	got, err = svc.Search(ctx, "5550101")
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = svc.Search(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExport(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Import(ctx, csvUpload("name,mobile\nAlice,1\nBob,2\n"))
	require.NoError(t, err)

	t.Run("jsonl", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := svc.Export(ctx, &buf, core.ExportJSONLines)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		var rec core.Record
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
		assert.Equal(t, "Alice", rec.Name)
		assert.Contains(t, lines[0], `"_id"`)
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := svc.Export(ctx, &buf, core.ExportCSV)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		var recs []core.Record
		require.NoError(t, csvutil.Unmarshal(buf.Bytes(), &recs))
		require.Len(t, recs, 2)
		assert.Equal(t, "Bob", recs[1].Name)
		assert.EqualValues(t, 2, recs[1].Mobile)
	})

	t.Run("xlsx", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := svc.Export(ctx, &buf, core.ExportXLSX)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		f, err := excelize.OpenReader(&buf)
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Records")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"id", "name", "mobile", "categories"}, rows[0])
		assert.Equal(t, "Alice", rows[1][1])
	})
}

func TestParseExportFormat(t *testing.T) {
	f, err := core.ParseExportFormat("")
	require.NoError(t, err)
	assert.Equal(t, core.ExportJSONLines, f)

	f, err = core.ParseExportFormat("xlsx")
	require.NoError(t, err)
	assert.Equal(t, core.ExportXLSX, f)

	_, err = core.ParseExportFormat("pdf")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
