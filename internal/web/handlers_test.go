package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/rosterimport/internal/config"
	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/JonMunkholm/rosterimport/internal/store/memstore"
)

// stubStore wraps a memstore and injects failures.
type stubStore struct {
	*memstore.Store
	findErr      error
	updateCatErr func(name string, mobile int64) error
}

func (s *stubStore) Find(ctx context.Context, q core.ListQuery) (core.Page, error) {
	if s.findErr != nil {
		return core.Page{}, s.findErr
	}
	return s.Store.Find(ctx, q)
}

func (s *stubStore) UpdateCategoriesByNameAndMobile(ctx context.Context, name string, mobile int64, category string) (core.UpdateResult, error) {
	if s.updateCatErr != nil {
		if err := s.updateCatErr(name, mobile); err != nil {
			return core.UpdateResult{}, err
		}
	}
	return s.Store.UpdateCategoriesByNameAndMobile(ctx, name, mobile, category)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   100 * time.Millisecond,
			PerPage:       10,
		},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

func newTestServer(t *testing.T, store core.Store, cfg *config.Config) *Server {
	t.Helper()
	svc := core.NewService(store, core.ServiceConfig{
		PerPage:       cfg.Upload.PerPage,
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
		TempDir:       t.TempDir(),
	})
	s, err := NewServer(svc, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename, contentType string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(body)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/index", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func seed(t *testing.T, store core.Store, rows ...core.ImportRow) []core.Record {
	t.Helper()
	ctx := context.Background()
	_, err := store.InsertMany(ctx, rows)
	require.NoError(t, err)

	var recs []core.Record
	require.NoError(t, store.Each(ctx, func(r core.Record) error {
		recs = append(recs, r)
		return nil
	}))
	return recs
}

func allRecords(t *testing.T, store core.Store) []core.Record {
	t.Helper()
	var recs []core.Record
	require.NoError(t, store.Each(context.Background(), func(r core.Record) error {
		recs = append(recs, r)
		return nil
	}))
	return recs
}

func TestIndex_RendersUploadForm(t *testing.T) {
	s := newTestServer(t, memstore.New(), testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/index"`)
	assert.Contains(t, rec.Body.String(), `name="file"`)
	assert.Equal(t, contentSecurityPolicy, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestImport_CSV(t *testing.T) {
	store := memstore.New()
	s := newTestServer(t, store, testConfig())

	body := []byte("name,mobile\nAlice,9876543210\nBob,9123456780\nCara,9000000001\n")
	rec := serve(s, uploadRequest(t, "roster.csv", "text/csv", body))

	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/viewData", rec.Header().Get("Location"))

	recs := allRecords(t, store)
	require.Len(t, recs, 3)
	for _, r := range recs {
		assert.Equal(t, core.DefaultCategory, r.Categories)
	}
	assert.Equal(t, "Alice", recs[0].Name)
	assert.EqualValues(t, 9876543210, recs[0].Mobile)
}

func TestImport_BlankOptionalCells(t *testing.T) {
	store := memstore.New()
	s := newTestServer(t, store, testConfig())

	body := []byte("name,mobile\nAlice,1\nBob,\n,5550100\n")
	rec := serve(s, uploadRequest(t, "roster.csv", "text/csv", body))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	recs := allRecords(t, store)
	require.Len(t, recs, 3)
	assert.Equal(t, "Bob", recs[1].Name)
	assert.Zero(t, recs[1].Mobile)
	assert.Empty(t, recs[2].Name)
	assert.EqualValues(t, 5550100, recs[2].Mobile)
	for _, r := range recs {
		assert.Equal(t, core.DefaultCategory, r.Categories)
	}
}

func TestImport_Rejected(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		body        string
		wantStatus  int
		wantText    []string
	}{
		{
			name:       "no file",
			wantStatus: http.StatusBadRequest,
			wantText:   []string{"No file uploaded"},
		},
		{
			name:        "unsupported type",
			filename:    "roster.pdf",
			contentType: "application/pdf",
			body:        "%PDF-1.4",
			wantStatus:  http.StatusBadRequest,
			wantText:    []string{"Unsupported file type"},
		},
		{
			name:        "missing headers",
			filename:    "roster.csv",
			contentType: "text/csv",
			body:        "first,phone\nAlice,1\n",
			wantStatus:  http.StatusBadRequest,
			wantText:    []string{"Invalid or missing headers"},
		},
		{
			name:        "three columns",
			filename:    "roster.csv",
			contentType: "text/csv",
			body:        "name,mobile,email\nAlice,1,a@example.com\n",
			wantStatus:  http.StatusBadRequest,
			wantText:    []string{"File must contain exactly two columns: name and mobile"},
		},
		{
			name:        "invalid row",
			filename:    "roster.csv",
			contentType: "text/csv",
			body:        "name,mobile\nAlice,1\nBob,not-a-number\n",
			wantStatus:  http.StatusBadRequest,
			wantText:    []string{"Some rows are invalid", "line 3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			s := newTestServer(t, store, testConfig())

			rec := serve(s, uploadRequest(t, tt.filename, tt.contentType, []byte(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
			for _, want := range tt.wantText {
				assert.Contains(t, rec.Body.String(), want)
			}
			assert.Contains(t, rec.Body.String(), `action="/index"`, "form is re-rendered")
			assert.Zero(t, store.Len(), "nothing is persisted")
		})
	}
}

func TestImport_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 512
	store := memstore.New()
	s := newTestServer(t, store, cfg)

	body := "name,mobile\n" + strings.Repeat("Alice,9876543210\n", 200)
	rec := serve(s, uploadRequest(t, "roster.csv", "text/csv", []byte(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "maximum upload size")
	assert.Zero(t, store.Len())
}

func seedNames(t *testing.T, store core.Store, n int) {
	t.Helper()
	rows := make([]core.ImportRow, 0, n)
	// Reverse insertion order with mixed case, so only a case-insensitive
	// sort yields numeric order.
	for i := n; i >= 1; i-- {
		name := fmt.Sprintf("user%02d", i)
		if i%2 == 0 {
			name = fmt.Sprintf("User%02d", i)
		}
		rows = append(rows, core.ImportRow{Name: name, Mobile: int64(9000000000 + i)})
	}
	seed(t, store, rows...)
}

func nameCell(i int) string {
	if i%2 == 0 {
		return fmt.Sprintf(`class="name">User%02d<`, i)
	}
	return fmt.Sprintf(`class="name">user%02d<`, i)
}

func TestViewData_SecondPage(t *testing.T) {
	store := memstore.New()
	seedNames(t, store, 25)
	s := newTestServer(t, store, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/viewData?page=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	for i := 11; i <= 20; i++ {
		assert.Contains(t, body, nameCell(i))
	}
	assert.NotContains(t, body, nameCell(10))
	assert.NotContains(t, body, nameCell(21))
	for i := 11; i < 20; i++ {
		assert.Less(t, strings.Index(body, nameCell(i)), strings.Index(body, nameCell(i+1)))
	}

	assert.Contains(t, body, `rel="prev"`)
	assert.Contains(t, body, `rel="next"`)
	assert.Contains(t, body, "/viewData?page=1&amp;sort=name")
	assert.Contains(t, body, "/viewData?page=3&amp;sort=name")
	assert.Contains(t, body, "Page 2 of 3 (25 records)")
}

func TestViewData_FirstAndLastPage(t *testing.T) {
	store := memstore.New()
	seedNames(t, store, 25)
	s := newTestServer(t, store, testConfig())

	first := serve(s, httptest.NewRequest(http.MethodGet, "/viewData", nil)).Body.String()
	assert.NotContains(t, first, `rel="prev"`)
	assert.Contains(t, first, `rel="next"`)

	last := serve(s, httptest.NewRequest(http.MethodGet, "/viewData?page=3", nil)).Body.String()
	assert.Contains(t, last, `rel="prev"`)
	assert.NotContains(t, last, `rel="next"`)
	assert.Contains(t, last, nameCell(25))
}

func TestViewData_PageBeyondRange(t *testing.T) {
	store := memstore.New()
	seedNames(t, store, 25)
	s := newTestServer(t, store, testConfig())

	for _, page := range []string{"9223372036854775807", "4"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/viewData?page="+page, nil))
		require.Equal(t, http.StatusOK, rec.Code, "page=%s", page)
		body := rec.Body.String()
		assert.Contains(t, body, `rel="prev"`, "page=%s", page)
		assert.NotContains(t, body, `rel="next"`, "page=%s", page)
		assert.NotContains(t, body, nameCell(1), "page=%s", page)
	}
}

func TestViewData_SortDescending(t *testing.T) {
	store := memstore.New()
	seedNames(t, store, 25)
	s := newTestServer(t, store, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/viewData?sort=-username", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, nameCell(25))
	assert.Contains(t, body, nameCell(16))
	assert.NotContains(t, body, nameCell(15))
	assert.Less(t, strings.Index(body, nameCell(25)), strings.Index(body, nameCell(24)))
	assert.Contains(t, body, "/viewData?page=2&amp;sort=-username", "next link keeps the sort")
}

func TestViewData_StoreFailure(t *testing.T) {
	store := &stubStore{Store: memstore.New(), findErr: errors.New("connection refused")}
	s := newTestServer(t, store, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/viewData", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func bulkEditFixture(t *testing.T, store core.Store) {
	seed(t, store,
		core.ImportRow{Name: "Alice", Mobile: 1},
		core.ImportRow{Name: "Alice", Mobile: 1},
		core.ImportRow{Name: "Bob", Mobile: 2},
		core.ImportRow{Name: "Alice", Mobile: 3},
	)
}

func categoriesByKey(t *testing.T, store core.Store) map[string][]string {
	out := make(map[string][]string)
	for _, r := range allRecords(t, store) {
		key := fmt.Sprintf("%s/%d", r.Name, r.Mobile)
		out[key] = append(out[key], r.Categories)
	}
	return out
}

func TestBulkEdit_UpdatesMatchingPairs(t *testing.T) {
	store := memstore.New()
	bulkEditFixture(t, store)
	s := newTestServer(t, store, testConfig())

	req := jsonRequest(t, http.MethodPost, "/bulk-edit", map[string]any{
		"selectedUsers": []map[string]any{
			{"name": "Alice", "mobile": "1", "categories": "x"},
			{"name": "Bob", "mobile": 2, "categories": "x"},
		},
		"newCategory": "VIP",
	})
	rec := serve(s, req)

	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/viewData", rec.Header().Get("Location"))

	got := categoriesByKey(t, store)
	assert.Equal(t, []string{"VIP", "VIP"}, got["Alice/1"])
	assert.Equal(t, []string{"VIP"}, got["Bob/2"])
	assert.Equal(t, []string{"x"}, got["Alice/3"])
}

func TestBulkEdit_JSONReport(t *testing.T) {
	store := memstore.New()
	bulkEditFixture(t, store)
	s := newTestServer(t, store, testConfig())

	req := jsonRequest(t, http.MethodPost, "/bulk-edit", map[string]any{
		"selectedUsers": []map[string]any{{"name": "Alice", "mobile": 1}, {"name": "Nobody", "mobile": 9}},
		"newCategory":   "VIP",
	})
	req.Header.Set("Accept", "application/json")
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report core.BulkEditReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "VIP", report.Category)
	assert.Len(t, report.Succeeded, 2, "zero matches is not a failure")
	assert.Empty(t, report.Failed)
	assert.EqualValues(t, 2, report.Matched)
	assert.EqualValues(t, 2, report.Modified)
}

func TestBulkEdit_InvalidRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      any
		wantField string
	}{
		{
			name:      "missing category",
			body:      map[string]any{"selectedUsers": []map[string]any{{"name": "Alice", "mobile": 1}}},
			wantField: "newCategory",
		},
		{
			name:      "missing selection",
			body:      map[string]any{"newCategory": "VIP"},
			wantField: "selectedUsers",
		},
		{
			name:      "missing name",
			body:      map[string]any{"selectedUsers": []map[string]any{{"mobile": 1}}, "newCategory": "VIP"},
			wantField: "selectedUsers[0].name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, memstore.New(), testConfig())

			rec := serve(s, jsonRequest(t, http.MethodPost, "/bulk-edit", tt.body))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "VAL004", resp.Code)
			assert.Contains(t, resp.Fields, tt.wantField)
		})
	}

	t.Run("non-numeric mobile", func(t *testing.T) {
		s := newTestServer(t, memstore.New(), testConfig())
		rec := serve(s, jsonRequest(t, http.MethodPost, "/bulk-edit", map[string]any{
			"selectedUsers": []map[string]any{{"name": "Alice", "mobile": "abc"}},
			"newCategory":   "VIP",
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		s := newTestServer(t, memstore.New(), testConfig())
		req := httptest.NewRequest(http.MethodPost, "/bulk-edit", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		assert.Equal(t, http.StatusBadRequest, serve(s, req).Code)
	})
}

func TestBulkEdit_PartialFailure(t *testing.T) {
	store := &stubStore{
		Store: memstore.New(),
		updateCatErr: func(name string, _ int64) error {
			if name == "Bob" {
				return errors.New("connection reset by peer")
			}
			return nil
		},
	}
	bulkEditFixture(t, store)
	s := newTestServer(t, store, testConfig())

	rec := serve(s, jsonRequest(t, http.MethodPost, "/bulk-edit", map[string]any{
		"selectedUsers": []map[string]any{
			{"name": "Bob", "mobile": 2},
			{"name": "Alice", "mobile": 1},
		},
		"newCategory": "VIP",
	}))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp bulkEditFailure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Bulk editing failed", resp.Message)
	require.NotNil(t, resp.Report)
	require.Len(t, resp.Report.Failed, 1)
	assert.Equal(t, "Bob", resp.Report.Failed[0].Name)
	require.Len(t, resp.Report.Succeeded, 1)
	assert.Equal(t, "Alice", resp.Report.Succeeded[0].Name)

	got := categoriesByKey(t, store)
	assert.Equal(t, []string{"VIP", "VIP"}, got["Alice/1"], "items after the failure are still applied")
	assert.Equal(t, []string{"x"}, got["Bob/2"])
}

func TestGetRecord(t *testing.T) {
	store := memstore.New()
	recs := seed(t, store, core.ImportRow{Name: "Alice", Mobile: 9876543210})
	s := newTestServer(t, store, testConfig())

	t.Run("round trip", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/getUserRole/"+recs[0].ID, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"name":"Alice","mobile":9876543210}`, rec.Body.String())
	})

	for name, id := range map[string]string{
		"missing":   "64b7f0c2a1b2c3d4e5f60718",
		"malformed": "not-an-id",
	} {
		t.Run(name, func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(http.MethodGet, "/getUserRole/"+id, nil))
			assert.Equal(t, http.StatusNotFound, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "User not found", resp.Error)
		})
	}
}

func TestUpdateRecord(t *testing.T) {
	store := memstore.New()
	recs := seed(t, store, core.ImportRow{Name: "Alice", Mobile: 1})
	s := newTestServer(t, store, testConfig())
	id := recs[0].ID

	t.Run("json body", func(t *testing.T) {
		rec := serve(s, jsonRequest(t, http.MethodPost, "/updateRole/"+id, map[string]any{
			"newname":   "Alicia",
			"newmobile": 9876543210,
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp updateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "User role updated successfully", resp.Message)
		assert.Equal(t, core.Record{ID: id, Name: "Alicia", Mobile: 9876543210, Categories: "x"}, resp.User)
	})

	t.Run("form body", func(t *testing.T) {
		form := url.Values{"newname": {"Ali"}, "newmobile": {"42"}}
		req := httptest.NewRequest(http.MethodPost, "/updateRole/"+id, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := serve(s, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got := serve(s, httptest.NewRequest(http.MethodGet, "/getUserRole/"+id, nil))
		assert.JSONEq(t, `{"name":"Ali","mobile":42}`, got.Body.String())
	})

	t.Run("non-numeric mobile", func(t *testing.T) {
		rec := serve(s, jsonRequest(t, http.MethodPost, "/updateRole/"+id, map[string]any{
			"newname":   "Ali",
			"newmobile": "call me",
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing record", func(t *testing.T) {
		rec := serve(s, jsonRequest(t, http.MethodPost, "/updateRole/64b7f0c2a1b2c3d4e5f60718", map[string]any{
			"newname": "Ghost", "newmobile": 1,
		}))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := serve(s, jsonRequest(t, http.MethodPost, "/updateRole/not-an-id", map[string]any{
			"newname": "Ghost", "newmobile": 1,
		}))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	})
}

func TestSearch(t *testing.T) {
	store := memstore.New()
	seed(t, store,
		core.ImportRow{Name: "Alice", Mobile: 111},
		core.ImportRow{Name: "Bob", Mobile: 222},
	)
	s := newTestServer(t, store, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/search?q=ALI", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Results []SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Alice", resp.Results[0].Name)
	assert.NotEmpty(t, resp.Results[0].UserID)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/search?q=222", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Bob", resp.Results[0].Name)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/search", nil))
	assert.JSONEq(t, `{"results":[]}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	store := memstore.New()
	s := newTestServer(t, store, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	require.NoError(t, store.Close(context.Background()))
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStaticFiles(t *testing.T) {
	s := newTestServer(t, memstore.New(), testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/bulk-edit")
}
