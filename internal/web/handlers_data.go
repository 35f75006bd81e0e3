package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/JonMunkholm/rosterimport/internal/logging"
	"github.com/JonMunkholm/rosterimport/internal/web/templates"
)

// defaultSortLabel is echoed in pagination links when no sort was requested.
const defaultSortLabel = "name"

// handleViewData renders one page of the record table.
// Query params: page (1-based, default 1), sort ("-username" for descending).
func (s *Server) handleViewData(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r, "page", 1)
	sortParam := r.URL.Query().Get("sort")

	result, err := s.service.List(r.Context(), page, core.ParseSort(sortParam))
	if err != nil {
		msg := logError(r, err, http.StatusInternalServerError)
		http.Error(w, msg.Message+" ("+msg.Code+")", http.StatusInternalServerError)
		return
	}

	if sortParam == "" {
		sortParam = defaultSortLabel
	}
	props := templates.ViewDataProps{
		Records:    result.Records,
		Page:       result.Page,
		TotalPages: result.TotalPages(),
		Total:      result.Total,
		HasPrev:    result.HasPrev(),
		HasNext:    result.HasNext(),
		PrevPage:   result.Page - 1,
		NextPage:   result.Page + 1,
		Sort:       sortParam,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ViewData(props).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render record table", "error", err)
	}
}

// SearchResult is one record in a search response.
type SearchResult struct {
	Name       string `json:"name"`
	Mobile     int64  `json:"mobile"`
	Categories string `json:"categories"`
	UserID     string `json:"userID"`
}

// handleSearch returns records whose name or category contains q, or whose
// mobile equals q.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	results := make([]SearchResult, len(recs))
	for i, rec := range recs {
		results[i] = SearchResult{
			Name:       rec.Name,
			Mobile:     rec.Mobile,
			Categories: rec.Categories,
			UserID:     rec.ID,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleHealth reports whether the store is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		logging.FromContext(ctx).Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	status := s.service.ImportStatus()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"imports_active": status.Active,
	})
}
