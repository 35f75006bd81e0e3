package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/rosterimport/internal/core"
)

// bulkEditRequest is the body of POST /bulk-edit.
type bulkEditRequest struct {
	SelectedUsers []bulkEditUser `json:"selectedUsers" validate:"required,dive"`
	NewCategory   string         `json:"newCategory" validate:"required,max=64"`
}

type bulkEditUser struct {
	Name       string      `json:"name" validate:"required,max=256"`
	Mobile     mobileValue `json:"mobile" validate:"required"`
	Categories string      `json:"categories"` // current value; informational only
}

// bulkEditFailure is returned when some items could not be updated.
type bulkEditFailure struct {
	ErrorResponse
	Report *core.BulkEditReport `json:"report"`
}

// handleBulkEdit sets a new category on every record matching one of the
// selected name/mobile pairs. Every pair is attempted; any failure returns
// 500 with a report of what was and was not applied.
func (s *Server) handleBulkEdit(w http.ResponseWriter, r *http.Request) {
	var req bulkEditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidationError(w, r, err)
		return
	}

	items := make([]core.BulkEditItem, 0, len(req.SelectedUsers))
	for i, u := range req.SelectedUsers {
		mobile, err := core.ParseMobile(string(u.Mobile))
		if err != nil {
			respondError(w, r, fmt.Errorf("%w: selectedUsers[%d].mobile: %w", core.ErrInvalidInput, i, err), http.StatusBadRequest)
			return
		}
		items = append(items, core.BulkEditItem{Name: u.Name, Mobile: mobile})
	}

	report, err := s.service.BulkEditCategories(r.Context(), items, req.NewCategory)
	if err != nil {
		if errors.Is(err, core.ErrBulkEditIncomplete) {
			msg := logError(r, err, http.StatusInternalServerError)
			writeJSON(w, http.StatusInternalServerError, bulkEditFailure{
				ErrorResponse: errorResponse(msg),
				Report:        report,
			})
			return
		}
		respondError(w, r, err, statusFor(err))
		return
	}

	if acceptsJSON(r) {
		writeJSON(w, http.StatusOK, report)
		return
	}
	http.Redirect(w, r, "/viewData", http.StatusSeeOther)
}

// recordSummary is the payload of GET /getUserRole/{userId}.
type recordSummary struct {
	Name   string `json:"name"`
	Mobile int64  `json:"mobile"`
}

// handleGetRecord returns the name and mobile of one record for the edit dialog.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.Get(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, recordSummary{Name: rec.Name, Mobile: rec.Mobile})
}

// updateRequest is the JSON form of POST /updateRole/{userId}.
type updateRequest struct {
	NewName   string      `json:"newname" validate:"max=256"`
	NewMobile mobileValue `json:"newmobile"`
}

// updateResponse is returned after a successful single-record edit.
type updateResponse struct {
	Message string      `json:"message"`
	User    core.Record `json:"user"`
}

// handleUpdateRecord overwrites the name and mobile of one record. The body
// may be JSON or a url-encoded form with fields newname and newmobile.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if isJSONRequest(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			respondValidationError(w, r, err)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := r.ParseForm(); err != nil {
			respondError(w, r, fmt.Errorf("%w: %w", core.ErrInvalidInput, err), http.StatusBadRequest)
			return
		}
		req.NewName = r.PostFormValue("newname")
		req.NewMobile = mobileValue(r.PostFormValue("newmobile"))
	}

	rec, err := s.service.Update(r.Context(), chi.URLParam(r, "userId"), req.NewName, string(req.NewMobile))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{
		Message: "User role updated successfully",
		User:    rec,
	})
}
