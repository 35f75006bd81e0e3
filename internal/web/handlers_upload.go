package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/JonMunkholm/rosterimport/internal/logging"
	"github.com/JonMunkholm/rosterimport/internal/web/templates"
)

// handleIndex renders the upload form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r, http.StatusOK, templates.IndexProps{})
}

// handleImport accepts a multipart upload in field "file", imports it and
// redirects to the record table. Problems with the file re-render the form.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if !errors.As(err, &maxBytes) {
			err = fmt.Errorf("%w: %w", core.ErrNoFileUploaded, err)
		}
		s.respondImportError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			err = core.ErrNoFileUploaded
		}
		s.respondImportError(w, r, err)
		return
	}
	defer file.Close()

	result, err := s.service.Import(r.Context(), core.Upload{
		FileName:  header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Body:      file,
	})
	if err != nil {
		s.respondImportError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import complete",
		"file", result.FileName,
		"inserted", result.Inserted,
	)
	http.Redirect(w, r, "/viewData", http.StatusSeeOther)
}

// respondImportError re-renders the form for problems the user can fix and
// answers JSON for server-side failures.
func (s *Server) respondImportError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		if errors.Is(err, core.ErrTooManyImports) {
			w.Header().Set("Retry-After", retryAfter(s.cfg.Upload.MaxWaitTime))
		}
		respondError(w, r, err, status)
		return
	}

	msg := logError(r, err, status)
	props := templates.IndexProps{
		Error:  msg.Message,
		Action: msg.Action,
		Code:   msg.Code,
	}
	var importErr *core.ImportError
	if errors.As(err, &importErr) {
		props.Details = importErr.Messages()
		if importErr.Truncated {
			props.Details = append(props.Details, "further errors were not checked")
		}
	}
	s.renderIndex(w, r, status, props)
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, status int, props templates.IndexProps) {
	props.MaxUploadMB = s.cfg.Upload.MaxFileSize >> 20
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.Index(props).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render index", "error", err)
	}
}
