package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/staffimport/internal/core"
	"github.com/JonMunkholm/staffimport/internal/spreadsheet"
	mw "github.com/JonMunkholm/staffimport/internal/web/middleware"
)

// multipartMemory is how much of a multipart form is kept in memory.
const multipartMemory = 8 << 20

// Envelope wraps every successful response body.
type Envelope[T any] struct {
	Status string `json:"status,omitempty"`
	Data   T      `json:"data"`
}

// UploadData is returned for a new import.
type UploadData struct {
	ImportID      string            `json:"importId"`
	ImportPreview *core.BatchResult `json:"importPreview"`
}

// PreviewData carries a stored or fresh preview.
type PreviewData struct {
	ImportPreview *core.BatchResult `json:"importPreview"`
}

// CommitRequest selects the rows to import. Indices count the non-blank data
// rows of the upload from 0.
type CommitRequest struct {
	SelectedRecords []int `json:"selectedRecords"`
}

// CommitData carries the result of a commit.
type CommitData struct {
	ImportResult *core.BatchResult `json:"importResult"`
}

// handleUpload stages an uploaded file and returns its preview.
//
// Form fields: file (required), encoding (charset of .csv files) and
// preview (bool, default true; false stages the file without a preview).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFromContext(r.Context())

	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, r, wrapFormError(err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		respondError(w, r, &http.MaxBytesError{Limit: maxSize})
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxSize))
	if err != nil {
		respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	runPreview := true
	if v := r.FormValue("preview"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, r, fmt.Errorf("%w: preview: %v", errBadBody, err))
			return
		}
		runPreview = b
	}

	id, preview, err := s.service.Upload(r.Context(), core.UploadRequest{
		EntityID:    p.EntityID,
		Actor:       p.Login,
		FileName:    header.Filename,
		Encoding:    r.FormValue("encoding"),
		Data:        data,
		SkipPreview: !runPreview,
	})
	if err != nil {
		respondErrorFor(w, r, err, id)
		return
	}

	w.Header().Set("Location", "/api/imports/"+id)
	writeJSON(w, http.StatusCreated, Envelope[UploadData]{Data: UploadData{ImportID: id, ImportPreview: preview}})
}

// wrapFormError keeps the size limit error and marks anything else as a
// missing file.
func wrapFormError(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return fmt.Errorf("%w: %v", errNoFile, err)
}

// handleGetImport returns the state of an import.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ownedImport(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope[*core.ImportSession]{Data: sess})
}

// handleGetPreview returns the stored preview. An import staged without a
// preview answers 204.
func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ownedImport(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	preview, err := s.service.GetPreview(r.Context(), sess.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if preview == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, Envelope[PreviewData]{Data: PreviewData{ImportPreview: preview}})
}

// handlePreview runs the preview again, for example after departments were
// added.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ownedImport(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	preview, err := s.service.Preview(r.Context(), sess.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope[PreviewData]{Data: PreviewData{ImportPreview: preview}})
}

// handleCommit imports the selected rows. It succeeds once per import.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ownedImport(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req CommitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errBadBody, err))
		return
	}

	result, err := s.service.Commit(r.Context(), sess.ID, req.SelectedRecords)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope[CommitData]{Status: "ok", Data: CommitData{ImportResult: result}})
}

// ownedImport loads the import named in the URL. Imports of other entities
// are reported as not found.
func (s *Server) ownedImport(r *http.Request) (*core.ImportSession, error) {
	id := chi.URLParam(r, "importID")
	p, _ := mw.PrincipalFromContext(r.Context())

	sess, err := s.service.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if sess.EntityID != p.EntityID {
		return nil, fmt.Errorf("import %s: %w", id, core.ErrSessionNotFound)
	}
	return sess, nil
}

// handleTemplate serves the .xlsx upload template.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := spreadsheet.WriteTemplate(&buf); err != nil {
		respondError(w, r, fmt.Errorf("write template: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", spreadsheet.TemplateFileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// handleStatus reports the run limiter state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.LimiterStatus())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks the storage when a ready check is configured.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
