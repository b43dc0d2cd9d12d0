package web

// errors.go renders every failed request the same way: the technical error
// is logged with the request ID, and the client gets a JSON body with the
// user-facing message and support code from core.MapError.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/staffimport/internal/core"
	"github.com/JonMunkholm/staffimport/internal/logging"
	"github.com/JonMunkholm/staffimport/internal/spreadsheet"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	ImportID  string `json:"importId,omitempty"`
}

// Request errors detected by the handlers.
var (
	errNoFile  = errors.New("no file provided")
	errBadBody = errors.New("invalid request body")
)

// statusFor maps an error to the HTTP status of its response.
func statusFor(err error) int {
	var pe *core.ParseError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, spreadsheet.ErrTooManyRows):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, spreadsheet.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &pe), errors.Is(err, core.ErrEmptySelection), errors.Is(err, errNoFile), errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyCommitted), errors.Is(err, core.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its JSON error response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondErrorFor(w, r, err, "")
}

// respondErrorFor is respondError for a request that already staged an
// import; the id is returned so the client can retry the preview.
func respondErrorFor(w http.ResponseWriter, r *http.Request, err error, importID string) {
	status := statusFor(err)
	userMsg := core.MapError(err)
	if status == http.StatusRequestEntityTooLarge {
		userMsg = core.MapError(errors.New("file too large"))
	}

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     userMsg.Message,
		Message:   userMsg.Message,
		Action:    userMsg.Action,
		Code:      userMsg.Code,
		RequestID: middleware.GetReqID(r.Context()),
		ImportID:  importID,
	})
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
