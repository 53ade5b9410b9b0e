package web

// errors.go maps dataset errors onto HTTP responses. The taxonomy is small:
// sentinel errors from the dataset package select the status code, everything
// else is an internal failure. The technical error is logged server-side with
// the request id; clients receive a short message.

import (
	"errors"
	"net/http"

	"github.com/ychsieh/realprice/internal/dataset"
	"github.com/ychsieh/realprice/internal/logging"
)

// errorResponse is the JSON error body. OK is included so the upload client,
// which checks it, sees an explicit false on failure.
type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// respondError writes the JSON error for err with the mapped status code.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(err)

	logging.FromContext(r.Context()).Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err.Error(),
	)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	writeJSONBody(w, errorResponse{OK: false, Error: msg})
}

// mapError selects the HTTP status and client message for an error.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, dataset.ErrBadInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, dataset.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, dataset.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "archive too large"
	case errors.Is(err, dataset.ErrExtraction):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
