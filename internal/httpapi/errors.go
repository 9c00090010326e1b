package httpapi

import (
	"encoding/json"
	"net/http"

	"packd/internal/downloads"
	"packd/internal/library"
	"packd/internal/packages"
	"packd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps well-known domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case library.IsNotSet(err):
		// no library root selected yet; the request is valid but premature
		return http.StatusConflict
	case library.IsPackageNotFound(err):
		return http.StatusNotFound
	case packages.IsUnknownPackage(err), downloads.IsDownloadNotFound(err):
		return http.StatusNotFound
	case packages.IsUnknownAccelerator(err), packages.IsUnsupportedAccelerator(err):
		return http.StatusBadRequest
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeDomainError maps err and writes the payload.
func writeDomainError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusForError(err), err.Error())
}
