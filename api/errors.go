package api

import (
	"encoding/json"
	"net/http"

	"github.com/warp/overtime-engine/apperr"
)

// statusFor translates an apperr.Kind to its HTTP status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.PreconditionFailed:
		return http.StatusPreconditionFailed
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict, apperr.Inconsistent:
		return http.StatusConflict
	case apperr.Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error, fallbackMessage string) {
	writeJSON(w, statusFor(err), ErrorResponse{Error: fallbackMessage, Details: err.Error()})
}
