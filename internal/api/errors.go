package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/app-directory-tracker/internal/errors"
	"github.com/app-directory-tracker/internal/logging"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError sends an error response with an explicit status and code.
func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// respondServiceError maps a service error onto its categorized HTTP response.
// Server-side failures are logged with their cause; the cause is never sent to the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	logger := logging.FromContext(r.Context()).WithFields(map[string]interface{}{
		"code":     catErr.Code,
		"category": string(catErr.Category),
	})
	switch {
	case apperrors.IsSystemError(catErr):
		logger.WithError(err).Error("Request failed")
	case apperrors.IsUserError(catErr):
		logger.Debug("Request rejected")
	}
	respondError(w, apperrors.GetHTTPStatusCode(catErr), catErr.Code, catErr.Message)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logging.WithError(err).Warn("Failed to encode response")
		}
	}
}

// maxBodyBytes bounds request bodies; the only body the API accepts is a bot id.
const maxBodyBytes = 64 << 10

// parseJSONBody parses a JSON request body.
func parseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return decoder.Decode(v)
}
