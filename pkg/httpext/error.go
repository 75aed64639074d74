package httpext

import (
	"encoding/json"
	"net/http"

	"github.com/deepgram/coursechat/pkg/logger"
)

// ErrorResponse is the OAuth style JSON error body
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}

// JsonError writes a JSON error response with the specified status code
func JsonError(w http.ResponseWriter, message string, code int) {
	JsonErrorWithDetails(w, code, ErrorResponse{Error: message})
}

// JsonErrorWithDetails writes a detailed JSON error response with optional description and URI
func JsonErrorWithDetails(w http.ResponseWriter, code int, body ErrorResponse) {
	if err := writeJSON(w, code, body); err != nil {
		log := logger.With(logger.ASSISTANT)
		log.Error().Err(err).Int("status", code).Msg("Failed to encode error response")
	}
}

// Json writes v as a JSON body with the given status code
func Json(w http.ResponseWriter, code int, v any) {
	if err := writeJSON(w, code, v); err != nil {
		log := logger.With(logger.ASSISTANT)
		log.Error().Err(err).Int("status", code).Msg("Failed to encode response")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"Internal Server Error"}`, http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err = w.Write(append(data, '\n'))
	return err
}
