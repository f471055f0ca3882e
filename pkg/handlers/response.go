package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ekaya-inc/ekaya-rest/pkg/response"
)

// ErrorResponse writes the JSON error envelope and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set(response.HeaderContentType, response.ContentTypeJSON)
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(response.ErrorBody{
		Code:    errorCode,
		Message: message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set(response.HeaderContentType, response.ContentTypeJSON)
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteFormatted writes a formatted REST response. The body is skipped for
// 204 responses and when writeBody is false (HEAD).
func WriteFormatted(w http.ResponseWriter, resp *response.FormattedResponse, writeBody bool) error {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.Status)

	if !writeBody || resp.Data == nil || resp.Status == http.StatusNoContent {
		return nil
	}
	return json.NewEncoder(w).Encode(resp.Data)
}
