package errors

import (
	"encoding/json"
	"net/http"
)

type jsonError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteJSONError writes a minimal {error, message} envelope. Handlers with
// richer envelopes build them inline and use WriteJSON directly.
func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, jsonError{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}
