// responses.go -- Package-wide HTTP response helpers.
//
// Shared by handlers and middleware. Every body is JSON; error bodies are
// always {"message": "..."} and never include internal error details.
package auth

import (
	"encoding/json"
	"net/http"
)

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type messageBody struct {
	Message string `json:"message"`
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageBody{Message: message})
}

// InternalServerError logs the error and returns a generic 500 JSON response.
// Never exposes internal error details to prevent information leakage.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "internal server error", "error", err)
	writeMessage(w, http.StatusInternalServerError, ErrUnexpected.Error())
}

// BadRequest returns a 400 JSON response with the given message.
// Use for client input validation failures.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusBadRequest, message)
}

// Unauthorized returns a 401 JSON response with a generic message.
// Use for authentication failures. Keep message generic to prevent user enumeration.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusUnauthorized, message)
}

// Forbidden returns a 403 JSON response.
// Intentionally vague, avoids leaking which validation stage failed.
func Forbidden(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusForbidden, message)
}

// Conflict returns a 409 JSON response.
func Conflict(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusConflict, message)
}

// TooManyRequests returns a 429 JSON response.
func TooManyRequests(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusTooManyRequests, message)
}

// OK returns a 200 JSON response with the given message.
func OK(w http.ResponseWriter, message string) {
	writeMessage(w, http.StatusOK, message)
}
