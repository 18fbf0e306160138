package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/attesto/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteStorageError maps storage sentinel errors onto HTTP statuses.
func WriteStorageError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrInvalidTransition):
		return WriteError(w, http.StatusConflict, "operation not allowed in the job's current state")
	case errors.Is(err, models.ErrAttemptsExhausted):
		return WriteError(w, http.StatusConflict, "max attempts reached")
	case errors.Is(err, models.ErrNotTerminal):
		return WriteError(w, http.StatusConflict, "job is still pending or processing")
	default:
		return WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// DecodeJSON decodes a request body, rejecting unknown fields.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// UserID resolves the acting user from the request. There is no
// authentication layer; callers identify themselves per request.
func UserID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("user_id"); id != "" {
		return id
	}
	return "default"
}

// PathID extracts the identifier segment following a route prefix, ignoring
// any trailing action segment ("/api/jobs/{id}/cancel" -> "{id}").
func PathID(r *http.Request, prefix string) string {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	rest = strings.Trim(rest, "/")
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// QueryInt parses an integer query parameter with a default.
func QueryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
