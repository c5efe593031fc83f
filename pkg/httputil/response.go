package httputil

import (
	"encoding/json"
	"net/http"
)

// Error kinds shared with the authorization core
const (
	KindNotFound     = "not_found"
	KindConflict     = "conflict"
	KindForbidden    = "forbidden"
	KindUnauthorized = "unauthorized"
	KindValidation   = "validation"
	KindInternal     = "internal"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StatusForKind maps an error kind to an HTTP status code
func StatusForKind(kind string) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteKindError writes an error body for kind with the matching status code.
// Unknown kinds are reported as internal errors.
func WriteKindError(w http.ResponseWriter, kind, message string) {
	status := StatusForKind(kind)
	if status == http.StatusInternalServerError {
		kind = KindInternal
	}
	_ = WriteJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

// WriteBadRequest writes a validation error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteKindError(w, KindValidation, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteKindError(w, KindUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteKindError(w, KindForbidden, message)
}

// WriteNotFoundError writes a not found error (404)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteKindError(w, KindNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteKindError(w, KindConflict, message)
}

// WriteInternalError writes an internal server error (500). The cause is not
// echoed to the client.
func WriteInternalError(w http.ResponseWriter) {
	WriteKindError(w, KindInternal, "internal server error")
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
