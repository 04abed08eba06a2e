// Package response writes idrecon's JSON response bodies.
//
// Successful responses are the payload itself. Failures are always
// {"error": {"code", "message", "details"}}.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/idrecon/internal/contact"
)

// Codes used for failures that do not come from the domain.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
)

// ErrorBody is the envelope of every failed response.
type ErrorBody struct {
	Error *Error `json:"error"`
}

// Error represents an API error with code, message, and optional details.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Message is the body of responses that only carry a human readable line.
type Message struct {
	Message string `json:"message"`
}

// Fail creates an error body.
func Fail(code, message, details string) ErrorBody {
	return ErrorBody{Error: &Error{Code: code, Message: message, Details: details}}
}

// JSON writes v as JSON with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors are ignored as headers are already sent
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes v with 200 status.
func OK(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, v)
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusBadRequest, Fail(CodeBadRequest, message, details))
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusNotFound, Fail(string(contact.ErrCodeNotFound), message, details))
}

// InternalError writes a 500 error response without exposing err.
func InternalError(w http.ResponseWriter, _ error) {
	JSON(w, http.StatusInternalServerError, Fail(
		CodeInternalError,
		"Internal server error",
		"An unexpected error occurred",
	))
}

// ServiceUnavailable writes a 503 error response.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	JSON(w, http.StatusServiceUnavailable, Fail(CodeServiceUnavailable, "Service unavailable", message))
}

// StatusFor maps an error to the HTTP status ErrorFromType would write.
func StatusFor(err error) int {
	switch contact.CodeOf(err) {
	case contact.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case contact.ErrCodeNotFound:
		return http.StatusNotFound
	case contact.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFromType maps coded domain errors to HTTP responses.
func ErrorFromType(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		InternalError(w, err)
		return
	}

	code := contact.CodeOf(err)
	message := err.Error()
	details := ""
	var ce *contact.Error
	if errors.As(err, &ce) {
		message = ce.Message
		if status == http.StatusServiceUnavailable {
			details = "the contact store is temporarily unavailable; retry the request"
		}
	}
	JSON(w, status, Fail(string(code), message, details))
}
