// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every handler in this application sends JSON back to the client,
// including errors, which share the ErrorResponse envelope.
package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NotFoundMessage is the one message every not-found outcome carries,
// whatever the underlying cause.
const NotFoundMessage = "Student or Grade was not found"

// ErrorResponse is the envelope returned for error cases:
//
//	{ "status": 404, "message": "Student or Grade was not found" }
//
// Status repeats the HTTP status code.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// Error builds an ErrorResponse for status with the given message.
func Error(status int, message string) ErrorResponse {
	return ErrorResponse{Status: status, Message: message}
}

// WriteError writes Error(status, message) with that status.
func WriteError(w http.ResponseWriter, status int, message string) error {
	return WriteJSON(w, status, Error(status, message))
}

// WriteNotFound writes the shared 404 body.
func WriteNotFound(w http.ResponseWriter) error {
	return WriteError(w, http.StatusNotFound, NotFoundMessage)
}

// ValidationError converts a slice of validator.FieldError values into
// a single human-readable 400 response.
//
// Example output:
//
//	{ "status": 400, "message": "field emailAddress is required, field lastname is required" }
func ValidationError(errs validator.ValidationErrors) ErrorResponse {
	var errMessages []string

	for _, e := range errs {
		switch e.ActualTag() {
		case "required":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s is required", e.Field()))
		case "email", "emailaddr":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be a valid email address", e.Field()))
		case "max":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be at most %s characters", e.Field(), e.Param()))
		default:
			errMessages = append(errMessages,
				fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}

	return Error(http.StatusBadRequest, strings.Join(errMessages, ", "))
}
