// Package handlers holds what the per-resource handler packages share:
// the request validator and the mapping from service errors to HTTP
// responses.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/gradebook-api/internal/service/gradebook"
	"github.com/aanand-mishra/gradebook-api/internal/utils/response"
)

// Validate checks request bodies. Field errors are reported by their JSON
// name ("emailAddress"), which is what the client sent.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("emailaddr", emailAddress); err != nil {
		panic(err)
	}
	return v
}

// emailAddress accepts a bare RFC 5322 address. Unlike the validator's
// built-in "email" tag it does not require the domain to be a valid DNS
// hostname, so addresses such as eric.roby@luv2code_school.com pass.
func emailAddress(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	addr, err := mail.ParseAddress(value)
	return err == nil && addr.Name == "" && addr.Address == value
}

// PathID parses the named path segment as a positive integer id.
func PathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// WriteServiceError maps an error returned by the gradebook service to a
// response. Unexpected errors are logged and reported without detail.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gradebook.ErrNotFound):
		response.WriteNotFound(w)
	case errors.Is(err, gradebook.ErrDuplicateEmail):
		response.WriteError(w, http.StatusConflict, "Student with this email address already exists")
	default:
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		response.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
