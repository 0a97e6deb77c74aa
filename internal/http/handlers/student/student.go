// Package student contains the HTTP handlers for the Student resource.
//
// Handlers are factories: each takes the gradebook service once at route
// registration and returns the http.HandlerFunc that serves every
// request, closing over the service.
//
//	router.HandleFunc("GET /{$}", student.GetList(svc))
package student

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/gradebook-api/internal/http/handlers"
	"github.com/aanand-mishra/gradebook-api/internal/service/gradebook"
	"github.com/aanand-mishra/gradebook-api/internal/types"
	"github.com/aanand-mishra/gradebook-api/internal/utils/response"
)

// GetList handles GET /
// Returns a JSON array of all students, [] when there are none.
func GetList(svc gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("getting all students")

		students, err := svc.ListStudents(r.Context())
		if err != nil {
			handlers.WriteServiceError(w, r, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, students)
	}
}

// New handles POST /
// Creates a student from the JSON body and returns the full listing.
//
// Request body (JSON):
//
//	{ "firstname": "Chad", "lastname": "Darby", "emailAddress": "chad@luv2code.com" }
//
// Error responses:
//
//	400 Bad Request  empty body, malformed JSON, or failed validation
//	409 Conflict     email address already registered
//	500 Internal     database error
func New(svc gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating a student")

		var student types.Student
		err := json.NewDecoder(r.Body).Decode(&student)
		if errors.Is(err, io.EOF) {
			response.WriteError(w, http.StatusBadRequest, "request body is empty")
			return
		}
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := handlers.Validate.Struct(student); err != nil {
			var validateErrs validator.ValidationErrors
			if errors.As(err, &validateErrs) {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(validateErrs))
				return
			}
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		students, err := svc.CreateStudent(r.Context(), student)
		if err != nil {
			handlers.WriteServiceError(w, r, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, students)
	}
}

// Delete handles DELETE /student/{id}
// Removes the student and its grades and returns the remaining students.
// Unknown or malformed ids get the shared 404 body.
func Delete(svc gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("deleting a student", slog.String("id", r.PathValue("id")))

		id, ok := handlers.PathID(r, "id")
		if !ok {
			response.WriteNotFound(w)
			return
		}

		students, err := svc.DeleteStudent(r.Context(), id)
		if err != nil {
			handlers.WriteServiceError(w, r, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, students)
	}
}

// Information handles GET /studentInformation/{id}
// Returns the student with grades and averages per subject:
//
//	{
//	  "id": 1, "firstname": "Eric", "lastname": "Roby", "emailAddress": "...",
//	  "studentGrades": { "mathGradeResults": [...], "mathGradeAverage": 100, ... }
//	}
func Information(svc gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("getting student information", slog.String("id", r.PathValue("id")))

		id, ok := handlers.PathID(r, "id")
		if !ok {
			response.WriteNotFound(w)
			return
		}

		detail, err := svc.StudentDetail(r.Context(), id)
		if err != nil {
			handlers.WriteServiceError(w, r, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, detail)
	}
}
