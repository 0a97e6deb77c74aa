// Package grade contains the HTTP handlers for grades.
//
// Every failure of a grade request answers 404 with the shared
// "Student or Grade was not found" body, including malformed form
// values. Clients written against this API rely on that single outcome.
package grade

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aanand-mishra/gradebook-api/internal/http/handlers"
	"github.com/aanand-mishra/gradebook-api/internal/service/gradebook"
	"github.com/aanand-mishra/gradebook-api/internal/types"
	"github.com/aanand-mishra/gradebook-api/internal/utils/response"
)

// maxFormMemory bounds how much of a multipart form is kept in memory.
const maxFormMemory = 1 << 20

// New handles POST /grades
// Form fields (urlencoded or multipart): grade, gradeType, studentId.
// Success returns the student detail view with the new grade included.
func New(svc gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating a grade")

		req, ok := parseGradeForm(r)
		if !ok {
			response.WriteNotFound(w)
			return
		}

		detail, err := svc.CreateGrade(r.Context(), req)
		if err != nil {
			handlers.WriteServiceError(w, r, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, detail)
	}
}

// Delete handles DELETE /grades/{id}/{gradeType}
// Removes one grade and returns the owning student's detail view.
func Delete(svc gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gradeType := r.PathValue("gradeType")
		slog.Info("deleting a grade",
			slog.String("id", r.PathValue("id")),
			slog.String("grade_type", gradeType))

		id, ok := handlers.PathID(r, "id")
		if !ok {
			response.WriteNotFound(w)
			return
		}

		detail, err := svc.DeleteGrade(r.Context(), gradeType, id)
		if err != nil {
			handlers.WriteServiceError(w, r, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, detail)
	}
}

func parseGradeForm(r *http.Request) (types.GradeRequest, bool) {
	// ParseMultipartForm parses urlencoded bodies too and then reports
	// ErrNotMultipart, which is fine here.
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		slog.Debug("cannot parse grade form", slog.String("error", err.Error()))
		return types.GradeRequest{}, false
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("grade")), 64)
	if err != nil {
		return types.GradeRequest{}, false
	}

	studentID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("studentId")), 10, 64)
	if err != nil {
		return types.GradeRequest{}, false
	}

	return types.GradeRequest{
		StudentID: studentID,
		GradeType: strings.TrimSpace(r.FormValue("gradeType")),
		Grade:     value,
	}, true
}
