// Package gradebook composes the student and grade stores into the
// operations the HTTP layer exposes: listings, the student detail view
// with per-subject averages, and validated grade creation.
package gradebook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/gradebook-api/internal/metrics"
	"github.com/aanand-mishra/gradebook-api/internal/storage"
	"github.com/aanand-mishra/gradebook-api/internal/types"
)

var (
	// ErrNotFound covers a missing student, a missing grade, an
	// out-of-range grade value and an unknown grade type alike. Callers
	// cannot tell these apart, and the HTTP contract depends on that.
	ErrNotFound = errors.New("student or grade was not found")

	// ErrDuplicateEmail is returned by CreateStudent when the email
	// address already belongs to another student.
	ErrDuplicateEmail = errors.New("student with this email address already exists")
)

// Service is the gradebook contract consumed by the HTTP handlers and the
// CLI.
type Service interface {
	ListStudents(ctx context.Context) ([]types.Student, error)
	CreateStudent(ctx context.Context, student types.Student) ([]types.Student, error)
	DeleteStudent(ctx context.Context, id int64) ([]types.Student, error)
	StudentDetail(ctx context.Context, id int64) (types.GradebookStudent, error)
	StudentByEmail(ctx context.Context, email string) (types.Student, error)
	CreateGrade(ctx context.Context, req types.GradeRequest) (types.GradebookStudent, error)
	DeleteGrade(ctx context.Context, gradeType string, id int64) (types.GradebookStudent, error)
}

// Gradebook implements Service on top of a storage backend.
type Gradebook struct {
	store    storage.Storage
	log      *slog.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
}

// New returns a Gradebook. m may be nil.
func New(store storage.Storage, log *slog.Logger, m *metrics.Metrics) *Gradebook {
	if log == nil {
		log = slog.Default()
	}
	return &Gradebook{
		store:    store,
		log:      log,
		metrics:  m,
		validate: validator.New(),
	}
}

func (g *Gradebook) ListStudents(ctx context.Context) ([]types.Student, error) {
	students, err := g.store.GetStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// CreateStudent stores the student and returns the updated listing.
// The student's ID field is ignored.
func (g *Gradebook) CreateStudent(ctx context.Context, student types.Student) ([]types.Student, error) {
	id, err := g.store.CreateStudent(ctx, student.Firstname, student.Lastname, student.EmailAddress)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create student: %w", err)
	}

	g.metrics.RecordStudentCreated()
	g.log.Info("student created",
		slog.Int64("id", id),
		slog.String("email", student.EmailAddress))

	return g.ListStudents(ctx)
}

// DeleteStudent removes the student with all of its grades and returns
// the updated listing.
func (g *Gradebook) DeleteStudent(ctx context.Context, id int64) ([]types.Student, error) {
	if err := g.store.DeleteStudentByID(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete student: %w", err)
	}

	g.metrics.RecordStudentDeleted()
	g.log.Info("student deleted", slog.Int64("id", id))

	return g.ListStudents(ctx)
}

func (g *Gradebook) StudentByEmail(ctx context.Context, email string) (types.Student, error) {
	student, err := g.store.GetStudentByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.Student{}, ErrNotFound
		}
		return types.Student{}, fmt.Errorf("student by email: %w", err)
	}
	return student, nil
}

// StudentDetail returns the student with every subject's grades and
// averages.
func (g *Gradebook) StudentDetail(ctx context.Context, id int64) (types.GradebookStudent, error) {
	student, err := g.store.GetStudentByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.GradebookStudent{}, ErrNotFound
		}
		return types.GradebookStudent{}, fmt.Errorf("student detail: %w", err)
	}

	var grades types.StudentGrades
	for _, gradeType := range types.GradeTypes {
		results, err := g.store.GetGradesByStudentID(ctx, gradeType, id)
		if err != nil {
			return types.GradebookStudent{}, fmt.Errorf("student detail: %s grades: %w", gradeType, err)
		}

		switch gradeType {
		case types.GradeMath:
			grades.MathGradeResults = results
			grades.MathGradeAverage = Average(results)
		case types.GradeScience:
			grades.ScienceGradeResults = results
			grades.ScienceGradeAverage = Average(results)
		case types.GradeHistory:
			grades.HistoryGradeResults = results
			grades.HistoryGradeAverage = Average(results)
		}
	}

	return types.GradebookStudent{Student: student, StudentGrades: grades}, nil
}

// CreateGrade records a grade and returns the student's detail view.
//
// An unknown student, a value outside [0, 100] and an unknown grade type
// all fail with ErrNotFound. The reason is only logged and counted.
func (g *Gradebook) CreateGrade(ctx context.Context, req types.GradeRequest) (types.GradebookStudent, error) {
	if err := g.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return types.GradebookStudent{}, fmt.Errorf("create grade: validate: %w", err)
		}
		reason := rejectReason(verrs)
		g.reject(reason, req)
		return types.GradebookStudent{}, ErrNotFound
	}

	gradeType, _ := types.ParseGradeType(req.GradeType)

	exists, err := g.store.StudentExists(ctx, req.StudentID)
	if err != nil {
		return types.GradebookStudent{}, fmt.Errorf("create grade: %w", err)
	}
	if !exists {
		g.reject("student", req)
		return types.GradebookStudent{}, ErrNotFound
	}

	id, err := g.store.CreateGrade(ctx, gradeType, req.StudentID, req.Grade)
	if err != nil {
		// The student may have been deleted between the check and the insert.
		if errors.Is(err, storage.ErrNotFound) {
			g.reject("student", req)
			return types.GradebookStudent{}, ErrNotFound
		}
		return types.GradebookStudent{}, fmt.Errorf("create grade: %w", err)
	}

	g.metrics.RecordGradeCreated(string(gradeType))
	g.log.Info("grade created",
		slog.Int64("id", id),
		slog.Int64("student_id", req.StudentID),
		slog.String("grade_type", string(gradeType)),
		slog.Float64("grade", req.Grade))

	return g.StudentDetail(ctx, req.StudentID)
}

// DeleteGrade removes one grade and returns its owner's detail view.
func (g *Gradebook) DeleteGrade(ctx context.Context, gradeTypeName string, id int64) (types.GradebookStudent, error) {
	gradeType, ok := types.ParseGradeType(gradeTypeName)
	if !ok {
		g.metrics.RecordGradeRejected("grade_type")
		return types.GradebookStudent{}, ErrNotFound
	}

	grade, err := g.store.GetGradeByID(ctx, gradeType, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			g.metrics.RecordGradeRejected("grade")
			return types.GradebookStudent{}, ErrNotFound
		}
		return types.GradebookStudent{}, fmt.Errorf("delete grade: %w", err)
	}

	if err := g.store.DeleteGradeByID(ctx, gradeType, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.GradebookStudent{}, ErrNotFound
		}
		return types.GradebookStudent{}, fmt.Errorf("delete grade: %w", err)
	}

	g.metrics.RecordGradeDeleted(string(gradeType))
	g.log.Info("grade deleted",
		slog.Int64("id", id),
		slog.Int64("student_id", grade.StudentID),
		slog.String("grade_type", string(gradeType)))

	return g.StudentDetail(ctx, grade.StudentID)
}

func (g *Gradebook) reject(reason string, req types.GradeRequest) {
	g.metrics.RecordGradeRejected(reason)
	g.log.Debug("grade rejected",
		slog.String("reason", reason),
		slog.Int64("student_id", req.StudentID),
		slog.String("grade_type", req.GradeType),
		slog.Float64("grade", req.Grade))
}

// rejectReason names the first failing field the way the metrics label it.
func rejectReason(errs validator.ValidationErrors) string {
	for _, e := range errs {
		switch e.Field() {
		case "GradeType":
			return "grade_type"
		case "Grade":
			return "value"
		case "StudentID":
			return "student"
		}
	}
	return "invalid"
}

// Average is the mean grade rounded half-up to two decimals. An empty
// collection averages to zero.
//
// Rounding works on the shortest decimal form of the mean, so 1.005
// rounds to 1.01 even though its binary value is slightly below it.
func Average(grades []types.Grade) float64 {
	if len(grades) == 0 {
		return 0
	}

	var sum float64
	for _, g := range grades {
		sum += g.Grade
	}
	mean := sum / float64(len(grades))

	r, ok := new(big.Rat).SetString(strconv.FormatFloat(mean, 'f', -1, 64))
	if !ok {
		return mean
	}
	// FloatString rounds halves away from zero.
	rounded, err := strconv.ParseFloat(r.FloatString(2), 64)
	if err != nil {
		return mean
	}
	return rounded
}
