package gradebook

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/gradebook-api/internal/metrics"
	"github.com/aanand-mishra/gradebook-api/internal/storage/sqlite"
	"github.com/aanand-mishra/gradebook-api/internal/types"
)

func newTestGradebook(t *testing.T) (*Gradebook, *sqlite.SQLite, *metrics.Metrics) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "gradebook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.NewMetrics()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(store, log, m), store, m
}

func seedStudent(t *testing.T, g *Gradebook) types.Student {
	t.Helper()

	students, err := g.CreateStudent(context.Background(), types.Student{
		Firstname:    "Eric",
		Lastname:     "Roby",
		EmailAddress: "eric.roby@luv2code_school.com",
	})
	require.NoError(t, err)
	require.NotEmpty(t, students)

	return students[len(students)-1]
}

func TestAverage(t *testing.T) {
	tests := []struct {
		name   string
		grades []float64
		want   float64
	}{
		{name: "empty", grades: nil, want: 0},
		{name: "single", grades: []float64{100}, want: 100},
		{name: "exact", grades: []float64{100, 90}, want: 95},
		{name: "rounds down", grades: []float64{100, 100, 0}, want: 66.67},
		{name: "rounds half up", grades: []float64{80.125, 80.125}, want: 80.13},
		{name: "thirds", grades: []float64{0, 0, 100}, want: 33.33},
		{name: "decimal half up", grades: []float64{1.005}, want: 1.01},
		{name: "decimal half up below one", grades: []float64{0.285}, want: 0.29},
		{name: "mean of decimals", grades: []float64{90.005, 90.005}, want: 90.01},
		{name: "below half", grades: []float64{1.004}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grades := make([]types.Grade, len(tt.grades))
			for i, v := range tt.grades {
				grades[i] = types.Grade{Grade: v}
			}
			assert.Equal(t, tt.want, Average(grades))
		})
	}
}

func TestCreateStudentAndList(t *testing.T) {
	g, _, m := newTestGradebook(t)
	ctx := context.Background()

	student := seedStudent(t, g)
	assert.Equal(t, "Eric", student.Firstname)

	found, err := g.StudentByEmail(ctx, "eric.roby@luv2code_school.com")
	require.NoError(t, err)
	assert.Equal(t, student, found)

	_, err = g.CreateStudent(ctx, types.Student{Firstname: "E", Lastname: "R", EmailAddress: student.EmailAddress})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = g.StudentByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StudentsCreatedTotal))
}

func TestDeleteStudent(t *testing.T) {
	g, store, m := newTestGradebook(t)
	ctx := context.Background()

	student := seedStudent(t, g)
	_, err := store.CreateGrade(ctx, types.GradeMath, student.ID, 75)
	require.NoError(t, err)

	students, err := g.DeleteStudent(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, students)

	_, err = g.DeleteStudent(ctx, student.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = g.StudentDetail(ctx, student.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StudentsDeletedTotal))
}

func TestCreateGrade(t *testing.T) {
	g, _, m := newTestGradebook(t)
	ctx := context.Background()
	student := seedStudent(t, g)

	detail, err := g.CreateGrade(ctx, types.GradeRequest{StudentID: student.ID, GradeType: "math", Grade: 80})
	require.NoError(t, err)
	detail, err = g.CreateGrade(ctx, types.GradeRequest{StudentID: student.ID, GradeType: "math", Grade: 85})
	require.NoError(t, err)
	detail, err = g.CreateGrade(ctx, types.GradeRequest{StudentID: student.ID, GradeType: "science", Grade: 0})
	require.NoError(t, err)

	assert.Equal(t, student, detail.Student)
	assert.Len(t, detail.StudentGrades.MathGradeResults, 2)
	assert.Equal(t, 82.5, detail.StudentGrades.MathGradeAverage)
	assert.Len(t, detail.StudentGrades.ScienceGradeResults, 1)
	assert.Zero(t, detail.StudentGrades.ScienceGradeAverage)
	assert.Empty(t, detail.StudentGrades.HistoryGradeResults)
	assert.Zero(t, detail.StudentGrades.HistoryGradeAverage)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GradesCreatedTotal.WithLabelValues("math")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GradesCreatedTotal.WithLabelValues("science")))
}

func TestCreateGradeRejections(t *testing.T) {
	g, store, m := newTestGradebook(t)
	ctx := context.Background()
	student := seedStudent(t, g)

	tests := []struct {
		name   string
		req    types.GradeRequest
		reason string
	}{
		{name: "above range", req: types.GradeRequest{StudentID: student.ID, GradeType: "math", Grade: 100.01}, reason: "value"},
		{name: "below range", req: types.GradeRequest{StudentID: student.ID, GradeType: "math", Grade: -1}, reason: "value"},
		{name: "unknown type", req: types.GradeRequest{StudentID: student.ID, GradeType: "art", Grade: 50}, reason: "grade_type"},
		{name: "unknown student", req: types.GradeRequest{StudentID: student.ID + 1, GradeType: "math", Grade: 50}, reason: "student"},
		{name: "zero student id", req: types.GradeRequest{StudentID: 0, GradeType: "math", Grade: 50}, reason: "student"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(m.GradesRejectedTotal.WithLabelValues(tt.reason))

			_, err := g.CreateGrade(ctx, tt.req)
			assert.ErrorIs(t, err, ErrNotFound)

			after := testutil.ToFloat64(m.GradesRejectedTotal.WithLabelValues(tt.reason))
			assert.Equal(t, before+1, after)
		})
	}

	grades, err := store.GetGradesByStudentID(ctx, types.GradeMath, student.ID)
	require.NoError(t, err)
	assert.Empty(t, grades)
}

func TestDeleteGrade(t *testing.T) {
	g, store, m := newTestGradebook(t)
	ctx := context.Background()
	student := seedStudent(t, g)

	id, err := store.CreateGrade(ctx, types.GradeHistory, student.ID, 64)
	require.NoError(t, err)

	_, err = g.DeleteGrade(ctx, "math", id)
	assert.ErrorIs(t, err, ErrNotFound, "grade ids are per subject")

	_, err = g.DeleteGrade(ctx, "art", id)
	assert.ErrorIs(t, err, ErrNotFound)

	detail, err := g.DeleteGrade(ctx, "history", id)
	require.NoError(t, err)
	assert.Equal(t, student.ID, detail.ID)
	assert.Empty(t, detail.StudentGrades.HistoryGradeResults)

	_, err = g.DeleteGrade(ctx, "history", id)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GradesDeletedTotal.WithLabelValues("history")))
}

func TestNewWithoutLoggerOrMetrics(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "gradebook.db"))
	require.NoError(t, err)
	defer store.Close()

	g := New(store, nil, nil)

	_, err = g.CreateGrade(context.Background(), types.GradeRequest{StudentID: 1, GradeType: "math", Grade: 50})
	assert.ErrorIs(t, err, ErrNotFound)
}
