// Package storagetest runs the same behavioural checks against every
// storage.Storage backend.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/gradebook-api/internal/storage"
	"github.com/aanand-mishra/gradebook-api/internal/types"
)

// Run exercises store. newStore must return an empty, migrated database
// each time it is called; cleanup is up to the caller.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	t.Run("CreateAndGetStudent", func(t *testing.T) {
		testCreateAndGetStudent(t, newStore(t))
	})
	t.Run("DuplicateEmail", func(t *testing.T) {
		testDuplicateEmail(t, newStore(t))
	})
	t.Run("GetStudentsOrdered", func(t *testing.T) {
		testGetStudentsOrdered(t, newStore(t))
	})
	t.Run("DeleteStudentRemovesGrades", func(t *testing.T) {
		testDeleteStudentRemovesGrades(t, newStore(t))
	})
	t.Run("DeleteMissingStudent", func(t *testing.T) {
		testDeleteMissingStudent(t, newStore(t))
	})
	t.Run("Grades", func(t *testing.T) {
		testGrades(t, newStore(t))
	})
	t.Run("GradeForMissingStudent", func(t *testing.T) {
		testGradeForMissingStudent(t, newStore(t))
	})
	t.Run("ExecAndPing", func(t *testing.T) {
		testExecAndPing(t, newStore(t))
	})
}

func testCreateAndGetStudent(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	id, err := s.CreateStudent(ctx, "Eric", "Roby", "eric.roby@luv2code_school.com")
	require.NoError(t, err)
	assert.Positive(t, id)

	byID, err := s.GetStudentByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.Student{
		ID:           id,
		Firstname:    "Eric",
		Lastname:     "Roby",
		EmailAddress: "eric.roby@luv2code_school.com",
	}, byID)

	byEmail, err := s.GetStudentByEmail(ctx, "eric.roby@luv2code_school.com")
	require.NoError(t, err)
	assert.Equal(t, byID, byEmail)

	exists, err := s.StudentExists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.StudentExists(ctx, id+1)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.GetStudentByID(ctx, id+1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetStudentByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDuplicateEmail(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.CreateStudent(ctx, "Chad", "Darby", "chad@luv2code.com")
	require.NoError(t, err)

	_, err = s.CreateStudent(ctx, "Other", "Person", "chad@luv2code.com")
	assert.ErrorIs(t, err, storage.ErrDuplicateEmail)

	students, err := s.GetStudents(ctx)
	require.NoError(t, err)
	assert.Len(t, students, 1)
}

func testGetStudentsOrdered(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	students, err := s.GetStudents(ctx)
	require.NoError(t, err)
	assert.NotNil(t, students)
	assert.Empty(t, students)

	first, err := s.CreateStudent(ctx, "Ada", "Lovelace", "ada@example.com")
	require.NoError(t, err)
	second, err := s.CreateStudent(ctx, "Alan", "Turing", "alan@example.com")
	require.NoError(t, err)

	students, err = s.GetStudents(ctx)
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, first, students[0].ID)
	assert.Equal(t, second, students[1].ID)
}

func testDeleteStudentRemovesGrades(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	id, err := s.CreateStudent(ctx, "Eric", "Roby", "eric@example.com")
	require.NoError(t, err)
	other, err := s.CreateStudent(ctx, "Chad", "Darby", "chad@example.com")
	require.NoError(t, err)

	for _, gradeType := range types.GradeTypes {
		_, err := s.CreateGrade(ctx, gradeType, id, 90)
		require.NoError(t, err)
		_, err = s.CreateGrade(ctx, gradeType, other, 80)
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteStudentByID(ctx, id))

	exists, err := s.StudentExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)

	for _, gradeType := range types.GradeTypes {
		grades, err := s.GetGradesByStudentID(ctx, gradeType, id)
		require.NoError(t, err)
		assert.Empty(t, grades, gradeType)

		grades, err = s.GetGradesByStudentID(ctx, gradeType, other)
		require.NoError(t, err)
		assert.Len(t, grades, 1, "other student's %s grades must survive", gradeType)
	}
}

func testDeleteMissingStudent(t *testing.T, s storage.Storage) {
	err := s.DeleteStudentByID(context.Background(), 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testGrades(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	studentID, err := s.CreateStudent(ctx, "Eric", "Roby", "eric@example.com")
	require.NoError(t, err)

	first, err := s.CreateGrade(ctx, types.GradeMath, studentID, 100)
	require.NoError(t, err)
	second, err := s.CreateGrade(ctx, types.GradeMath, studentID, 72.5)
	require.NoError(t, err)

	grades, err := s.GetGradesByStudentID(ctx, types.GradeMath, studentID)
	require.NoError(t, err)
	assert.Equal(t, []types.Grade{
		{ID: first, StudentID: studentID, Grade: 100},
		{ID: second, StudentID: studentID, Grade: 72.5},
	}, grades)

	// Subjects are stored separately.
	science, err := s.GetGradesByStudentID(ctx, types.GradeScience, studentID)
	require.NoError(t, err)
	assert.NotNil(t, science)
	assert.Empty(t, science)

	grade, err := s.GetGradeByID(ctx, types.GradeMath, second)
	require.NoError(t, err)
	assert.Equal(t, 72.5, grade.Grade)

	_, err = s.GetGradeByID(ctx, types.GradeHistory, second)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.DeleteGradeByID(ctx, types.GradeMath, first))
	assert.ErrorIs(t, s.DeleteGradeByID(ctx, types.GradeMath, first), storage.ErrNotFound)

	grades, err = s.GetGradesByStudentID(ctx, types.GradeMath, studentID)
	require.NoError(t, err)
	assert.Len(t, grades, 1)
}

func testGradeForMissingStudent(t *testing.T, s storage.Storage) {
	_, err := s.CreateGrade(context.Background(), types.GradeScience, 99, 50)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testExecAndPing(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Exec(ctx,
		"INSERT INTO student (firstname, lastname, email_address) VALUES ('Eric', 'Roby', 'eric@example.com')"))

	_, err := s.GetStudentByEmail(ctx, "eric@example.com")
	require.NoError(t, err)

	assert.Error(t, s.Exec(ctx, "INSERT INTO no_such_table VALUES (1)"))
}
