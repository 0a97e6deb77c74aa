// Package storage defines the Storage interface, the contract that any
// database backend must satisfy to work with the gradebook.
//
// The service and HTTP layers depend only on this interface, so the
// SQLite and PostgreSQL backends are interchangeable and tests can run
// against a throwaway SQLite file.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/gradebook-api/internal/types"
)

var (
	// ErrNotFound is returned when a student or grade row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned when a student with the same email
	// address is already stored.
	ErrDuplicateEmail = errors.New("email address already in use")
)

// StudentStore persists student identity records.
type StudentStore interface {
	// CreateStudent inserts a new student and returns its generated id.
	// Returns ErrDuplicateEmail if the email address is taken.
	CreateStudent(ctx context.Context, firstname, lastname, email string) (int64, error)

	// GetStudentByID returns ErrNotFound if no student has this id.
	GetStudentByID(ctx context.Context, id int64) (types.Student, error)

	// GetStudentByEmail returns ErrNotFound if no student has this email.
	GetStudentByEmail(ctx context.Context, email string) (types.Student, error)

	// GetStudents returns every student ordered by id.
	// Returns an empty slice (not nil) if there are none.
	GetStudents(ctx context.Context) ([]types.Student, error)

	StudentExists(ctx context.Context, id int64) (bool, error)

	// DeleteStudentByID removes the student and all of its grades in one
	// transaction. Returns ErrNotFound if nothing was deleted.
	DeleteStudentByID(ctx context.Context, id int64) error
}

// GradeStore persists grades. There is one table per subject; the
// GradeType argument selects it.
type GradeStore interface {
	// CreateGrade inserts a grade and returns its generated id.
	CreateGrade(ctx context.Context, gradeType types.GradeType, studentID int64, grade float64) (int64, error)

	// GetGradeByID returns ErrNotFound if the subject has no such grade.
	GetGradeByID(ctx context.Context, gradeType types.GradeType, id int64) (types.Grade, error)

	// GetGradesByStudentID returns the student's grades in insertion order.
	GetGradesByStudentID(ctx context.Context, gradeType types.GradeType, studentID int64) ([]types.Grade, error)

	// DeleteGradeByID returns ErrNotFound if nothing was deleted.
	DeleteGradeByID(ctx context.Context, gradeType types.GradeType, id int64) error
}

// Storage is the full database contract used by the application.
type Storage interface {
	StudentStore
	GradeStore

	// Exec runs a literal SQL script. It backs test fixtures and the
	// fixture CLI command.
	Exec(ctx context.Context, script string) error

	Ping(ctx context.Context) error
	Close() error
}
