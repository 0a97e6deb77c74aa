// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// SQLite stores everything in a single file on disk, which makes it the
// default backend for local development and for the end-to-end tests:
// every test gets its own database file under t.TempDir().
//
// The mattn/go-sqlite3 import registers the "sqlite3" driver with
// database/sql and gives us its typed errors for constraint checks.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/aanand-mishra/gradebook-api/internal/storage"
	"github.com/aanand-mishra/gradebook-api/internal/storage/migrations"
	"github.com/aanand-mishra/gradebook-api/internal/types"
)

// SQLite is the concrete implementation of storage.Storage.
// It holds a *sql.DB which is a connection pool managed by database/sql.
// A single *sql.DB is safe for concurrent use by multiple goroutines.
type SQLite struct {
	Db *sql.DB
}

// DSN turns a database file path into a go-sqlite3 data source name
// with foreign keys enforced and a busy timeout, so grade rows cascade
// with their student and concurrent writers wait instead of failing.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// New opens the SQLite database at path, applies the schema migrations
// and returns a ready-to-use *SQLite.
func New(path string) (*SQLite, error) {
	dsn := DSN(path)

	// Up is a no-op on an up-to-date schema.
	if err := migrations.Run("sqlite", dsn, migrations.Up); err != nil {
		return nil, fmt.Errorf("sqlite.New: %w", err)
	}

	// sql.Open does NOT open a real connection yet; it only validates
	// the driver name and data source name.
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	return &SQLite{Db: db}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Students
// ─────────────────────────────────────────────────────────────────────────────

// CreateStudent inserts a new row into the student table.
// Placeholders (?) keep user input out of the SQL text.
func (s *SQLite) CreateStudent(ctx context.Context, firstname, lastname, email string) (int64, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"INSERT INTO student (firstname, lastname, email_address) VALUES (?, ?, ?)",
	)
	if err != nil {
		return 0, fmt.Errorf("CreateStudent: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, firstname, lastname, email)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, storage.ErrDuplicateEmail
		}
		return 0, fmt.Errorf("CreateStudent: exec: %w", err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("CreateStudent: last insert id: %w", err)
	}

	return lastID, nil
}

// GetStudentByID fetches exactly one student row matched by primary key.
func (s *SQLite) GetStudentByID(ctx context.Context, id int64) (types.Student, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"SELECT id, firstname, lastname, email_address FROM student WHERE id = ? LIMIT 1",
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("GetStudentByID: prepare: %w", err)
	}
	defer stmt.Close()

	student, err := scanStudent(stmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Student{}, fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
		}
		return types.Student{}, fmt.Errorf("GetStudentByID: scan: %w", err)
	}

	return student, nil
}

// GetStudentByEmail fetches the student registered with email.
func (s *SQLite) GetStudentByEmail(ctx context.Context, email string) (types.Student, error) {
	row := s.Db.QueryRowContext(ctx,
		"SELECT id, firstname, lastname, email_address FROM student WHERE email_address = ? LIMIT 1",
		email,
	)

	student, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Student{}, fmt.Errorf("no student found with email %q: %w", email, storage.ErrNotFound)
		}
		return types.Student{}, fmt.Errorf("GetStudentByEmail: scan: %w", err)
	}

	return student, nil
}

// GetStudents returns all student rows ordered by id.
func (s *SQLite) GetStudents(ctx context.Context) ([]types.Student, error) {
	rows, err := s.Db.QueryContext(ctx,
		"SELECT id, firstname, lastname, email_address FROM student ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("GetStudents: query: %w", err)
	}
	defer rows.Close()

	// Encodes as [] rather than null.
	students := make([]types.Student, 0)

	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetStudents: scan row: %w", err)
		}
		students = append(students, student)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetStudents: rows iteration: %w", err)
	}

	return students, nil
}

// StudentExists reports whether a student row with this id exists.
func (s *SQLite) StudentExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.Db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM student WHERE id = ?)", id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("StudentExists: %w", err)
	}
	return exists, nil
}

// DeleteStudentByID removes a student and its grades.
//
// The grade tables cascade on delete, but the explicit deletes keep the
// behaviour correct on connections opened without foreign keys enabled.
func (s *SQLite) DeleteStudentByID(ctx context.Context, id int64) error {
	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: begin: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback()

	for _, gradeType := range types.GradeTypes {
		query := fmt.Sprintf("DELETE FROM %s WHERE student_id = ?", gradeType.Table())
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("DeleteStudentByID: delete %s grades: %w", gradeType, err)
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM student WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: exec: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("DeleteStudentByID: commit: %w", err)
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Grades
//
// Table names come from types.GradeType.Table(); the grade type has been
// validated before it reaches storage, so interpolating it is safe.
// ─────────────────────────────────────────────────────────────────────────────

// CreateGrade inserts a grade into the subject's table.
func (s *SQLite) CreateGrade(ctx context.Context, gradeType types.GradeType, studentID int64, grade float64) (int64, error) {
	query := fmt.Sprintf("INSERT INTO %s (student_id, grade) VALUES (?, ?)", gradeType.Table())

	result, err := s.Db.ExecContext(ctx, query, studentID, grade)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("no student found with id %d: %w", studentID, storage.ErrNotFound)
		}
		return 0, fmt.Errorf("CreateGrade: exec: %w", err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("CreateGrade: last insert id: %w", err)
	}

	return lastID, nil
}

// GetGradeByID fetches one grade of the given subject.
func (s *SQLite) GetGradeByID(ctx context.Context, gradeType types.GradeType, id int64) (types.Grade, error) {
	query := fmt.Sprintf("SELECT id, student_id, grade FROM %s WHERE id = ? LIMIT 1", gradeType.Table())

	var grade types.Grade
	err := s.Db.QueryRowContext(ctx, query, id).Scan(&grade.ID, &grade.StudentID, &grade.Grade)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Grade{}, fmt.Errorf("no %s grade found with id %d: %w", gradeType, id, storage.ErrNotFound)
		}
		return types.Grade{}, fmt.Errorf("GetGradeByID: scan: %w", err)
	}

	return grade, nil
}

// GetGradesByStudentID returns the student's grades of one subject.
func (s *SQLite) GetGradesByStudentID(ctx context.Context, gradeType types.GradeType, studentID int64) ([]types.Grade, error) {
	query := fmt.Sprintf("SELECT id, student_id, grade FROM %s WHERE student_id = ? ORDER BY id", gradeType.Table())

	rows, err := s.Db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("GetGradesByStudentID: query: %w", err)
	}
	defer rows.Close()

	grades := make([]types.Grade, 0)
	for rows.Next() {
		var grade types.Grade
		if err := rows.Scan(&grade.ID, &grade.StudentID, &grade.Grade); err != nil {
			return nil, fmt.Errorf("GetGradesByStudentID: scan row: %w", err)
		}
		grades = append(grades, grade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetGradesByStudentID: rows iteration: %w", err)
	}

	return grades, nil
}

// DeleteGradeByID removes one grade of the given subject.
func (s *SQLite) DeleteGradeByID(ctx context.Context, gradeType types.GradeType, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", gradeType.Table())

	result, err := s.Db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("DeleteGradeByID: exec: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteGradeByID: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no %s grade found with id %d: %w", gradeType, id, storage.ErrNotFound)
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Housekeeping
// ─────────────────────────────────────────────────────────────────────────────

// Exec runs a literal SQL script such as a fixture insert or delete.
func (s *SQLite) Exec(ctx context.Context, script string) error {
	if _, err := s.Db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("Exec: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.Db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanStudent reads the columns id, firstname, lastname, email_address
// IN ORDER, so every SELECT above lists them in that order.
func scanStudent(row rowScanner) (types.Student, error) {
	var student types.Student
	err := row.Scan(
		&student.ID,
		&student.Firstname,
		&student.Lastname,
		&student.EmailAddress,
	)
	return student, err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
