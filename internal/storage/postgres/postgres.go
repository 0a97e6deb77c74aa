// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Storage interface on top of lib/pq.
//
// Queries mirror the sqlite package; the differences are the $n
// placeholders, RETURNING id instead of LastInsertId, and pq's typed
// errors for constraint violations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/aanand-mishra/gradebook-api/internal/storage"
	"github.com/aanand-mishra/gradebook-api/internal/storage/migrations"
	"github.com/aanand-mishra/gradebook-api/internal/types"
)

// Postgres is the concrete implementation of storage.Storage.
type Postgres struct {
	Db *sql.DB
}

// New migrates the database behind dsn, opens a pool and pings it.
func New(ctx context.Context, dsn string) (*Postgres, error) {
	if err := migrations.Run("postgres", dsn, migrations.Up); err != nil {
		return nil, fmt.Errorf("postgres.New: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: open db: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Postgres{Db: db}, nil
}

func (p *Postgres) CreateStudent(ctx context.Context, firstname, lastname, email string) (int64, error) {
	var id int64
	err := p.Db.QueryRowContext(ctx,
		`INSERT INTO student (firstname, lastname, email_address)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		firstname, lastname, email,
	).Scan(&id)
	if err != nil {
		if hasCode(err, "unique_violation") {
			return 0, storage.ErrDuplicateEmail
		}
		return 0, fmt.Errorf("CreateStudent: %w", err)
	}
	return id, nil
}

func (p *Postgres) GetStudentByID(ctx context.Context, id int64) (types.Student, error) {
	var st types.Student
	err := p.Db.QueryRowContext(ctx,
		`SELECT id, firstname, lastname, email_address FROM student WHERE id = $1`, id,
	).Scan(&st.ID, &st.Firstname, &st.Lastname, &st.EmailAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Student{}, fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return types.Student{}, fmt.Errorf("GetStudentByID: %w", err)
	}
	return st, nil
}

func (p *Postgres) GetStudentByEmail(ctx context.Context, email string) (types.Student, error) {
	var st types.Student
	err := p.Db.QueryRowContext(ctx,
		`SELECT id, firstname, lastname, email_address FROM student WHERE email_address = $1`, email,
	).Scan(&st.ID, &st.Firstname, &st.Lastname, &st.EmailAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Student{}, fmt.Errorf("no student found with email %q: %w", email, storage.ErrNotFound)
	}
	if err != nil {
		return types.Student{}, fmt.Errorf("GetStudentByEmail: %w", err)
	}
	return st, nil
}

func (p *Postgres) GetStudents(ctx context.Context) ([]types.Student, error) {
	rows, err := p.Db.QueryContext(ctx,
		`SELECT id, firstname, lastname, email_address FROM student ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("GetStudents: %w", err)
	}
	defer rows.Close()

	students := make([]types.Student, 0)
	for rows.Next() {
		var st types.Student
		if err := rows.Scan(&st.ID, &st.Firstname, &st.Lastname, &st.EmailAddress); err != nil {
			return nil, fmt.Errorf("GetStudents: scan: %w", err)
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (p *Postgres) StudentExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := p.Db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM student WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("StudentExists: %w", err)
	}
	return exists, nil
}

func (p *Postgres) DeleteStudentByID(ctx context.Context, id int64) error {
	tx, err := p.Db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: begin: %w", err)
	}
	defer tx.Rollback()

	for _, gradeType := range types.GradeTypes {
		query := fmt.Sprintf(`DELETE FROM %s WHERE student_id = $1`, gradeType.Table())
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("DeleteStudentByID: delete %s grades: %w", gradeType, err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM student WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("DeleteStudentByID: rows affected: %w", err)
	} else if affected == 0 {
		return fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
	}

	return tx.Commit()
}

func (p *Postgres) CreateGrade(ctx context.Context, gradeType types.GradeType, studentID int64, grade float64) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO %s (student_id, grade) VALUES ($1, $2) RETURNING id`, gradeType.Table())

	var id int64
	if err := p.Db.QueryRowContext(ctx, query, studentID, grade).Scan(&id); err != nil {
		if hasCode(err, "foreign_key_violation") {
			return 0, fmt.Errorf("no student found with id %d: %w", studentID, storage.ErrNotFound)
		}
		return 0, fmt.Errorf("CreateGrade: %w", err)
	}
	return id, nil
}

func (p *Postgres) GetGradeByID(ctx context.Context, gradeType types.GradeType, id int64) (types.Grade, error) {
	query := fmt.Sprintf(`SELECT id, student_id, grade FROM %s WHERE id = $1`, gradeType.Table())

	var g types.Grade
	err := p.Db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.StudentID, &g.Grade)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Grade{}, fmt.Errorf("no %s grade found with id %d: %w", gradeType, id, storage.ErrNotFound)
	}
	if err != nil {
		return types.Grade{}, fmt.Errorf("GetGradeByID: %w", err)
	}
	return g, nil
}

func (p *Postgres) GetGradesByStudentID(ctx context.Context, gradeType types.GradeType, studentID int64) ([]types.Grade, error) {
	query := fmt.Sprintf(`SELECT id, student_id, grade FROM %s WHERE student_id = $1 ORDER BY id`, gradeType.Table())

	rows, err := p.Db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("GetGradesByStudentID: %w", err)
	}
	defer rows.Close()

	grades := make([]types.Grade, 0)
	for rows.Next() {
		var g types.Grade
		if err := rows.Scan(&g.ID, &g.StudentID, &g.Grade); err != nil {
			return nil, fmt.Errorf("GetGradesByStudentID: scan: %w", err)
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}

func (p *Postgres) DeleteGradeByID(ctx context.Context, gradeType types.GradeType, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, gradeType.Table())

	result, err := p.Db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("DeleteGradeByID: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("DeleteGradeByID: rows affected: %w", err)
	} else if affected == 0 {
		return fmt.Errorf("no %s grade found with id %d: %w", gradeType, id, storage.ErrNotFound)
	}
	return nil
}

// Exec runs a literal SQL script. lib/pq accepts several statements in
// one call as long as no arguments are bound.
func (p *Postgres) Exec(ctx context.Context, script string) error {
	if _, err := p.Db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("Exec: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.Db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.Db.Close()
}

func hasCode(err error, name string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == name
}
