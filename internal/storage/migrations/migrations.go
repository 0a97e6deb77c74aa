// Package migrations applies the versioned gradebook schema with
// golang-migrate. The SQL files are embedded per backend, so the binary
// carries its own schema and needs no migrations directory at runtime.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Direction is "up" or "down".
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// SQLDriverName maps a storage driver from config to the database/sql
// driver name registered by its package.
func SQLDriverName(driver string) (string, error) {
	switch driver {
	case "sqlite":
		return "sqlite3", nil
	case "postgres":
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported storage driver %q", driver)
}

// Run opens its own connection to dsn, migrates the schema in the given
// direction and closes the connection. Running Up on an up-to-date
// database is a no-op.
func Run(driver, dsn string, dir Direction) error {
	sqlDriver, err := SQLDriverName(driver)
	if err != nil {
		return err
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return fmt.Errorf("migrations: open db: %w", err)
	}

	m, err := newMigrate(driver, db)
	if err != nil {
		db.Close()
		return err
	}
	// Closing the migrate instance also closes db.
	defer func() { _, _ = m.Close() }()

	switch dir {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return fmt.Errorf("migrations: invalid direction %q: use up or down", dir)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: %s: %w", dir, err)
	}

	return nil
}

func newMigrate(driver string, db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, driver)
	if err != nil {
		return nil, fmt.Errorf("migrations: load %s sources: %w", driver, err)
	}

	var dbDriver database.Driver
	switch driver {
	case "sqlite":
		dbDriver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case "postgres":
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		err = fmt.Errorf("unsupported storage driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("migrations: create %s driver: %w", driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("migrations: create migrator: %w", err)
	}

	return m, nil
}
