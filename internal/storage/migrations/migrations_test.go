package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableNames(t *testing.T, dsn string) []string {
	t.Helper()

	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(`SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != 'schema_migrations'
		ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())

	return names
}

func TestRunUpAndDown(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "gradebook.db")

	require.NoError(t, Run("sqlite", dsn, Up))
	assert.Equal(t, []string{"history_grade", "math_grade", "science_grade", "student"}, tableNames(t, dsn))

	// Already up to date.
	require.NoError(t, Run("sqlite", dsn, Up))

	require.NoError(t, Run("sqlite", dsn, Down))
	assert.Empty(t, tableNames(t, dsn))
}

func TestRunRejectsBadInput(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "gradebook.db")

	assert.Error(t, Run("mysql", dsn, Up))
	assert.Error(t, Run("sqlite", dsn, Direction("sideways")))
}

func TestSQLDriverName(t *testing.T) {
	name, err := SQLDriverName("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", name)

	name, err = SQLDriverName("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", name)

	_, err = SQLDriverName("oracle")
	assert.Error(t, err)
}
