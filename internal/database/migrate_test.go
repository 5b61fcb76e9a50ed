package database_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/rosterflow/internal/database"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	abs, err := filepath.Abs("migrations")
	require.NoError(t, err)
	return abs
}

func TestRunMigrationsCreatesSchema(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "roster.db")

	require.NoError(t, database.RunMigrations(dbPath, migrationsDir(t)))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, table := range []string{"rosters", "players", "import_sessions", "import_audits"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "roster.db")
	dir := migrationsDir(t)

	require.NoError(t, database.RunMigrations(dbPath, dir))
	require.NoError(t, database.RunMigrations(dbPath, dir))
}

func TestRunMigrationsWithExistingConn(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "roster.db")

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.RunMigrationsWithDB(db, migrationsDir(t)))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM players`).Scan(&n))
	require.Zero(t, n)
}
