// Package dbtest provides migrated throwaway databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tasktrack/apiserver/config"
	"github.com/tasktrack/apiserver/internal/db"
)

// NewSQLite returns a migrated SQLite database stored in the test's temp
// directory. It is closed when the test finishes.
func NewSQLite(t testing.TB) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tasktrack.db")
	conn, err := db.OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.MigrateUp(conn, config.DriverSQLite))
	return conn
}
