package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	query := `UPDATE tasks SET title = $1, updated_at = $2 WHERE id = $10 AND note = '$'`

	require.Equal(t, query, Postgres.rebind(query))
	require.Equal(t,
		`UPDATE tasks SET title = ?1, updated_at = ?2 WHERE id = ?10 AND note = '$'`,
		SQLite.rebind(query),
	)
}

func TestDialectFor(t *testing.T) {
	require.Equal(t, SQLite, DialectFor("sqlite"))
	require.Equal(t, Postgres, DialectFor("postgres"))
	require.Equal(t, Postgres, DialectFor(""))
}
