package store

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/tasktrack/apiserver/config"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pqUniqueViolation = pq.ErrorCode("23505")

// Dialect adapts the shared SQL to the connected driver. Queries are written
// with Postgres-style $N placeholders.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// DialectFor maps a configured driver name to its dialect.
func DialectFor(driver string) Dialect {
	if driver == config.DriverSQLite {
		return SQLite
	}
	return Postgres
}

// rebind rewrites $N placeholders into SQLite's ?N form.
func (d Dialect) rebind(query string) string {
	if d != SQLite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}
