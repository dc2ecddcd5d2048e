package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/tasktrack/apiserver/config"
	_ "modernc.org/sqlite"
)

const (
	defaultPingTimeout  = 5 * time.Second
	defaultConnMaxIdle  = 2 * time.Minute
	defaultConnMaxLife  = 30 * time.Minute
	defaultMaxIdleConns = 5
	defaultMaxOpenConns = 25
	sqliteBusyTimeoutMS = 5000
)

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.Database.SQLitePath)
	case config.DriverPostgres, "":
		return openPostgres(ctx, PostgresURL(cfg))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// PostgresURL returns DATABASE_URL when set, otherwise a URL assembled from
// the individual connection settings.
func PostgresURL(cfg config.Config) string {
	if raw := strings.TrimSpace(cfg.Database.URL); raw != "" {
		return raw
	}

	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port),
		User:   url.UserPassword(cfg.Database.User, cfg.Database.Password),
		Path:   cfg.Database.DBName,
	}

	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()

	return u.String()
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(config.DriverPostgres, dsn)
	if err != nil {
		return nil, err
	}

	db.SetConnMaxIdleTime(defaultConnMaxIdle)
	db.SetConnMaxLifetime(defaultConnMaxLife)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetMaxOpenConns(defaultMaxOpenConns)

	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens a SQLite database file. The pool is limited to a single
// connection so writers serialise in-process instead of failing with
// SQLITE_BUSY.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_time_format=sqlite", path, sqliteBusyTimeoutMS)
	db, err := sql.Open(config.DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)

	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	return db.PingContext(ctx)
}
