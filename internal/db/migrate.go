package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/tasktrack/apiserver/config"
)

//go:embed migrations
var migrations embed.FS

// MigrateUp applies all pending migrations for the given driver.
// The migrate instance is left open since closing it closes conn.
func MigrateUp(conn *sql.DB, driver string) error {
	m, err := newMigrator(conn, driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back every applied migration.
func MigrateDown(conn *sql.DB, driver string) error {
	m, err := newMigrator(conn, driver)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down failed: %w", err)
	}
	return nil
}

func newMigrator(conn *sql.DB, driver string) (*migrate.Migrate, error) {
	var (
		target database.Driver
		err    error
	)
	switch driver {
	case config.DriverSQLite:
		target, err = sqlite.WithInstance(conn, &sqlite.Config{})
	case config.DriverPostgres, "":
		driver = config.DriverPostgres
		target, err = postgres.WithInstance(conn, &postgres.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init migration driver failed: %w", err)
	}

	source, err := iofs.New(migrations, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("load migrations failed: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, target)
	if err != nil {
		return nil, fmt.Errorf("init migrator failed: %w", err)
	}
	return m, nil
}
