// Package migrations applies the embedded PostgreSQL schema with
// golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// Up runs all pending migrations against the pool's database.
func Up(pool *pgxpool.Pool) error {
	return withMigrate(pool, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration failed: %w", err)
		}
		return nil
	})
}

// Status returns the applied version and the latest embedded version.
func Status(pool *pgxpool.Pool) (current, latest uint, dirty bool, err error) {
	err = withMigrate(pool, func(m *migrate.Migrate) error {
		var verr error
		current, dirty, verr = m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			return fmt.Errorf("failed to get database version: %w", verr)
		}
		return nil
	})
	if err != nil {
		return 0, 0, false, err
	}

	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to read migration files: %w", err)
	}
	defer sourceDriver.Close()

	latest, err = latestVersion(sourceDriver)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to determine latest version: %w", err)
	}
	return current, latest, dirty, nil
}

// withMigrate runs fn with a migrate instance bound to one connection of
// pool. The connection is held until the instance is closed; closing it also
// closes the database/sql wrapper.
func withMigrate(pool *pgxpool.Pool, fn func(*migrate.Migrate) error) (err error) {
	m, err := newMigrate(stdlib.OpenDBFromPool(pool))
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()
	return fn(m)
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	dbDriver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		sourceDriver.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "pgx5", dbDriver)
	if err != nil {
		sourceDriver.Close()
		dbDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func latestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(version)
		if err != nil {
			break
		}
		version = next
	}
	return version, nil
}
