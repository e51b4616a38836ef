package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"fueltrack/internal/log"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// migrateSchema brings the fill-up schema up to date and returns the version
// it ends on. The migrate driver closes its connection, so it gets its own.
func migrateSchema(dbPath string, logger *log.Logger) (uint, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open schema connection: %w", err)
	}
	defer conn.Close()

	driver, err := sqlite.WithInstance(conn, &sqlite.Config{MigrationsTable: "fillup_schema"})
	if err != nil {
		return 0, fmt.Errorf("sqlite migrate driver: %w", err)
	}
	src, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("embedded schema source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("migrate instance: %w", err)
	}
	defer m.Close()

	switch err := m.Up(); {
	case err == nil:
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("Fill-up schema already current")
	default:
		return 0, fmt.Errorf("apply schema: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	logger.Info("Fill-up schema ready", "version", version)
	return version, nil
}
