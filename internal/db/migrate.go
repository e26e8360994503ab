package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/novaangola/apiserver/config"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrateUp applies all pending migrations for the configured driver.
func MigrateUp(cfg config.Config) error {
	migrator, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migrate up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(cfg config.Config, steps int) error {
	if steps < 1 {
		return errors.New("steps must be positive")
	}

	migrator, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migrate down failed: %w", err)
	}
	return nil
}

func newMigrator(cfg config.Config) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations/"+cfg.Database.Driver)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	databaseURL, err := migrationURL(cfg)
	if err != nil {
		return nil, err
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("init migrator failed: %w", err)
	}
	return migrator, nil
}

func migrationURL(cfg config.Config) (string, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		if err := ensureDir(cfg.Database.Path); err != nil {
			return "", err
		}
		return "sqlite3://" + cfg.Database.Path + "?_foreign_keys=on", nil
	case config.DriverPostgres:
		return postgresURL(cfg), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
