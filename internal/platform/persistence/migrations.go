package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const fileSourcePrefix = "file://"

var (
	ErrEmptyMigrationsPath = errors.New("migrations path cannot be empty")
	ErrEmptyDatabaseURL    = errors.New("database URL cannot be empty")
	ErrDirtySchema         = errors.New("schema is dirty, a previous migration failed halfway")
)

// migrator is the part of *migrate.Migrate used to bring the ledger schema
// up to date.
type migrator interface {
	Up() error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

// RunMigrations applies every pending ledger migration under migrationsPath.
// The path may be given bare (migrations/postgres) or as a file:// URL.
func RunMigrations(logger *slog.Logger, databaseURL, migrationsPath string) error {
	if migrationsPath == "" {
		return ErrEmptyMigrationsPath
	}
	if databaseURL == "" {
		return ErrEmptyDatabaseURL
	}

	m, err := migrate.New(migrationSourceURL(migrationsPath), databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return applyMigrations(logger, m)
}

func applyMigrations(logger *slog.Logger, m migrator) error {
	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		_, _ = m.Close()
		var dirty migrate.ErrDirty
		if errors.As(upErr, &dirty) {
			return fmt.Errorf("%w: version %d", ErrDirtySchema, dirty.Version)
		}
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, _, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Warn("No ledger migrations found")
	case err != nil:
		logger.Warn("Could not read schema version", "error", err)
	default:
		logger.Info("Ledger schema is up to date", "version", version, "changed", upErr == nil)
	}

	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		return fmt.Errorf("migration source error: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("migration database error: %w", dbErr)
	}
	return nil
}

func migrationSourceURL(path string) string {
	if strings.HasPrefix(path, fileSourcePrefix) {
		return path
	}
	return fileSourcePrefix + path
}
