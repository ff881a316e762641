package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/db"
)

//go:embed sql
var migrationFiles embed.FS

// Up runs all pending SQL migrations for the dialect matching the driver the
// database was opened with.
func Up(ctx context.Context, database *sqlx.DB, driver string) error {
	dialect, dir, err := dialectFor(driver)
	if err != nil {
		return err
	}

	fsys, err := fs.Sub(migrationFiles, dir)
	if err != nil {
		return fmt.Errorf("open embedded migrations %s: %w", dir, err)
	}

	provider, err := goose.NewProvider(dialect, database.DB, fsys)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run goose up migrations: %w", err)
	}

	return nil
}

func dialectFor(driver string) (goose.Dialect, string, error) {
	switch driver {
	case db.DriverSQLite:
		return goose.DialectSQLite3, "sql/sqlite", nil
	case db.DriverPostgres:
		return goose.DialectPostgres, "sql/postgres", nil
	default:
		return "", "", fmt.Errorf("no migrations for database driver %q", driver)
	}
}
