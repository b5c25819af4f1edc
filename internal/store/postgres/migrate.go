package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type MigrationStatus struct {
	Version int64
	Path    string
	Applied bool
}

func newMigrationProvider(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectPostgres, db, fsys)
}

// Migrate applies every pending migration and returns the versions applied.
func Migrate(ctx context.Context, conn string) ([]int64, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	provider, err := newMigrationProvider(db)
	if err != nil {
		return nil, fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	applied := make([]int64, 0, len(results))
	for _, result := range results {
		applied = append(applied, result.Source.Version)
	}
	return applied, nil
}

func Status(ctx context.Context, conn string) ([]MigrationStatus, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	provider, err := newMigrationProvider(db)
	if err != nil {
		return nil, fmt.Errorf("migration provider: %w", err)
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	results := make([]MigrationStatus, 0, len(statuses))
	for _, status := range statuses {
		results = append(results, MigrationStatus{
			Version: status.Source.Version,
			Path:    status.Source.Path,
			Applied: status.State == goose.StateApplied,
		})
	}
	return results, nil
}
