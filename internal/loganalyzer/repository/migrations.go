package repository

import (
	"context"
	"embed"

	"github.com/doug-martin/goqu/v9"

	"github.com/G-Research/loganalyzer/internal/common/database"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

func Migrations() ([]database.Migration, error) {
	return database.GetMigrations(migrationFiles, "sql")
}

// MigrateDatabase brings the job and log tables up to date.
func MigrateDatabase(ctx context.Context, db *goqu.Database) error {
	migrations, err := Migrations()
	if err != nil {
		return err
	}
	return database.UpdateDatabase(ctx, db, migrations)
}
