package database

import (
	"context"
	"path/filepath"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"

	"github.com/G-Research/loganalyzer/internal/common/util"
)

// WithTestDb creates a fresh sqlite database inside dir, applies migrations and runs action against it.
// The database is closed once action returns.
func WithTestDb(dir string, migrations []Migration, action func(db *goqu.Database) error) error {
	ctx := context.Background()
	sqlDb, err := OpenSqlite(SqliteConfig{Path: filepath.Join(dir, "test_"+util.NewULID()+".db")})
	if err != nil {
		return err
	}
	defer CloseDatabase(sqlDb)

	db := Dialect(SqliteType).DB(sqlDb)
	if err := UpdateDatabase(ctx, db, migrations); err != nil {
		return errors.WithStack(err)
	}
	return action(db)
}
