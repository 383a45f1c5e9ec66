package database

import (
	"context"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const versionTable = "database_version"

type Migration struct {
	id   int
	name string
	sql  string
}

func NewMigration(id int, name string, sql string) Migration {
	return Migration{id: id, name: name, sql: sql}
}

// UpdateDatabase applies every migration newer than the recorded version, in id order.
func UpdateDatabase(ctx context.Context, db *goqu.Database, migrations []Migration) error {
	log.Info("Updating database...")
	version, err := readVersion(ctx, db)
	if err != nil {
		return err
	}
	log.Infof("Current version %v", version)

	for _, m := range migrations {
		if m.id <= version {
			continue
		}
		for _, statement := range statements(m.sql) {
			if _, err := db.ExecContext(ctx, statement); err != nil {
				return errors.Wrapf(err, "applying migration %s", m.name)
			}
		}
		version = m.id
		if err := setVersion(ctx, db, version); err != nil {
			return err
		}
		log.Infof("Applied migration %s", m.name)
	}
	log.Info("Database updated.")
	return nil
}

func statements(sql string) []string {
	var result []string
	for _, s := range strings.Split(sql, ";") {
		if s = strings.TrimSpace(s); s != "" {
			result = append(result, s)
		}
	}
	return result
}

func readVersion(ctx context.Context, db *goqu.Database) (int, error) {
	_, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS `+versionTable+` (version INTEGER NOT NULL)`)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	var version int
	found, err := db.From(versionTable).Prepared(true).Select("version").ScanValContext(ctx, &version)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if !found {
		_, err = db.Insert(versionTable).Prepared(true).Rows(goqu.Record{"version": 0}).Executor().ExecContext(ctx)
		return 0, errors.WithStack(err)
	}
	return version, nil
}

func setVersion(ctx context.Context, db *goqu.Database, version int) error {
	_, err := db.Update(versionTable).Prepared(true).Set(goqu.Record{"version": version}).Executor().ExecContext(ctx)
	return errors.WithStack(err)
}

// GetMigrations reads every .sql file of dir in fsys. File names must start with a numeric id, e.g. 001_init.sql.
func GetMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	migrations := []Migration{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		contents, err := fs.ReadFile(fsys, path.Join(dir, f.Name()))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		id, err := strconv.Atoi(strings.Split(f.Name(), "_")[0])
		if err != nil {
			return nil, errors.Wrapf(err, "migration %s has no numeric prefix", f.Name())
		}
		migrations = append(migrations, Migration{
			id:   id,
			name: f.Name(),
			sql:  string(contents),
		})
	}
	return migrations, nil
}
