package database

import (
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
)

const (
	SqliteType   = "sqlite"
	PostgresType = "postgres"
)

type SqliteConfig struct {
	// Path of the database file. Parent directories are created if missing.
	Path string
}

type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int64
	Connection      map[string]string
}

// Dialect returns the goqu dialect for a database type.
func Dialect(dbType string) goqu.DialectWrapper {
	if dbType == PostgresType {
		return goqu.Dialect("postgres")
	}
	return goqu.Dialect("sqlite3")
}
