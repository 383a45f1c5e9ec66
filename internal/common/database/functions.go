package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// CreateConnectionString renders libpq key/value pairs in a stable order.
func CreateConnectionString(values map[string]string) string {
	// https://www.postgresql.org/docs/10/libpq-connect.html#id-1.7.3.8.3.5
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"='"+replacer.Replace(values[k])+"'")
	}
	return strings.Join(parts, " ")
}

// OpenSqlite opens (creating if needed) the sqlite database at config.Path.
func OpenSqlite(config SqliteConfig) (*sql.DB, error) {
	dbDir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not make directory at %s for sqlite db", dbDir)
	}
	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening sqlite db from %s", config.Path)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	return db, nil
}

// OpenPostgres opens a pgx backed database/sql pool and pings it.
func OpenPostgres(ctx context.Context, config PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", CreateConnectionString(config.Connection))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	return db, nil
}

// Open opens the database of the given type.
func Open(ctx context.Context, dbType string, sqlite SqliteConfig, postgres PostgresConfig) (*sql.DB, error) {
	switch dbType {
	case SqliteType:
		return OpenSqlite(sqlite)
	case PostgresType:
		return OpenPostgres(ctx, postgres)
	default:
		return nil, errors.Errorf("unsupported database type %q", dbType)
	}
}

// CloseDatabase closes db, logging rather than returning any failure.
func CloseDatabase(db *sql.DB) {
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("error closing database")
	}
}
