package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/doug-martin/goqu/v9"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/loganalyzer/internal/common/database"
)

func TestMigrations_Embedded(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	assert.NotEmpty(t, migrations)
}

func TestMigrateDatabase_Idempotent(t *testing.T) {
	withSqlDb(t, func(db *goqu.Database) {
		assert.NoError(t, MigrateDatabase(context.Background(), db))
	})
}

func TestRedisHealthChecker(t *testing.T) {
	withRedis(t, func(client redis.UniversalClient, server *miniredis.Miniredis) {
		checker := NewRedisHealthChecker(client)
		assert.NoError(t, checker.Check())
		server.Close()
		assert.Error(t, checker.Check())
	})
}

func TestSqlHealthChecker(t *testing.T) {
	db, err := database.OpenSqlite(database.SqliteConfig{Path: filepath.Join(t.TempDir(), "health.db")})
	require.NoError(t, err)
	checker := NewSqlHealthChecker(db)
	assert.NoError(t, checker.Check())
	require.NoError(t, db.Close())
	assert.Error(t, checker.Check())
}
