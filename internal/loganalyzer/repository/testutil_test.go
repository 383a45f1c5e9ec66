package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/doug-martin/goqu/v9"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/G-Research/loganalyzer/internal/common/database"
)

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func withRedis(t *testing.T, action func(client redis.UniversalClient, server *miniredis.Miniredis)) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{server.Addr()}})
	defer client.Close()

	action(client, server)
}

func withSqlDb(t *testing.T, action func(db *goqu.Database)) {
	t.Helper()
	migrations, err := Migrations()
	require.NoError(t, err)
	err = database.WithTestDb(t.TempDir(), migrations, func(db *goqu.Database) error {
		action(db)
		return nil
	})
	require.NoError(t, err)
}

func withMemoryDb(t *testing.T, action func(db *MemoryDb)) {
	t.Helper()
	db, err := NewMemoryDb()
	require.NoError(t, err)
	action(db)
}

// sequentialIds returns an id generator producing job-1, job-2, ...
func sequentialIds() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("job-%d", n)
	}
}

func newFakeClock() *clock.FakePassiveClock {
	return clock.NewFakePassiveClock(baseTime)
}
