package repository

import (
	"context"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/loganalyzer/internal/common/apperrors"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
)

func withLogRepositories(t *testing.T, action func(t *testing.T, repo LogRepository)) {
	t.Run("sql", func(t *testing.T) {
		withSqlDb(t, func(db *goqu.Database) {
			action(t, NewSqlLogRepository(db))
		})
	})
	t.Run("memory", func(t *testing.T) {
		withMemoryDb(t, func(db *MemoryDb) {
			action(t, NewMemoryLogRepository(db))
		})
	})
	t.Run("cached", func(t *testing.T) {
		withMemoryDb(t, func(db *MemoryDb) {
			repo, err := NewCachedLogRepository(NewMemoryLogRepository(db), 10)
			require.NoError(t, err)
			action(t, repo)
		})
	})
}

func testLog(id string, owner string, uploaded time.Duration) *model.LogFile {
	return &model.LogFile{
		Id:         id,
		Owner:      owner,
		Filename:   id + ".log",
		Size:       1024,
		Sha256:     "abc",
		StorageKey: "logs/" + id + ".log",
		UploadedAt: baseTime.Add(uploaded),
	}
}

func TestLogRepository_RegisterGetDelete(t *testing.T) {
	withLogRepositories(t, func(t *testing.T, repo LogRepository) {
		ctx := context.Background()
		log := testLog("log-1", "alice", 0)
		require.NoError(t, repo.Register(ctx, log))

		fetched, err := repo.Get(ctx, "log-1")
		require.NoError(t, err)
		assert.Equal(t, log, fetched)

		err = repo.Register(ctx, testLog("log-1", "bob", time.Hour))
		var exists *apperrors.ErrAlreadyExists
		assert.True(t, errors.As(err, &exists))

		require.NoError(t, repo.Delete(ctx, "log-1"))
		fetched, err = repo.Get(ctx, "log-1")
		require.NoError(t, err)
		assert.Nil(t, fetched)

		// deleting again is not an error
		assert.NoError(t, repo.Delete(ctx, "log-1"))
	})
}

func TestLogRepository_List(t *testing.T) {
	withLogRepositories(t, func(t *testing.T, repo LogRepository) {
		ctx := context.Background()
		require.NoError(t, repo.Register(ctx, testLog("log-a", "alice", 1*time.Minute)))
		require.NoError(t, repo.Register(ctx, testLog("log-b", "bob", 2*time.Minute)))
		require.NoError(t, repo.Register(ctx, testLog("log-c", "alice", 3*time.Minute)))

		all, err := repo.List(ctx, "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"log-c", "log-b", "log-a"}, logIds(all))

		alice, err := repo.List(ctx, "alice", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"log-c", "log-a"}, logIds(alice))

		limited, err := repo.List(ctx, "", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"log-c"}, logIds(limited))
	})
}

func TestCachedLogRepository_ServesFromCache(t *testing.T) {
	withMemoryDb(t, func(db *MemoryDb) {
		ctx := context.Background()
		delegate := NewMemoryLogRepository(db)
		repo, err := NewCachedLogRepository(delegate, 10)
		require.NoError(t, err)

		require.NoError(t, repo.Register(ctx, testLog("log-1", "alice", 0)))
		_, err = repo.Get(ctx, "log-1")
		require.NoError(t, err)

		// removed behind the cache's back
		require.NoError(t, delegate.Delete(ctx, "log-1"))
		cached, err := repo.Get(ctx, "log-1")
		require.NoError(t, err)
		assert.NotNil(t, cached)

		require.NoError(t, repo.Delete(ctx, "log-1"))
		cached, err = repo.Get(ctx, "log-1")
		require.NoError(t, err)
		assert.Nil(t, cached)
	})
}

func logIds(logs []*model.LogFile) []string {
	ids := make([]string, len(logs))
	for i, l := range logs {
		ids[i] = l.Id
	}
	return ids
}
