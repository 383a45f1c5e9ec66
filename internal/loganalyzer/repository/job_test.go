package repository

import (
	"context"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/G-Research/loganalyzer/internal/common/apperrors"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
)

func withJobRepositories(t *testing.T, action func(t *testing.T, repo JobRepository, clk *clock.FakePassiveClock)) {
	t.Run("sql", func(t *testing.T) {
		withSqlDb(t, func(db *goqu.Database) {
			clk := newFakeClock()
			action(t, NewSqlJobRepository(db, clk, sequentialIds()), clk)
		})
	})
	t.Run("memory", func(t *testing.T) {
		withMemoryDb(t, func(db *MemoryDb) {
			clk := newFakeClock()
			action(t, NewMemoryJobRepository(db, clk, sequentialIds()), clk)
		})
	})
}

func TestJobRepository_CreateAndGet(t *testing.T) {
	withJobRepositories(t, func(t *testing.T, repo JobRepository, _ *clock.FakePassiveClock) {
		ctx := context.Background()
		job, err := repo.Create(ctx, "log-1")
		require.NoError(t, err)
		assert.Equal(t, model.NewJob("job-1", "log-1", baseTime), job)

		fetched, err := repo.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, job, fetched)

		missing, err := repo.Get(ctx, "job-99")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestJobRepository_TransitionLifecycle(t *testing.T) {
	withJobRepositories(t, func(t *testing.T, repo JobRepository, clk *clock.FakePassiveClock) {
		ctx := context.Background()
		_, err := repo.Create(ctx, "log-1")
		require.NoError(t, err)

		clk.SetTime(baseTime.Add(time.Second))
		running, err := repo.Transition(ctx, "job-1", model.JobRunning, "")
		require.NoError(t, err)
		assert.Equal(t, model.JobRunning, running.Status)

		clk.SetTime(baseTime.Add(time.Minute))
		failed, err := repo.Transition(ctx, "job-1", model.JobError, "store unavailable")
		require.NoError(t, err)

		stored, err := repo.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, failed, stored)
		assert.Equal(t, model.JobError, stored.Status)
		assert.Equal(t, "store unavailable", stored.Error)
		assert.Equal(t, baseTime.Add(time.Second), *stored.StartedAt)
		assert.Equal(t, baseTime.Add(time.Minute), *stored.FinishedAt)
	})
}

func TestJobRepository_TransitionMissingJob(t *testing.T) {
	withJobRepositories(t, func(t *testing.T, repo JobRepository, _ *clock.FakePassiveClock) {
		_, err := repo.Transition(context.Background(), "nope", model.JobRunning, "")
		assert.True(t, apperrors.IsKind(err, apperrors.KindJobNotFound))
	})
}

func TestJobRepository_IllegalTransition(t *testing.T) {
	withJobRepositories(t, func(t *testing.T, repo JobRepository, _ *clock.FakePassiveClock) {
		ctx := context.Background()
		_, err := repo.Create(ctx, "log-1")
		require.NoError(t, err)

		_, err = repo.Transition(ctx, "job-1", model.JobDone, "")
		var illegal *model.ErrIllegalTransition
		assert.True(t, errors.As(err, &illegal))

		stored, err := repo.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobQueued, stored.Status)
	})
}

func TestJobRepository_ListByLog(t *testing.T) {
	withJobRepositories(t, func(t *testing.T, repo JobRepository, clk *clock.FakePassiveClock) {
		ctx := context.Background()
		for i := 0; i < 7; i++ {
			clk.SetTime(baseTime.Add(time.Duration(i) * time.Second))
			logId := "log-1"
			if i%3 == 2 {
				logId = "log-2"
			}
			_, err := repo.Create(ctx, logId)
			require.NoError(t, err)
		}
		// log-1 holds job-1, job-2, job-4, job-5, job-7
		jobs, err := repo.ListByLog(ctx, "log-1", 3)
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		assert.Equal(t, []string{"job-7", "job-5", "job-4"}, []string{jobs[0].Id, jobs[1].Id, jobs[2].Id})

		jobs, err = repo.ListByLog(ctx, "log-3", 5)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}
