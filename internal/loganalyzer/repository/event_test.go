package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
)

func withEventRepositories(t *testing.T, action func(t *testing.T, repo EventRepository)) {
	t.Run("redis", func(t *testing.T) {
		withRedis(t, func(client redis.UniversalClient, _ *miniredis.Miniredis) {
			action(t, NewRedisEventRepository(client, EventRetentionPolicy{}))
		})
	})
	t.Run("memory", func(t *testing.T) {
		withMemoryDb(t, func(db *MemoryDb) {
			action(t, NewMemoryEventRepository(db))
		})
	})
}

func testEvents(n int) []*model.Event {
	events := make([]*model.Event, n)
	for i := 0; i < n; i++ {
		events[i] = &model.Event{
			Timestamp: fmt.Sprintf("2024-03-01T10:%02d:%02d", i/60, i%60),
			Ip:        fmt.Sprintf("10.0.0.%d", i%4),
			Method:    "GET",
			Path:      "/",
			Status:    200,
			Bytes:     int64(i),
		}
	}
	return events
}

func timestamps(events []*model.Event) []string {
	result := make([]string, len(events))
	for i, e := range events {
		result[i] = e.Timestamp
	}
	return result
}

// drain follows cursors until the store reports no more pages.
func drain(t *testing.T, repo EventRepository, logId string, query RangeQuery) []*model.Event {
	t.Helper()
	var all []*model.Event
	for i := 0; i < 1000; i++ {
		page, err := repo.QueryRange(context.Background(), logId, query)
		require.NoError(t, err)
		all = append(all, page.Events...)
		if page.Cursor == "" {
			return all
		}
		query.Cursor = page.Cursor
	}
	t.Fatal("cursor never ran out")
	return nil
}

func TestEventRepository_InsertAndPageAscending(t *testing.T) {
	withEventRepositories(t, func(t *testing.T, repo EventRepository) {
		ctx := context.Background()
		job := &model.Job{Id: "job-1", LogId: "log-1"}
		events := testEvents(25)
		require.NoError(t, repo.InsertBatch(ctx, job, events[10:]))
		require.NoError(t, repo.InsertBatch(ctx, job, events[:10]))

		page, err := repo.QueryRange(ctx, "log-1", RangeQuery{Count: 10})
		require.NoError(t, err)
		assert.Equal(t, timestamps(events[:10]), timestamps(page.Events))
		assert.Equal(t, events[9].Timestamp, page.Cursor)
		assert.Equal(t, "log-1", page.Events[0].LogId)
		assert.Equal(t, int64(0), page.Events[0].Bytes)

		all := drain(t, repo, "log-1", RangeQuery{Count: 10})
		assert.Equal(t, timestamps(events), timestamps(all))
	})
}

func TestEventRepository_Descending(t *testing.T) {
	withEventRepositories(t, func(t *testing.T, repo EventRepository) {
		ctx := context.Background()
		events := testEvents(12)
		require.NoError(t, repo.InsertBatch(ctx, &model.Job{LogId: "log-1"}, events))

		all := drain(t, repo, "log-1", RangeQuery{Descending: true, Count: 5})
		require.Len(t, all, 12)
		assert.Equal(t, events[11].Timestamp, all[0].Timestamp)
		assert.Equal(t, events[0].Timestamp, all[11].Timestamp)
	})
}

func TestEventRepository_Bounds(t *testing.T) {
	withEventRepositories(t, func(t *testing.T, repo EventRepository) {
		ctx := context.Background()
		events := testEvents(30)
		require.NoError(t, repo.InsertBatch(ctx, &model.Job{LogId: "log-1"}, events))

		query := RangeQuery{From: events[5].Timestamp, To: events[14].Timestamp, Count: 4}
		assert.Equal(t, timestamps(events[5:15]), timestamps(drain(t, repo, "log-1", query)))

		query.Descending = true
		descending := drain(t, repo, "log-1", query)
		require.Len(t, descending, 10)
		assert.Equal(t, events[14].Timestamp, descending[0].Timestamp)
		assert.Equal(t, events[5].Timestamp, descending[9].Timestamp)
	})
}

func TestEventRepository_TimestampCollisionKeepsLatest(t *testing.T) {
	withEventRepositories(t, func(t *testing.T, repo EventRepository) {
		ctx := context.Background()
		job := &model.Job{LogId: "log-1"}
		first := &model.Event{Timestamp: "t1", Ip: "a", Status: 200}
		second := &model.Event{Timestamp: "t1", Ip: "b", Status: 500}
		require.NoError(t, repo.InsertBatch(ctx, job, []*model.Event{first}))
		require.NoError(t, repo.InsertBatch(ctx, job, []*model.Event{second}))

		page, err := repo.QueryRange(ctx, "log-1", RangeQuery{Count: 10})
		require.NoError(t, err)
		require.Len(t, page.Events, 1)
		assert.Equal(t, "b", page.Events[0].Ip)
		assert.Empty(t, page.Cursor)
	})
}

func TestEventRepository_IsolatedByLogAndDelete(t *testing.T) {
	withEventRepositories(t, func(t *testing.T, repo EventRepository) {
		ctx := context.Background()
		require.NoError(t, repo.InsertBatch(ctx, &model.Job{LogId: "log-1"}, testEvents(3)))
		require.NoError(t, repo.InsertBatch(ctx, &model.Job{LogId: "log-10"}, testEvents(4)))

		assert.Len(t, drain(t, repo, "log-1", RangeQuery{Count: 100}), 3)
		assert.Len(t, drain(t, repo, "log-10", RangeQuery{Count: 100}), 4)

		require.NoError(t, repo.DeleteLog(ctx, "log-1"))
		page, err := repo.QueryRange(ctx, "log-1", RangeQuery{Count: 100})
		require.NoError(t, err)
		assert.Empty(t, page.Events)
		assert.Len(t, drain(t, repo, "log-10", RangeQuery{Count: 100}), 4)
	})
}

func TestEventRepository_EmptyBatch(t *testing.T) {
	withEventRepositories(t, func(t *testing.T, repo EventRepository) {
		assert.NoError(t, repo.InsertBatch(context.Background(), &model.Job{LogId: "log-1"}, nil))
	})
}

func TestRedisEventRepository_Retention(t *testing.T) {
	withRedis(t, func(client redis.UniversalClient, server *miniredis.Miniredis) {
		repo := NewRedisEventRepository(client, EventRetentionPolicy{ExpiryEnabled: true, RetentionDuration: time.Hour})
		require.NoError(t, repo.InsertBatch(context.Background(), &model.Job{LogId: "log-1"}, testEvents(2)))
		assert.Equal(t, time.Hour, server.TTL(eventsPrefix+"log-1"))
		assert.Equal(t, time.Hour, server.TTL(eventIndexPrefix+"log-1"))
	})
}

func TestRedisEventRepository_ConnectionFailure(t *testing.T) {
	withRedis(t, func(client redis.UniversalClient, server *miniredis.Miniredis) {
		repo := NewRedisEventRepository(client, EventRetentionPolicy{})
		server.Close()
		assert.Error(t, repo.InsertBatch(context.Background(), &model.Job{LogId: "log-1"}, testEvents(1)))
		_, err := repo.QueryRange(context.Background(), "log-1", RangeQuery{Count: 1})
		assert.Error(t, err)
	})
}
