package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
)

const (
	eventsPrefix     = "Events:"
	eventIndexPrefix = "EventIndex:"
)

type EventRetentionPolicy struct {
	ExpiryEnabled     bool
	RetentionDuration time.Duration
}

// RedisEventRepository stores the events of a log as a hash of timestamp to event, plus a sorted set of the
// timestamps. All members of the set share score 0, so the set is ordered lexically and ranges are served with
// ZRANGEBYLEX.
type RedisEventRepository struct {
	db        redis.UniversalClient
	retention EventRetentionPolicy
}

func NewRedisEventRepository(db redis.UniversalClient, retention EventRetentionPolicy) *RedisEventRepository {
	return &RedisEventRepository{db: db, retention: retention}
}

func (repo *RedisEventRepository) InsertBatch(_ context.Context, job *model.Job, events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}
	eventsKey := eventsPrefix + job.LogId
	indexKey := eventIndexPrefix + job.LogId

	pipe := repo.db.Pipeline()
	for _, e := range events {
		stored := *e
		stored.LogId = job.LogId
		data, err := json.Marshal(&stored)
		if err != nil {
			return errors.WithStack(err)
		}
		pipe.HSet(eventsKey, stored.Timestamp, data)
		pipe.ZAdd(indexKey, redis.Z{Score: 0, Member: stored.Timestamp})
	}
	if repo.retention.ExpiryEnabled {
		pipe.Expire(eventsKey, repo.retention.RetentionDuration)
		pipe.Expire(indexKey, repo.retention.RetentionDuration)
	}
	_, err := pipe.Exec()
	return errors.WithStack(err)
}

func (repo *RedisEventRepository) QueryRange(_ context.Context, logId string, query RangeQuery) (*RangePage, error) {
	opt := redis.ZRangeBy{Min: "-", Max: "+", Count: int64(query.Count)}
	if query.From != "" {
		opt.Min = "[" + query.From
	}
	if query.To != "" {
		opt.Max = "[" + query.To
	}

	var timestamps []string
	var err error
	if query.Descending {
		if query.Cursor != "" {
			opt.Max = "(" + query.Cursor
		}
		timestamps, err = repo.db.ZRevRangeByLex(eventIndexPrefix+logId, opt).Result()
	} else {
		if query.Cursor != "" {
			opt.Min = "(" + query.Cursor
		}
		timestamps, err = repo.db.ZRangeByLex(eventIndexPrefix+logId, opt).Result()
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(timestamps) == 0 {
		return &RangePage{Events: []*model.Event{}}, nil
	}

	values, err := repo.db.HMGet(eventsPrefix+logId, timestamps...).Result()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	events := make([]*model.Event, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// hash entry expired or deleted after the index was read
			continue
		}
		event := &model.Event{}
		if err := json.Unmarshal([]byte(s), event); err != nil {
			return nil, errors.WithStack(err)
		}
		events = append(events, event)
	}

	cursor := ""
	if query.Count > 0 && len(timestamps) == query.Count {
		cursor = timestamps[len(timestamps)-1]
	}
	return &RangePage{Events: events, Cursor: cursor}, nil
}

func (repo *RedisEventRepository) DeleteLog(_ context.Context, logId string) error {
	return errors.WithStack(repo.db.Del(eventsPrefix+logId, eventIndexPrefix+logId).Err())
}
