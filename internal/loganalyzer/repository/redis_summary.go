package repository

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
)

const summaryPrefix = "Summary:"

type RedisSummaryRepository struct {
	db redis.UniversalClient
}

func NewRedisSummaryRepository(db redis.UniversalClient) *RedisSummaryRepository {
	return &RedisSummaryRepository{db: db}
}

func (repo *RedisSummaryRepository) Put(_ context.Context, logId string, summary *model.Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(repo.db.Set(summaryPrefix+logId, data, 0).Err())
}

func (repo *RedisSummaryRepository) Get(_ context.Context, logId string) (*model.Summary, error) {
	data, err := repo.db.Get(summaryPrefix + logId).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, errors.WithStack(err)
	}
	summary := &model.Summary{}
	if err := json.Unmarshal(data, summary); err != nil {
		return nil, errors.WithStack(err)
	}
	return summary, nil
}

func (repo *RedisSummaryRepository) Delete(_ context.Context, logId string) error {
	return errors.WithStack(repo.db.Del(summaryPrefix + logId).Err())
}
