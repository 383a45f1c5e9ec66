package repository

import (
	"database/sql"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/G-Research/loganalyzer/internal/common/health"
)

func NewRedisHealthChecker(db redis.UniversalClient) health.Checker {
	return health.CheckerFunc(func() error {
		if _, err := db.Ping().Result(); err != nil {
			return errors.Errorf("[RedisHealth.Check] error: %s", err)
		}
		return nil
	})
}

func NewSqlHealthChecker(db *sql.DB) health.Checker {
	return health.CheckerFunc(func() error {
		if _, err := db.Exec("SELECT 1"); err != nil {
			return errors.Errorf("[SqlHealth.Check] error: %s", err)
		}
		return nil
	})
}
