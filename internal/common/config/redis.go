package config

import (
	"time"

	"github.com/go-redis/redis"
)

// RedisConfig selects a single node, a cluster (several Addrs) or a sentinel-managed failover group (MasterName set).
type RedisConfig struct {
	Addrs      []string `validate:"required,min=1"`
	MasterName string
	DB         int `validate:"gte=0,lte=15"`
	Password   string
	PoolSize   int `validate:"required,gte=1"`

	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration `validate:"gtefield=MinRetryBackoff"`

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient returns a client for the topology described by rc. No connection is made until the first command.
func (rc RedisConfig) NewClient() redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:           rc.Addrs,
		MasterName:      rc.MasterName,
		DB:              rc.DB,
		Password:        rc.Password,
		PoolSize:        rc.PoolSize,
		MaxRetries:      rc.MaxRetries,
		MinRetryBackoff: rc.MinRetryBackoff,
		MaxRetryBackoff: rc.MaxRetryBackoff,
		DialTimeout:     rc.DialTimeout,
		ReadTimeout:     rc.ReadTimeout,
		WriteTimeout:    rc.WriteTimeout,
	})
}
