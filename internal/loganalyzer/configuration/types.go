package configuration

import (
	"time"

	"github.com/G-Research/loganalyzer/internal/common/config"
	"github.com/G-Research/loganalyzer/internal/common/database"
	"github.com/G-Research/loganalyzer/internal/common/logging"
)

const (
	MemoryType = "memory"
	RedisType  = "redis"
)

type Configuration struct {
	// Port the HTTP API is served on
	HttpPort uint16 `validate:"required"`
	// Port prometheus metrics are served on. Zero disables the metrics server.
	MetricsPort uint16
	Logging     logging.Config
	// Directory uploaded log files are stored under
	StorageDir string `validate:"required"`
	Database   DatabaseConfig
	EventStore EventStoreConfig
	Ingest     IngestConfig
	Query      QueryConfig
	Cache      CacheConfig
	Server     ServerConfig
}

// DatabaseConfig selects where jobs and log file metadata are kept.
type DatabaseConfig struct {
	Type string `validate:"oneof=sqlite postgres memory"`
	// Apply schema migrations on startup
	AutoMigrate bool
	Sqlite      database.SqliteConfig
	Postgres    database.PostgresConfig
}

// EventStoreConfig selects where events and summaries are kept.
type EventStoreConfig struct {
	Type  string              `validate:"oneof=redis memory"`
	Redis *config.RedisConfig `validate:"required_if=Type redis"`
	// Expire the events of a log this long after its last write. Zero keeps events until the log is deleted.
	EventRetention time.Duration
}

type IngestConfig struct {
	// Number of events written to the event store per call
	BatchSize int `validate:"gte=1"`
	// Upper bound on the runtime of one analysis. Zero means no bound.
	AnalysisTimeout time.Duration
	// How long shutdown waits for running analyses
	ShutdownTimeout time.Duration
}

type QueryConfig struct {
	// Number of events read from the event store per call
	FetchSize int `validate:"gte=1"`
	// Largest page size accepted. Zero means unbounded.
	MaxLimit int `validate:"gte=0"`
}

type CacheConfig struct {
	// How long summaries are cached in process. Zero disables the cache.
	SummaryTtl time.Duration
	// Number of log file records cached in process. Zero disables the cache.
	LogCacheSize int `validate:"gte=0"`
}

type ServerConfig struct {
	CorsAllowedOrigins []string
	// Largest accepted upload in bytes. Zero means unlimited.
	MaxUploadBytes int64 `validate:"gte=0"`
}
