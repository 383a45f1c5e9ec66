package loganalyzer

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/G-Research/loganalyzer/internal/common/appcontext"
	"github.com/G-Research/loganalyzer/internal/common/database"
	"github.com/G-Research/loganalyzer/internal/common/health"
	"github.com/G-Research/loganalyzer/internal/common/serve"
	"github.com/G-Research/loganalyzer/internal/common/task"
	"github.com/G-Research/loganalyzer/internal/common/util"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/configuration"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/ingest"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/metrics"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/query"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/repository"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/server"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/service"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/source"
)

// Stores are the repositories opened from configuration together with their health checks.
type Stores struct {
	service.Stores
	Checker *health.MultiChecker
	closers []func()
}

// Close releases every connection held by the stores.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStores opens the job, log, event and summary stores selected by config.
func OpenStores(ctx *appcontext.Context, config configuration.Configuration) (*Stores, error) {
	stores := &Stores{Checker: health.NewMultiChecker()}
	var memDb *repository.MemoryDb
	memoryDb := func() (*repository.MemoryDb, error) {
		if memDb != nil {
			return memDb, nil
		}
		db, err := repository.NewMemoryDb()
		memDb = db
		return db, err
	}

	switch config.Database.Type {
	case configuration.MemoryType:
		db, err := memoryDb()
		if err != nil {
			return nil, err
		}
		stores.Jobs = repository.NewMemoryJobRepository(db, clock.RealClock{}, util.NewUUID)
		stores.Logs = repository.NewMemoryLogRepository(db)
	default:
		sqlDb, db, err := openSqlDatabase(ctx, config.Database)
		if err != nil {
			return nil, err
		}
		stores.closers = append(stores.closers, func() { database.CloseDatabase(sqlDb) })
		stores.Checker.Add(config.Database.Type, repository.NewSqlHealthChecker(sqlDb))
		if config.Database.AutoMigrate {
			if err := repository.MigrateDatabase(ctx, db); err != nil {
				stores.Close()
				return nil, err
			}
		}
		stores.Jobs = repository.NewSqlJobRepository(db, clock.RealClock{}, util.NewUUID)
		stores.Logs = repository.NewSqlLogRepository(db)
	}

	switch config.EventStore.Type {
	case configuration.MemoryType:
		db, err := memoryDb()
		if err != nil {
			stores.Close()
			return nil, err
		}
		stores.Events = repository.NewMemoryEventRepository(db)
		stores.Summaries = repository.NewMemorySummaryRepository(db)
	default:
		client := config.EventStore.Redis.NewClient()
		stores.closers = append(stores.closers, func() {
			if err := client.Close(); err != nil {
				ctx.Log.WithError(err).Warn("failed to close redis client")
			}
		})
		stores.Checker.Add(configuration.RedisType, repository.NewRedisHealthChecker(client))
		retention := repository.EventRetentionPolicy{
			ExpiryEnabled:     config.EventStore.EventRetention > 0,
			RetentionDuration: config.EventStore.EventRetention,
		}
		stores.Events = repository.NewRedisEventRepository(client, retention)
		stores.Summaries = repository.NewRedisSummaryRepository(client)
	}

	if config.Cache.SummaryTtl > 0 {
		stores.Summaries = repository.NewCachedSummaryRepository(stores.Summaries, config.Cache.SummaryTtl)
	}
	if config.Cache.LogCacheSize > 0 {
		logs, err := repository.NewCachedLogRepository(stores.Logs, config.Cache.LogCacheSize)
		if err != nil {
			stores.Close()
			return nil, err
		}
		stores.Logs = logs
	}
	return stores, nil
}

func openSqlDatabase(ctx context.Context, config configuration.DatabaseConfig) (*sql.DB, *goqu.Database, error) {
	sqlDb, err := database.Open(ctx, config.Type, config.Sqlite, config.Postgres)
	if err != nil {
		return nil, nil, err
	}
	return sqlDb, database.Dialect(config.Type).DB(sqlDb), nil
}

// NewService assembles the service over stores.
func NewService(config configuration.Configuration, stores service.Stores) *service.Service {
	files := source.NewFileSource(config.StorageDir, stores.Logs)
	pipeline := ingest.NewPipeline(files, stores.Jobs, stores.Events, stores.Summaries, config.Ingest.BatchSize)
	engine := query.NewEngine(stores.Events, config.Query.FetchSize, config.Query.MaxLimit)
	runner := task.NewRunner(metrics.Get().AnalysisDuration())
	return service.New(
		stores,
		files,
		pipeline,
		engine,
		runner,
		clock.RealClock{},
		util.NewULID,
		config.Ingest.AnalysisTimeout,
	)
}

// Run serves the HTTP API until SIGINT or SIGTERM, then waits up to Ingest.ShutdownTimeout for running analyses.
func Run(config configuration.Configuration) error {
	ctx, stop := appcontext.WithSignals(appcontext.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	stores, err := OpenStores(ctx, config)
	if err != nil {
		return err
	}
	defer stores.Close()

	if config.MetricsPort > 0 {
		shutdownMetricServer := serve.ServeMetrics(config.MetricsPort)
		defer shutdownMetricServer()
	}

	svc := NewService(config, stores.Stores)
	handler := server.NewHandler(svc, stores.Checker, server.Config{
		CorsAllowedOrigins: config.Server.CorsAllowedOrigins,
		MaxUploadBytes:     config.Server.MaxUploadBytes,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.HttpPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := appcontext.ErrGroup(ctx)
	g.Go(func() error {
		ctx.Log.Infof("Serving log analyzer API on port %d", config.HttpPort)
		return serve.ListenAndServe(gctx, httpServer)
	})
	err = g.Wait()

	if !svc.Shutdown(config.Ingest.ShutdownTimeout) {
		ctx.Log.Warnf("analyses still running after %s, abandoning them", config.Ingest.ShutdownTimeout)
	}
	return errors.WithStack(err)
}

// Migrate applies the schema migrations of the configured SQL database.
func Migrate(ctx *appcontext.Context, config configuration.DatabaseConfig) error {
	if config.Type == configuration.MemoryType {
		ctx.Log.Info("memory database needs no migration")
		return nil
	}
	sqlDb, db, err := openSqlDatabase(ctx, config)
	if err != nil {
		return err
	}
	defer database.CloseDatabase(sqlDb)
	return repository.MigrateDatabase(ctx, db)
}

// AnalyzeFile runs one analysis of a local file against in-memory stores and returns its summary. Events are
// discarded afterwards.
func AnalyzeFile(ctx *appcontext.Context, path string, batchSize int) (*model.Summary, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.WithStack(err)
	}
	db, err := repository.NewMemoryDb()
	if err != nil {
		return nil, err
	}
	logs := repository.NewMemoryLogRepository(db)
	jobs := repository.NewMemoryJobRepository(db, clock.RealClock{}, util.NewUUID)
	logFile := &model.LogFile{
		Id:         util.NewULID(),
		Owner:      service.AnonymousOwner,
		Filename:   filepath.Base(path),
		StorageKey: filepath.Base(path),
		UploadedAt: time.Now().UTC(),
	}
	if err := logs.Register(ctx, logFile); err != nil {
		return nil, err
	}
	job, err := jobs.Create(ctx, logFile.Id)
	if err != nil {
		return nil, err
	}
	files := source.NewFileSource(filepath.Dir(path), logs)
	pipeline := ingest.NewPipeline(
		files,
		jobs,
		repository.NewMemoryEventRepository(db),
		repository.NewMemorySummaryRepository(db),
		batchSize,
	)
	return pipeline.Run(ctx, job.Id)
}
