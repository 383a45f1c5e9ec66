package repository

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
)

// CachedSummaryRepository caches summaries read from another SummaryRepository. Put invalidates instead of caching
// what it wrote, so concurrent writers can never leave the cache holding a summary the store no longer has. Absent
// summaries are not cached, and a summary written by another process becomes visible once the entry expires.
type CachedSummaryRepository struct {
	delegate SummaryRepository
	cache    *cache.Cache
}

func NewCachedSummaryRepository(delegate SummaryRepository, ttl time.Duration) *CachedSummaryRepository {
	return &CachedSummaryRepository{
		delegate: delegate,
		cache:    cache.New(ttl, 2*ttl),
	}
}

func (r *CachedSummaryRepository) Put(ctx context.Context, logId string, summary *model.Summary) error {
	defer r.cache.Delete(logId)
	return r.delegate.Put(ctx, logId, summary)
}

func (r *CachedSummaryRepository) Get(ctx context.Context, logId string) (*model.Summary, error) {
	if cached, ok := r.cache.Get(logId); ok {
		return cached.(*model.Summary), nil
	}
	summary, err := r.delegate.Get(ctx, logId)
	if err != nil || summary == nil {
		return summary, err
	}
	r.cache.SetDefault(logId, summary)
	return summary, nil
}

func (r *CachedSummaryRepository) Delete(ctx context.Context, logId string) error {
	r.cache.Delete(logId)
	return r.delegate.Delete(ctx, logId)
}

// CachedLogRepository keeps recently read log files in an LRU cache. Log files are immutable once registered, so
// only Delete needs to invalidate.
type CachedLogRepository struct {
	delegate LogRepository
	logs     *lru.Cache
}

func NewCachedLogRepository(delegate LogRepository, size int) (*CachedLogRepository, error) {
	logs, err := lru.New(size)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &CachedLogRepository{delegate: delegate, logs: logs}, nil
}

func (r *CachedLogRepository) Register(ctx context.Context, log *model.LogFile) error {
	return r.delegate.Register(ctx, log)
}

func (r *CachedLogRepository) Get(ctx context.Context, logId string) (*model.LogFile, error) {
	if cached, ok := r.logs.Get(logId); ok {
		copied := *cached.(*model.LogFile)
		return &copied, nil
	}
	log, err := r.delegate.Get(ctx, logId)
	if err != nil || log == nil {
		return log, err
	}
	copied := *log
	r.logs.Add(logId, &copied)
	return log, nil
}

func (r *CachedLogRepository) List(ctx context.Context, owner string, limit int) ([]*model.LogFile, error) {
	return r.delegate.List(ctx, owner, limit)
}

func (r *CachedLogRepository) Delete(ctx context.Context, logId string) error {
	r.logs.Remove(logId)
	return r.delegate.Delete(ctx, logId)
}
