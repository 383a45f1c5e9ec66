// Package query serves filtered, paginated reads over stored events.
//
// Pages are not cursor based. To answer page n the engine reads events from the start of the range until it holds at
// least n*limit of them, filters what it read and slices the requested window, so the cost of a query grows with the
// page depth. Total counts only cover the events read so far and are not exact when filters discard events. Counts
// can also shift if events are written between two queries.
package query

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/loganalyzer/internal/common/apperrors"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/metrics"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/repository"
)

const DefaultFetchSize = 500

// Engine answers event queries. It holds no state between calls and is safe for concurrent use.
type Engine struct {
	events    repository.EventRepository
	fetchSize int
	maxLimit  int
	metrics   *metrics.Metrics
}

// NewEngine returns an engine reading fetchSize events per store call. A maxLimit of zero leaves the page size
// unbounded.
func NewEngine(events repository.EventRepository, fetchSize int, maxLimit int) *Engine {
	if fetchSize <= 0 {
		fetchSize = DefaultFetchSize
	}
	return &Engine{
		events:    events,
		fetchSize: fetchSize,
		maxLimit:  maxLimit,
		metrics:   metrics.Get(),
	}
}

func (e *Engine) Query(ctx context.Context, logId string, q *model.EventQuery) (*model.EventPage, error) {
	if err := e.validate(q); err != nil {
		return nil, err
	}
	if q.From != "" && q.To != "" && q.From > q.To {
		// an inverted range admits no event
		return &model.EventPage{Page: q.Page, Limit: q.Limit, Items: []*model.Event{}}, nil
	}
	start := time.Now()
	defer func() { e.metrics.RecordQuery(time.Since(start)) }()

	fetched, err := e.fetch(ctx, logId, q, q.Page*q.Limit)
	if err != nil {
		e.metrics.RecordStoreError(metrics.StoreOperationQuery)
		return nil, apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("reading events of log %s", logId))
	}

	matching := make([]*model.Event, 0, len(fetched))
	for _, event := range fetched {
		if matches(event, q) {
			matching = append(matching, event)
		}
	}

	from := min((q.Page-1)*q.Limit, len(matching))
	to := min(q.Page*q.Limit, len(matching))
	return &model.EventPage{
		Page:  q.Page,
		Limit: q.Limit,
		Total: len(matching),
		Items: matching[from:to],
	}, nil
}

// fetch reads pages from the store until it holds at least want events or the range is exhausted.
func (e *Engine) fetch(ctx context.Context, logId string, q *model.EventQuery, want int) ([]*model.Event, error) {
	rangeQuery := repository.RangeQuery{
		From:       q.From,
		To:         q.To,
		Descending: q.Descending,
		Count:      e.fetchSize,
	}
	events := make([]*model.Event, 0, min(want, e.fetchSize))
	for len(events) < want {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		page, err := e.events.QueryRange(ctx, logId, rangeQuery)
		if err != nil {
			return nil, err
		}
		events = append(events, page.Events...)
		if page.Cursor == "" {
			break
		}
		rangeQuery.Cursor = page.Cursor
	}
	return events, nil
}

func (e *Engine) validate(q *model.EventQuery) error {
	if q.Page < 1 {
		return errors.WithStack(&apperrors.ErrInvalidArgument{Name: "page", Value: q.Page, Message: "must be at least 1"})
	}
	if q.Limit < 1 {
		return errors.WithStack(&apperrors.ErrInvalidArgument{Name: "limit", Value: q.Limit, Message: "must be at least 1"})
	}
	if e.maxLimit > 0 && q.Limit > e.maxLimit {
		return errors.WithStack(&apperrors.ErrInvalidArgument{
			Name:    "limit",
			Value:   q.Limit,
			Message: fmt.Sprintf("must be at most %d", e.maxLimit),
		})
	}
	if q.Page > math.MaxInt/q.Limit {
		return errors.WithStack(&apperrors.ErrInvalidArgument{
			Name:    "page",
			Value:   q.Page,
			Message: fmt.Sprintf("must be at most %d for limit %d", math.MaxInt/q.Limit, q.Limit),
		})
	}
	return nil
}

func matches(event *model.Event, q *model.EventQuery) bool {
	if q.Ip != "" && event.Ip != q.Ip {
		return false
	}
	if q.Status != nil && event.Status != *q.Status {
		return false
	}
	return true
}
