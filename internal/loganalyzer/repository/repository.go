// Package repository holds the stores behind the ingestion core: jobs, log file metadata, events and summaries.
//
// Get style lookups return (nil, nil) for absent records. Failures are returned wrapped with a stack trace; callers
// decide which error kind they map to.
package repository

import (
	"context"

	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
)

type JobRepository interface {
	// Create stores a new queued job for logId.
	Create(ctx context.Context, logId string) (*model.Job, error)
	// Transition moves a job to next. It fails with a KindJobNotFound error if the job does not exist and with
	// *model.ErrIllegalTransition if the current state does not allow next.
	Transition(ctx context.Context, jobId string, next model.JobState, message string) (*model.Job, error)
	Get(ctx context.Context, jobId string) (*model.Job, error)
	// ListByLog returns up to limit jobs of a log, newest first.
	ListByLog(ctx context.Context, logId string, limit int) ([]*model.Job, error)
}

type LogRepository interface {
	Register(ctx context.Context, log *model.LogFile) error
	Get(ctx context.Context, logId string) (*model.LogFile, error)
	// List returns up to limit logs, newest first. An empty owner matches every log.
	List(ctx context.Context, owner string, limit int) ([]*model.LogFile, error)
	Delete(ctx context.Context, logId string) error
}

type EventRepository interface {
	// InsertBatch stores events under the log of job. Events with a timestamp already stored replace the old ones.
	InsertBatch(ctx context.Context, job *model.Job, events []*model.Event) error
	// QueryRange returns the next page of events of logId ordered by timestamp.
	QueryRange(ctx context.Context, logId string, query RangeQuery) (*RangePage, error)
	DeleteLog(ctx context.Context, logId string) error
}

type SummaryRepository interface {
	// Put stores summary for logId, replacing any earlier one.
	Put(ctx context.Context, logId string, summary *model.Summary) error
	Get(ctx context.Context, logId string) (*model.Summary, error)
	Delete(ctx context.Context, logId string) error
}

// RangeQuery selects events by timestamp. From and To are inclusive bounds; empty means unbounded.
// Cursor is the exclusive start returned by the previous page.
type RangeQuery struct {
	From       string
	To         string
	Descending bool
	Cursor     string
	Count      int
}

// RangePage is one page of events. An empty Cursor means there are no more events.
type RangePage struct {
	Events []*model.Event
	Cursor string
}

// nextCursor returns the cursor following a page: the last timestamp when the page is full, otherwise empty.
func nextCursor(events []*model.Event, count int) string {
	if count <= 0 || len(events) < count {
		return ""
	}
	return events[len(events)-1].Timestamp
}
