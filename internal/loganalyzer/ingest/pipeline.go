package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/G-Research/loganalyzer/internal/common/appcontext"
	"github.com/G-Research/loganalyzer/internal/common/apperrors"
	"github.com/G-Research/loganalyzer/internal/common/logging"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/aggregator"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/metrics"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/parser"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/repository"
)

const readBufferSize = 64 * 1024

// Source yields the uploaded content of a log file.
type Source interface {
	Open(ctx context.Context, logId string) (io.ReadCloser, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, logId string) (io.ReadCloser, error)

func (f SourceFunc) Open(ctx context.Context, logId string) (io.ReadCloser, error) {
	return f(ctx, logId)
}

// Pipeline runs the analysis of one log file for an existing job: it reads the file line by line, hashes and
// aggregates every line, writes parsed events to the event store in batches and finally stores the summary.
//
// Event batches are written as they fill and are not rolled back when a later step fails. A failed run that is
// retried with a new job may therefore leave duplicate events for the same log.
type Pipeline struct {
	source    Source
	jobs      repository.JobRepository
	events    repository.EventRepository
	summaries repository.SummaryRepository
	batchSize int
	metrics   *metrics.Metrics
}

func NewPipeline(
	source Source,
	jobs repository.JobRepository,
	events repository.EventRepository,
	summaries repository.SummaryRepository,
	batchSize int,
) *Pipeline {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Pipeline{
		source:    source,
		jobs:      jobs,
		events:    events,
		summaries: summaries,
		batchSize: batchSize,
		metrics:   metrics.Get(),
	}
}

// Run moves the job to running, ingests its log file and moves the job to done once the summary is stored. Any
// failure after the job started moves it to error with the failure message instead. Run returns the stored summary,
// or the error that ended the run.
func (p *Pipeline) Run(ctx *appcontext.Context, jobId string) (*model.Summary, error) {
	start := time.Now()
	job, err := p.jobs.Transition(ctx, jobId, model.JobRunning, "")
	if err != nil {
		p.metrics.RecordStoreError(metrics.StoreOperationJob)
		return nil, err
	}
	p.metrics.RecordJobState(model.JobRunning.String())
	ctx = appcontext.WithLogFields(ctx, logrus.Fields{"jobId": job.Id, "logId": job.LogId})
	ctx.Log.Info("analysis started")

	summary, err := p.ingestRecovering(ctx, job)
	if err != nil {
		return nil, p.fail(ctx, job, err)
	}

	if _, err := p.jobs.Transition(ctx, job.Id, model.JobDone, ""); err != nil {
		p.metrics.RecordStoreError(metrics.StoreOperationJob)
		return nil, p.fail(ctx, job, apperrors.Wrap(apperrors.KindStore, err, "marking job done"))
	}
	p.metrics.RecordJobState(model.JobDone.String())
	ctx.Log.WithField("duration", time.Since(start)).
		Infof("analysis finished: %d lines, %d unique ips", summary.TotalLines, summary.UniqueIps)
	return summary, nil
}

func (p *Pipeline) fail(ctx *appcontext.Context, job *model.Job, cause error) error {
	logging.WithStacktrace(ctx.Log, cause).Warn("analysis failed")
	// The run may have ended because ctx was cancelled; the job must still reach a terminal state.
	if _, err := p.jobs.Transition(appcontext.Detach(ctx), job.Id, model.JobError, cause.Error()); err != nil {
		p.metrics.RecordStoreError(metrics.StoreOperationJob)
		logging.WithStacktrace(ctx.Log, err).Error("could not mark job as failed")
		return multierror.Append(cause, err)
	}
	p.metrics.RecordJobState(model.JobError.String())
	return cause
}

// ingestRecovering turns a panic during ingestion into an error so that the job still ends in error.
func (p *Pipeline) ingestRecovering(ctx *appcontext.Context, job *model.Job) (summary *model.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			summary = nil
			err = errors.Errorf("analysis panicked: %v", r)
		}
	}()
	return p.ingest(ctx, job)
}

func (p *Pipeline) ingest(ctx *appcontext.Context, job *model.Job) (*model.Summary, error) {
	reader, err := p.source.Open(ctx, job.LogId)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStream, err, fmt.Sprintf("opening log %s", job.LogId))
	}
	defer func() {
		if err := reader.Close(); err != nil {
			ctx.Log.WithError(err).Warn("error closing log stream")
		}
	}()

	agg := aggregator.New()
	batcher := NewBatcher(p.batchSize, func(ctx context.Context, batch []*model.Event) error {
		if err := p.events.InsertBatch(ctx, job, batch); err != nil {
			p.metrics.RecordStoreError(metrics.StoreOperationFlush)
			return apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("flushing batch of %d events", len(batch)))
		}
		p.metrics.RecordFlush(len(batch))
		return nil
	})

	lines := bufio.NewReaderSize(reader, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(apperrors.KindStream, err, "analysis interrupted")
		}
		line, readErr := lines.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, apperrors.Wrap(apperrors.KindStream, readErr, fmt.Sprintf("reading log %s", job.LogId))
		}
		// a trailing newline does not start another line
		if len(line) > 0 {
			line = bytes.TrimSuffix(line, []byte{'\n'})
			line = bytes.TrimSuffix(line, []byte{'\r'})
			if err := p.addLine(ctx, job, agg, batcher, line); err != nil {
				return nil, err
			}
		}
		if readErr != nil {
			break
		}
	}

	ctx.Log.Debugf("flushing final batch of %d events", batcher.Pending())
	if err := batcher.Flush(ctx); err != nil {
		return nil, err
	}
	ctx.Log.Debugf("flushed %d batches, %d lines parsed", batcher.Flushes(), agg.ParsedLines())

	summary := agg.Summary()
	if err := p.summaries.Put(ctx, job.LogId, summary); err != nil {
		p.metrics.RecordStoreError(metrics.StoreOperationSummary)
		return nil, apperrors.Wrap(apperrors.KindStore, err, "saving summary")
	}
	return summary, nil
}

func (p *Pipeline) addLine(
	ctx context.Context,
	job *model.Job,
	agg *aggregator.Aggregator,
	batcher *Batcher[*model.Event],
	line []byte,
) error {
	agg.AddLine(line)
	record, err := parser.Parse(string(line))
	if err != nil {
		p.metrics.RecordLine(false)
		return nil
	}
	p.metrics.RecordLine(true)
	agg.AddRecord(record)
	return batcher.Add(ctx, record.Event(job.LogId))
}
