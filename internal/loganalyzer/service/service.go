// Package service exposes the operations of the log analyzer to the HTTP and command line layers.
package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/loganalyzer/internal/common/appcontext"
	"github.com/G-Research/loganalyzer/internal/common/apperrors"
	"github.com/G-Research/loganalyzer/internal/common/logging"
	"github.com/G-Research/loganalyzer/internal/common/task"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/ingest"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/metrics"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/query"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/repository"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/source"
)

const (
	DefaultJobListLimit = 5
	DefaultLogListLimit = 50
	AnonymousOwner      = "anonymous"
)

// Files stores the bytes of uploaded log files.
type Files interface {
	Save(ctx context.Context, key string, content io.Reader) (*source.Stored, error)
	Stat(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

// Stores groups the repositories the service reads and writes.
type Stores struct {
	Logs      repository.LogRepository
	Jobs      repository.JobRepository
	Events    repository.EventRepository
	Summaries repository.SummaryRepository
}

// RegisterRequest describes a file that was stored without going through Upload.
type RegisterRequest struct {
	LogId      string `json:"logId"`
	Owner      string `json:"owner"`
	Filename   string `json:"filename"`
	StorageKey string `json:"storageKey"`
}

type Service struct {
	stores          Stores
	files           Files
	pipeline        *ingest.Pipeline
	engine          *query.Engine
	runner          *task.Runner
	clock           clock.PassiveClock
	newLogId        func() string
	analysisTimeout time.Duration
}

func New(
	stores Stores,
	files Files,
	pipeline *ingest.Pipeline,
	engine *query.Engine,
	runner *task.Runner,
	clock clock.PassiveClock,
	newLogId func() string,
	analysisTimeout time.Duration,
) *Service {
	return &Service{
		stores:          stores,
		files:           files,
		pipeline:        pipeline,
		engine:          engine,
		runner:          runner,
		clock:           clock,
		newLogId:        newLogId,
		analysisTimeout: analysisTimeout,
	}
}

// StartAnalysis creates a queued job for logId and runs the ingestion pipeline for it in the background. The job is
// returned as soon as it is stored; the returned task completes when the job reaches a terminal state.
// The background run does not inherit the cancellation of ctx.
func (s *Service) StartAnalysis(ctx *appcontext.Context, logId string) (*model.Job, *task.Task, error) {
	if _, err := s.GetLog(ctx, logId); err != nil {
		return nil, nil, err
	}
	job, err := s.stores.Jobs.Create(ctx, logId)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("creating job for log %s", logId))
	}
	metrics.Get().RecordJobState(job.Status.String())
	ctx.Log.WithField("jobId", job.Id).Infof("queued analysis of log %s", logId)

	runCtx := appcontext.Detach(ctx)
	t := s.runner.Go(job.Id, func() error {
		if s.analysisTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = appcontext.WithTimeout(runCtx, s.analysisTimeout)
			defer cancel()
		}
		_, err := s.pipeline.Run(runCtx, job.Id)
		return err
	})
	return job, t, nil
}

// GetSummary returns the summary of the last successful analysis of logId.
func (s *Service) GetSummary(ctx *appcontext.Context, logId string) (*model.Summary, error) {
	summary, err := s.stores.Summaries.Get(ctx, logId)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("reading summary of log %s", logId))
	}
	if summary == nil {
		return nil, errors.WithStack(&apperrors.ErrNotFound{Type: "summary", Value: logId})
	}
	return summary, nil
}

func (s *Service) QueryEvents(ctx *appcontext.Context, logId string, q *model.EventQuery) (*model.EventPage, error) {
	return s.engine.Query(ctx, logId, q)
}

func (s *Service) GetJob(ctx *appcontext.Context, jobId string) (*model.Job, error) {
	job, err := s.stores.Jobs.Get(ctx, jobId)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("reading job %s", jobId))
	}
	if job == nil {
		return nil, errors.WithStack(&apperrors.ErrNotFound{Type: "job", Value: jobId})
	}
	return job, nil
}

// ListJobs returns the most recent jobs of logId, newest first. A limit below 1 selects DefaultJobListLimit.
func (s *Service) ListJobs(ctx *appcontext.Context, logId string, limit int) ([]*model.Job, error) {
	if limit < 1 {
		limit = DefaultJobListLimit
	}
	jobs, err := s.stores.Jobs.ListByLog(ctx, logId, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("listing jobs of log %s", logId))
	}
	return jobs, nil
}

// Upload stores content as a new log file owned by owner.
func (s *Service) Upload(ctx *appcontext.Context, owner string, filename string, content io.Reader) (*model.LogFile, error) {
	if owner == "" {
		owner = AnonymousOwner
	}
	logId := s.newLogId()
	stored, err := s.files.Save(ctx, source.StorageKey(logId), content)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("storing upload %s", filename))
	}
	logFile := &model.LogFile{
		Id:         logId,
		Owner:      owner,
		Filename:   filename,
		Size:       stored.Size,
		Sha256:     stored.Sha256,
		StorageKey: stored.Key,
		UploadedAt: s.clock.Now().UTC(),
	}
	if err := s.stores.Logs.Register(ctx, logFile); err != nil {
		if deleteErr := s.files.Delete(ctx, stored.Key); deleteErr != nil {
			logging.WithStacktrace(ctx.Log, deleteErr).Warnf("could not remove orphaned upload %s", stored.Key)
		}
		return nil, apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("registering log %s", logId))
	}
	ctx.Log.WithField("logId", logId).Infof("stored upload %s (%d bytes)", filename, stored.Size)
	return logFile, nil
}

// RegisterUpload records metadata for a file already present in storage. Registering an id that already exists
// returns the existing record unchanged.
func (s *Service) RegisterUpload(ctx *appcontext.Context, req *RegisterRequest) (*model.LogFile, error) {
	if req.LogId == "" {
		return nil, errors.WithStack(&apperrors.ErrInvalidArgument{Name: "logId", Value: req.LogId, Message: "must not be empty"})
	}
	existing, err := s.stores.Logs.Get(ctx, req.LogId)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("reading log %s", req.LogId))
	}
	if existing != nil {
		return existing, nil
	}

	key := req.StorageKey
	if key == "" {
		key = source.StorageKey(req.LogId)
	}
	size, err := s.files.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	owner := req.Owner
	if owner == "" {
		owner = AnonymousOwner
	}
	logFile := &model.LogFile{
		Id:         req.LogId,
		Owner:      owner,
		Filename:   req.Filename,
		Size:       size,
		StorageKey: key,
		UploadedAt: s.clock.Now().UTC(),
	}
	err = s.stores.Logs.Register(ctx, logFile)
	var exists *apperrors.ErrAlreadyExists
	if errors.As(err, &exists) {
		// registered concurrently
		return s.GetLog(ctx, req.LogId)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("registering log %s", req.LogId))
	}
	return logFile, nil
}

func (s *Service) GetLog(ctx *appcontext.Context, logId string) (*model.LogFile, error) {
	logFile, err := s.stores.Logs.Get(ctx, logId)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("reading log %s", logId))
	}
	if logFile == nil {
		return nil, errors.WithStack(&apperrors.ErrNotFound{Type: "log", Value: logId})
	}
	return logFile, nil
}

// ListLogs returns the newest log files, optionally restricted to one owner. A limit below 1 selects
// DefaultLogListLimit.
func (s *Service) ListLogs(ctx *appcontext.Context, owner string, limit int) ([]*model.LogFile, error) {
	if limit < 1 {
		limit = DefaultLogListLimit
	}
	logs, err := s.stores.Logs.List(ctx, owner, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "listing logs")
	}
	return logs, nil
}

// DeleteLog removes the stored file, events, summary and metadata of a log. Jobs of the log are kept.
func (s *Service) DeleteLog(ctx *appcontext.Context, logId string) error {
	logFile, err := s.GetLog(ctx, logId)
	if err != nil {
		return err
	}
	if err := s.files.Delete(ctx, logFile.StorageKey); err != nil {
		return apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("deleting file of log %s", logId))
	}
	if err := s.stores.Events.DeleteLog(ctx, logId); err != nil {
		return apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("deleting events of log %s", logId))
	}
	if err := s.stores.Summaries.Delete(ctx, logId); err != nil {
		return apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("deleting summary of log %s", logId))
	}
	if err := s.stores.Logs.Delete(ctx, logId); err != nil {
		return apperrors.Wrap(apperrors.KindStore, err, fmt.Sprintf("deleting log %s", logId))
	}
	ctx.Log.WithField("logId", logId).Info("deleted log")
	return nil
}

// Shutdown waits up to timeout for running analyses. It returns false if some were still running.
func (s *Service) Shutdown(timeout time.Duration) bool {
	running := s.runner.Running()
	if running > 0 {
		log.Infof("waiting for %d running analyses", running)
	}
	return !s.runner.WaitAll(timeout)
}
