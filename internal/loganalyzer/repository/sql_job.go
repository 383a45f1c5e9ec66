package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/G-Research/loganalyzer/internal/common/apperrors"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
)

var (
	jobsTable = goqu.T("jobs")

	job_id         = goqu.C("id")
	job_logId      = goqu.C("log_id")
	job_status     = goqu.C("status")
	job_createdAt  = goqu.C("created_at")
	job_startedAt  = goqu.C("started_at")
	job_finishedAt = goqu.C("finished_at")
	job_error      = goqu.C("error")
)

type jobRow struct {
	Id         string         `db:"id"`
	LogId      string         `db:"log_id"`
	Status     string         `db:"status"`
	CreatedAt  int64          `db:"created_at"`
	StartedAt  sql.NullInt64  `db:"started_at"`
	FinishedAt sql.NullInt64  `db:"finished_at"`
	Error      sql.NullString `db:"error"`
}

// SqlJobRepository stores jobs in sqlite or postgres.
type SqlJobRepository struct {
	db    *goqu.Database
	clock clock.PassiveClock
	newId func() string
}

func NewSqlJobRepository(db *goqu.Database, clock clock.PassiveClock, newId func() string) *SqlJobRepository {
	return &SqlJobRepository{db: db, clock: clock, newId: newId}
}

func (r *SqlJobRepository) Create(ctx context.Context, logId string) (*model.Job, error) {
	job := model.NewJob(r.newId(), logId, r.clock.Now().UTC())
	_, err := r.db.Insert(jobsTable).Prepared(true).Rows(toJobRow(job)).Executor().ExecContext(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return job, nil
}

func (r *SqlJobRepository) Get(ctx context.Context, jobId string) (*model.Job, error) {
	var row jobRow
	found, err := r.db.From(jobsTable).Prepared(true).Where(job_id.Eq(jobId)).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !found {
		return nil, nil
	}
	return fromJobRow(row)
}

// Transition only applies if the stored status is unchanged since it was read, so concurrent transitions of the
// same job cannot both succeed.
func (r *SqlJobRepository) Transition(ctx context.Context, jobId string, next model.JobState, message string) (*model.Job, error) {
	job, err := r.Get(ctx, jobId)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperrors.New(apperrors.KindJobNotFound, jobId)
	}
	updated, err := job.Transition(next, r.clock.Now().UTC(), message)
	if err != nil {
		return nil, err
	}
	row := toJobRow(updated)
	result, err := r.db.Update(jobsTable).Prepared(true).
		Set(goqu.Record{
			"status":      row.Status,
			"started_at":  nullableInt(row.StartedAt),
			"finished_at": nullableInt(row.FinishedAt),
			"error":       nullableString(row.Error),
		}).
		Where(job_id.Eq(jobId), job_status.Eq(job.Status.String())).
		Executor().ExecContext(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if affected == 0 {
		current, err := r.Get(ctx, jobId)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, apperrors.New(apperrors.KindJobNotFound, jobId)
		}
		return nil, errors.WithStack(&model.ErrIllegalTransition{JobId: jobId, From: current.Status, To: next})
	}
	return updated, nil
}

func (r *SqlJobRepository) ListByLog(ctx context.Context, logId string, limit int) ([]*model.Job, error) {
	var rows []jobRow
	err := r.db.From(jobsTable).Prepared(true).
		Where(job_logId.Eq(logId)).
		Order(job_createdAt.Desc(), job_id.Desc()).
		Limit(uint(limit)).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	jobs := make([]*model.Job, 0, len(rows))
	for _, row := range rows {
		job, err := fromJobRow(row)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func toJobRow(job *model.Job) jobRow {
	row := jobRow{
		Id:        job.Id,
		LogId:     job.LogId,
		Status:    job.Status.String(),
		CreatedAt: job.CreatedAt.UnixMilli(),
	}
	if job.StartedAt != nil {
		row.StartedAt = sql.NullInt64{Int64: job.StartedAt.UnixMilli(), Valid: true}
	}
	if job.FinishedAt != nil {
		row.FinishedAt = sql.NullInt64{Int64: job.FinishedAt.UnixMilli(), Valid: true}
	}
	if job.Error != "" {
		row.Error = sql.NullString{String: job.Error, Valid: true}
	}
	return row
}

func fromJobRow(row jobRow) (*model.Job, error) {
	status, err := model.ParseJobState(row.Status)
	if err != nil {
		return nil, err
	}
	job := &model.Job{
		Id:        row.Id,
		LogId:     row.LogId,
		Status:    status,
		CreatedAt: fromMillis(row.CreatedAt),
		Error:     row.Error.String,
	}
	if row.StartedAt.Valid {
		t := fromMillis(row.StartedAt.Int64)
		job.StartedAt = &t
	}
	if row.FinishedAt.Valid {
		t := fromMillis(row.FinishedAt.Int64)
		job.FinishedAt = &t
	}
	return job, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableInt(v sql.NullInt64) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Int64
}

func nullableString(v sql.NullString) interface{} {
	if !v.Valid {
		return nil
	}
	return v.String
}
