package repository

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"

	"github.com/G-Research/loganalyzer/internal/common/apperrors"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
)

var (
	logsTable = goqu.T("logs")

	log_id         = goqu.C("id")
	log_owner      = goqu.C("owner")
	log_uploadedAt = goqu.C("uploaded_at")
)

type logRow struct {
	Id         string `db:"id"`
	Owner      string `db:"owner"`
	Filename   string `db:"filename"`
	Size       int64  `db:"size"`
	Sha256     string `db:"sha256"`
	StorageKey string `db:"storage_key"`
	UploadedAt int64  `db:"uploaded_at"`
}

// SqlLogRepository is the log file registry in sqlite or postgres.
type SqlLogRepository struct {
	db *goqu.Database
}

func NewSqlLogRepository(db *goqu.Database) *SqlLogRepository {
	return &SqlLogRepository{db: db}
}

// Register stores a new log file. Registering an id twice fails with *apperrors.ErrAlreadyExists.
func (r *SqlLogRepository) Register(ctx context.Context, log *model.LogFile) error {
	row := logRow{
		Id:         log.Id,
		Owner:      log.Owner,
		Filename:   log.Filename,
		Size:       log.Size,
		Sha256:     log.Sha256,
		StorageKey: log.StorageKey,
		UploadedAt: log.UploadedAt.UnixMilli(),
	}
	result, err := r.db.Insert(logsTable).Prepared(true).
		Rows(row).
		OnConflict(goqu.DoNothing()).
		Executor().ExecContext(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if affected == 0 {
		return errors.WithStack(&apperrors.ErrAlreadyExists{Type: "log", Value: log.Id})
	}
	return nil
}

func (r *SqlLogRepository) Get(ctx context.Context, logId string) (*model.LogFile, error) {
	var row logRow
	found, err := r.db.From(logsTable).Prepared(true).Where(log_id.Eq(logId)).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !found {
		return nil, nil
	}
	return fromLogRow(row), nil
}

func (r *SqlLogRepository) List(ctx context.Context, owner string, limit int) ([]*model.LogFile, error) {
	ds := r.db.From(logsTable).Prepared(true).
		Order(log_uploadedAt.Desc(), log_id.Desc()).
		Limit(uint(limit))
	if owner != "" {
		ds = ds.Where(log_owner.Eq(owner))
	}
	var rows []logRow
	if err := ds.ScanStructsContext(ctx, &rows); err != nil {
		return nil, errors.WithStack(err)
	}
	logs := make([]*model.LogFile, len(rows))
	for i, row := range rows {
		logs[i] = fromLogRow(row)
	}
	return logs, nil
}

func (r *SqlLogRepository) Delete(ctx context.Context, logId string) error {
	_, err := r.db.Delete(logsTable).Prepared(true).Where(log_id.Eq(logId)).Executor().ExecContext(ctx)
	return errors.WithStack(err)
}

func fromLogRow(row logRow) *model.LogFile {
	return &model.LogFile{
		Id:         row.Id,
		Owner:      row.Owner,
		Filename:   row.Filename,
		Size:       row.Size,
		Sha256:     row.Sha256,
		StorageKey: row.StorageKey,
		UploadedAt: fromMillis(row.UploadedAt),
	}
}
