package repository

import (
	"context"
	"sort"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/G-Research/loganalyzer/internal/common/apperrors"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
)

const (
	memJobsTable      = "jobs"
	memLogsTable      = "logs"
	memEventsTable    = "events"
	memSummariesTable = "summaries"

	idIndex    = "id"    // primary key
	logIdIndex = "logId" // all records of one log
	ownerIndex = "owner" // log files of one owner
)

type summaryEntry struct {
	LogId   string
	Summary *model.Summary
}

// MemoryDb holds every in-memory store in one go-memdb database. Records are treated as immutable once inserted.
type MemoryDb struct {
	db *memdb.MemDB
}

func NewMemoryDb() (*MemoryDb, error) {
	db, err := memdb.NewMemDB(memorySchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &MemoryDb{db: db}, nil
}

func memorySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			memJobsTable: {
				Name: memJobsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex:    {Name: idIndex, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Id"}},
					logIdIndex: {Name: logIdIndex, Indexer: &memdb.StringFieldIndex{Field: "LogId"}},
				},
			},
			memLogsTable: {
				Name: memLogsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex:    {Name: idIndex, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Id"}},
					ownerIndex: {Name: ownerIndex, AllowMissing: true, Indexer: &memdb.StringFieldIndex{Field: "Owner"}},
				},
			},
			memEventsTable: {
				Name: memEventsTable,
				Indexes: map[string]*memdb.IndexSchema{
					// ordered by log, then lexically by timestamp
					idIndex: {
						Name:   idIndex,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "LogId"},
								&memdb.StringFieldIndex{Field: "Timestamp"},
							},
						},
					},
					logIdIndex: {Name: logIdIndex, Indexer: &memdb.StringFieldIndex{Field: "LogId"}},
				},
			},
			memSummariesTable: {
				Name: memSummariesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {Name: idIndex, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "LogId"}},
				},
			},
		},
	}
}

func (m *MemoryDb) first(table string, id string) (interface{}, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()
	obj, err := txn.First(table, idIndex, id)
	return obj, errors.WithStack(err)
}

func (m *MemoryDb) deleteAll(table string, index string, id string) error {
	txn := m.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(table, index, id); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

type MemoryJobRepository struct {
	db    *MemoryDb
	clock clock.PassiveClock
	newId func() string
}

func NewMemoryJobRepository(db *MemoryDb, clock clock.PassiveClock, newId func() string) *MemoryJobRepository {
	return &MemoryJobRepository{db: db, clock: clock, newId: newId}
}

func (r *MemoryJobRepository) Create(_ context.Context, logId string) (*model.Job, error) {
	job := model.NewJob(r.newId(), logId, r.clock.Now().UTC())
	txn := r.db.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(memJobsTable, job); err != nil {
		return nil, errors.WithStack(err)
	}
	txn.Commit()
	return job.DeepCopy(), nil
}

func (r *MemoryJobRepository) Get(_ context.Context, jobId string) (*model.Job, error) {
	obj, err := r.db.first(memJobsTable, jobId)
	if err != nil || obj == nil {
		return nil, err
	}
	return obj.(*model.Job).DeepCopy(), nil
}

func (r *MemoryJobRepository) Transition(_ context.Context, jobId string, next model.JobState, message string) (*model.Job, error) {
	txn := r.db.db.Txn(true)
	defer txn.Abort()
	obj, err := txn.First(memJobsTable, idIndex, jobId)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, apperrors.New(apperrors.KindJobNotFound, jobId)
	}
	updated, err := obj.(*model.Job).Transition(next, r.clock.Now().UTC(), message)
	if err != nil {
		return nil, err
	}
	if err := txn.Insert(memJobsTable, updated); err != nil {
		return nil, errors.WithStack(err)
	}
	txn.Commit()
	return updated.DeepCopy(), nil
}

func (r *MemoryJobRepository) ListByLog(_ context.Context, logId string, limit int) ([]*model.Job, error) {
	txn := r.db.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(memJobsTable, logIdIndex, logId)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	jobs := make([]*model.Job, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		jobs = append(jobs, obj.(*model.Job).DeepCopy())
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].Id > jobs[j].Id
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

type MemoryLogRepository struct {
	db *MemoryDb
}

func NewMemoryLogRepository(db *MemoryDb) *MemoryLogRepository {
	return &MemoryLogRepository{db: db}
}

func (r *MemoryLogRepository) Register(_ context.Context, log *model.LogFile) error {
	txn := r.db.db.Txn(true)
	defer txn.Abort()
	existing, err := txn.First(memLogsTable, idIndex, log.Id)
	if err != nil {
		return errors.WithStack(err)
	}
	if existing != nil {
		return errors.WithStack(&apperrors.ErrAlreadyExists{Type: "log", Value: log.Id})
	}
	stored := *log
	if err := txn.Insert(memLogsTable, &stored); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

func (r *MemoryLogRepository) Get(_ context.Context, logId string) (*model.LogFile, error) {
	obj, err := r.db.first(memLogsTable, logId)
	if err != nil || obj == nil {
		return nil, err
	}
	copied := *obj.(*model.LogFile)
	return &copied, nil
}

func (r *MemoryLogRepository) List(_ context.Context, owner string, limit int) ([]*model.LogFile, error) {
	txn := r.db.db.Txn(false)
	defer txn.Abort()
	var it memdb.ResultIterator
	var err error
	if owner != "" {
		it, err = txn.Get(memLogsTable, ownerIndex, owner)
	} else {
		it, err = txn.Get(memLogsTable, idIndex)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	logs := make([]*model.LogFile, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		copied := *obj.(*model.LogFile)
		logs = append(logs, &copied)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].UploadedAt.Equal(logs[j].UploadedAt) {
			return logs[i].Id > logs[j].Id
		}
		return logs[i].UploadedAt.After(logs[j].UploadedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (r *MemoryLogRepository) Delete(_ context.Context, logId string) error {
	return r.db.deleteAll(memLogsTable, idIndex, logId)
}

type MemoryEventRepository struct {
	db *MemoryDb
}

func NewMemoryEventRepository(db *MemoryDb) *MemoryEventRepository {
	return &MemoryEventRepository{db: db}
}

func (r *MemoryEventRepository) InsertBatch(_ context.Context, job *model.Job, events []*model.Event) error {
	txn := r.db.db.Txn(true)
	defer txn.Abort()
	for _, e := range events {
		stored := *e
		stored.LogId = job.LogId
		if err := txn.Insert(memEventsTable, &stored); err != nil {
			return errors.WithStack(err)
		}
	}
	txn.Commit()
	return nil
}

func (r *MemoryEventRepository) QueryRange(_ context.Context, logId string, query RangeQuery) (*RangePage, error) {
	txn := r.db.db.Txn(false)
	defer txn.Abort()

	// Non-unique index entries sort by primary key, so the scan is ordered by timestamp.
	it, err := txn.Get(memEventsTable, logIdIndex, logId)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// descending pages walk the matches backwards
	events := make([]*model.Event, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		e := obj.(*model.Event)
		if !query.admits(e.Timestamp) {
			continue
		}
		copied := *e
		events = append(events, &copied)
		if !query.Descending && query.Count > 0 && len(events) == query.Count {
			break
		}
	}
	if query.Descending {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
		if query.Count > 0 && len(events) > query.Count {
			events = events[:query.Count]
		}
	}
	return &RangePage{Events: events, Cursor: nextCursor(events, query.Count)}, nil
}

// admits reports whether ts lies within the bounds of the query and strictly after its cursor.
func (q RangeQuery) admits(ts string) bool {
	if q.From != "" && ts < q.From {
		return false
	}
	if q.To != "" && ts > q.To {
		return false
	}
	if q.Cursor != "" {
		if q.Descending {
			return ts < q.Cursor
		}
		return ts > q.Cursor
	}
	return true
}

func (r *MemoryEventRepository) DeleteLog(_ context.Context, logId string) error {
	return r.db.deleteAll(memEventsTable, logIdIndex, logId)
}

type MemorySummaryRepository struct {
	db *MemoryDb
}

func NewMemorySummaryRepository(db *MemoryDb) *MemorySummaryRepository {
	return &MemorySummaryRepository{db: db}
}

func (r *MemorySummaryRepository) Put(_ context.Context, logId string, summary *model.Summary) error {
	txn := r.db.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(memSummariesTable, &summaryEntry{LogId: logId, Summary: summary}); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

func (r *MemorySummaryRepository) Get(_ context.Context, logId string) (*model.Summary, error) {
	obj, err := r.db.first(memSummariesTable, logId)
	if err != nil || obj == nil {
		return nil, err
	}
	return obj.(*summaryEntry).Summary, nil
}

func (r *MemorySummaryRepository) Delete(_ context.Context, logId string) error {
	return r.db.deleteAll(memSummariesTable, idIndex, logId)
}
