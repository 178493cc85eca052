package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/store"
	"github.com/timshannon/badgerhold/v4"
)

// maxConflictRetries bounds how often a conditional update is retried after
// badger reports a transaction conflict.
const maxConflictRetries = 5

// jobRecord is the persisted form of a job. Metadata is kept as JSON because
// the default gob encoding cannot carry arbitrary interface values.
type jobRecord struct {
	ID          string `badgerhold:"key"`
	AssetType   string
	ModuleID    string
	LessonID    string
	Provider    string
	Status      string `badgerhold:"index"`
	OutputURL   string
	Error       string
	Metadata    []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func toRecord(j *domain.Job) (jobRecord, error) {
	meta, err := domain.MarshalMetadata(j.Metadata)
	if err != nil {
		return jobRecord{}, fmt.Errorf("failed to encode job metadata: %w", err)
	}
	rec := jobRecord{
		ID:        j.ID.String(),
		AssetType: string(j.AssetType),
		ModuleID:  j.ModuleID,
		LessonID:  j.LessonID,
		Provider:  j.Provider,
		Status:    string(j.Status),
		OutputURL: j.OutputURL,
		Error:     j.Error,
		Metadata:  meta,
		CreatedAt: j.CreatedAt.UTC(),
		UpdatedAt: j.UpdatedAt.UTC(),
	}
	if j.CompletedAt != nil {
		t := j.CompletedAt.UTC()
		rec.CompletedAt = &t
	}
	return rec, nil
}

func (r jobRecord) toJob() (*domain.Job, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid job key %q: %w", r.ID, err)
	}
	meta, err := domain.UnmarshalMetadata(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata for job %s: %w", r.ID, err)
	}
	return &domain.Job{
		ID:          id,
		AssetType:   domain.AssetType(r.AssetType),
		ModuleID:    r.ModuleID,
		LessonID:    r.LessonID,
		Provider:    r.Provider,
		Status:      domain.JobStatus(r.Status),
		OutputURL:   r.OutputURL,
		Error:       r.Error,
		Metadata:    meta,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		CompletedAt: r.CompletedAt,
	}, nil
}

// JobStore implements store.JobStore on badgerhold.
type JobStore struct {
	db *BadgerDB
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore creates a job store over db.
func NewJobStore(db *BadgerDB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a new job.
func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	rec, err := toRecord(job)
	if err != nil {
		return err
	}
	if err := s.db.Store().Insert(rec.ID, rec); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return store.ErrJobExists
		}
		return store.NewStoreError(store.EntityJob, store.OpCreate, "insert failed", err)
	}
	return nil
}

// Get loads a job by id.
func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	var rec jobRecord
	if err := s.db.Store().Get(id.String(), &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, store.ErrJobNotFound
		}
		return nil, store.NewStoreError(store.EntityJob, store.OpGet, "read failed", err)
	}
	return rec.toJob()
}

// Select lists jobs matching q. The status predicate uses the index; the
// remaining predicates and the ordering are applied in memory.
func (s *JobStore) Select(ctx context.Context, q store.JobQuery) ([]*domain.Job, error) {
	jobs, err := s.find(ctx, q)
	if err != nil {
		return nil, err
	}
	return store.SortJobs(jobs, q), nil
}

// Count returns the number of jobs matching q.
func (s *JobStore) Count(ctx context.Context, q store.JobQuery) (int, error) {
	jobs, err := s.find(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(jobs), nil
}

func (s *JobStore) find(ctx context.Context, q store.JobQuery) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var query *badgerhold.Query
	if len(q.Statuses) > 0 {
		statuses := make([]interface{}, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		query = badgerhold.Where("Status").In(statuses...).Index("Status")
	}

	var records []jobRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, store.NewStoreError(store.EntityJob, store.OpSelect, "find failed", err)
	}

	jobs := make([]*domain.Job, 0, len(records))
	for _, rec := range records {
		job, err := rec.toJob()
		if err != nil {
			return nil, err
		}
		if q.Matches(job) {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// ConditionalUpdate reads, checks and writes the record inside one badger
// transaction. Badger's optimistic concurrency aborts the commit when another
// transaction wrote the key first; the attempt is then retried and will
// observe the new status.
func (s *JobStore) ConditionalUpdate(
	ctx context.Context,
	id uuid.UUID,
	expected domain.JobStatus,
	patch domain.JobPatch,
) (int64, error) {
	key := id.String()
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var affected int64
		err := s.db.Store().Badger().Update(func(tx *dgbadger.Txn) error {
			var rec jobRecord
			if err := s.db.Store().TxGet(tx, key, &rec); err != nil {
				if errors.Is(err, badgerhold.ErrNotFound) {
					return nil
				}
				return err
			}
			if rec.Status != string(expected) {
				return nil
			}

			job, err := rec.toJob()
			if err != nil {
				return err
			}
			patch.Apply(job)
			next, err := toRecord(job)
			if err != nil {
				return err
			}
			if err := s.db.Store().TxUpdate(tx, key, next); err != nil {
				return err
			}
			affected = 1
			return nil
		})

		if errors.Is(err, dgbadger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return 0, store.NewStoreError(store.EntityJob, store.OpConditionalUpdate,
				"expected status "+string(expected), fmt.Errorf("%w: %w", store.ErrUpdateFailed, err))
		}
		return affected, nil
	}
}
