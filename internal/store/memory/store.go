// Package memory provides an in-process store.JobStore. It backs unit tests
// and single-process development runs; it is not durable.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/store"
)

// JobStore keeps jobs in a map guarded by a mutex. Reads return clones so
// callers can never mutate stored state.
type JobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore creates an empty store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

// Create implements store.JobStore.
func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return store.ErrJobExists
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get implements store.JobStore.
func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job.Clone(), nil
}

// Select implements store.JobStore.
func (s *JobStore) Select(ctx context.Context, q store.JobQuery) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Job, 0)
	for _, job := range s.jobs {
		if q.Matches(job) {
			out = append(out, job.Clone())
		}
	}
	return store.SortJobs(out, q), nil
}

// Count implements store.JobStore.
func (s *JobStore) Count(ctx context.Context, q store.JobQuery) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if q.Matches(job) {
			n++
		}
	}
	return n, nil
}

// ConditionalUpdate implements store.JobStore.
func (s *JobStore) ConditionalUpdate(
	ctx context.Context,
	id uuid.UUID,
	expected domain.JobStatus,
	patch domain.JobPatch,
) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != expected {
		return 0, nil
	}
	patch.Apply(job)
	return 1, nil
}

// Put stores job as-is, overwriting any existing record. Tests use it to
// seed rows with arbitrary timestamps.
func (s *JobStore) Put(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
}
