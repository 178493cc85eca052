package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/domain"
)

// OrderBy selects the timestamp a job listing is sorted on. Listings are
// always ascending with the job id as a tie-break.
type OrderBy string

// Supported orderings
const (
	OrderByCreatedAt OrderBy = "created_at"
	OrderByUpdatedAt OrderBy = "updated_at"
)

// JobQuery describes a selection over the job table.
type JobQuery struct {
	// Filter restricts module, lesson and asset type.
	Filter domain.Filter

	// Statuses restricts the selection to these states. Empty means any.
	Statuses []domain.JobStatus

	// UpdatedBefore keeps rows with updated_at strictly before this instant.
	UpdatedBefore *time.Time

	// UpdatedSince keeps rows with updated_at at or after this instant.
	UpdatedSince *time.Time

	// CreatedBefore keeps rows with created_at strictly before this instant.
	CreatedBefore *time.Time

	// OrderBy defaults to OrderByCreatedAt.
	OrderBy OrderBy

	// Limit caps the number of rows. Zero means unbounded.
	Limit int
}

// Normalized returns a copy of q with defaults applied.
func (q JobQuery) Normalized() JobQuery {
	if q.OrderBy != OrderByUpdatedAt {
		q.OrderBy = OrderByCreatedAt
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	return q
}

// Matches evaluates q against a single job. Stores that cannot push the
// predicate down to an index use it to filter in memory.
func (q JobQuery) Matches(j *domain.Job) bool {
	if !q.Filter.Matches(j) {
		return false
	}
	if len(q.Statuses) > 0 {
		found := false
		for _, s := range q.Statuses {
			if j.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.UpdatedBefore != nil && !j.UpdatedAt.Before(*q.UpdatedBefore) {
		return false
	}
	if q.UpdatedSince != nil && j.UpdatedAt.Before(*q.UpdatedSince) {
		return false
	}
	if q.CreatedBefore != nil && !j.CreatedAt.Before(*q.CreatedBefore) {
		return false
	}
	return true
}

// SortJobs orders jobs in place using the ordering of q, then truncates to
// the query limit.
func SortJobs(jobs []*domain.Job, q JobQuery) []*domain.Job {
	q = q.Normalized()
	key := func(j *domain.Job) time.Time {
		if q.OrderBy == OrderByUpdatedAt {
			return j.UpdatedAt
		}
		return j.CreatedAt
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		ka, kb := key(jobs[a]), key(jobs[b])
		if !ka.Equal(kb) {
			return ka.Before(kb)
		}
		return jobs[a].ID.String() < jobs[b].ID.String()
	})
	if q.Limit > 0 && len(jobs) > q.Limit {
		jobs = jobs[:q.Limit]
	}
	return jobs
}

// JobStore is the queue's view of the job table.
//
// Every mutation of an existing row goes through ConditionalUpdate, which
// applies the patch only when the row still has the expected status and
// reports the number of rows affected. Zero affected rows means another
// worker won the race; it is not an error.
type JobStore interface {
	// Create inserts a new job record.
	Create(ctx context.Context, job *domain.Job) error

	// Get loads a single job by id, returning ErrJobNotFound if absent.
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// Select lists jobs matching q.
	Select(ctx context.Context, q JobQuery) ([]*domain.Job, error)

	// Count returns the number of jobs matching q, ignoring its limit.
	Count(ctx context.Context, q JobQuery) (int, error)

	// ConditionalUpdate applies patch to the job only if its current status is
	// expected, returning the number of rows changed (0 or 1).
	ConditionalUpdate(ctx context.Context, id uuid.UUID, expected domain.JobStatus, patch domain.JobPatch) (int64, error)
}
