package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/platform/logger"
	"github.com/phrazzld/mediaq/internal/store"
)

const jobColumns = `id, asset_type, module_id, lesson_id, provider, status, output_url, error,
	metadata, created_at, updated_at, completed_at`

// PostgresJobStore implements store.JobStore on the media_generation_jobs table.
type PostgresJobStore struct {
	db store.DBTX
}

var _ store.JobStore = (*PostgresJobStore)(nil)

// NewPostgresJobStore creates a job store over db, which may be a *sql.DB or
// a *sql.Tx.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// Create inserts a new job.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	meta, err := domain.MarshalMetadata(job.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode job metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO media_generation_jobs (`+jobColumns+`)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''),
			$9::jsonb, $10, $11, $12)`,
		job.ID,
		string(job.AssetType),
		job.ModuleID,
		job.LessonID,
		job.Provider,
		string(job.Status),
		job.OutputURL,
		job.Error,
		string(meta),
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
		nullTime(job.CompletedAt),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to insert job", "job_id", job.ID, "error", err)
		return store.NewStoreError(store.EntityJob, store.OpCreate, "insert failed", MapError(err))
	}
	return nil
}

// Get loads a job by id.
func (s *PostgresJobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM media_generation_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, store.NewStoreError(store.EntityJob, store.OpGet, "query failed", MapError(err))
	}
	return job, nil
}

// Select lists jobs matching q.
func (s *PostgresJobStore) Select(ctx context.Context, q store.JobQuery) ([]*domain.Job, error) {
	q = q.Normalized()
	where, args := buildWhere(q)

	var sb strings.Builder
	sb.WriteString(`SELECT ` + jobColumns + ` FROM media_generation_jobs`)
	sb.WriteString(where)
	sb.WriteString(` ORDER BY ` + string(q.OrderBy) + ` ASC, id ASC`)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, store.NewStoreError(store.EntityJob, store.OpSelect, "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, store.NewStoreError(store.EntityJob, store.OpSelect, "scan failed", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError(store.EntityJob, store.OpSelect, "row iteration failed", MapError(err))
	}
	return jobs, nil
}

// Count returns the number of jobs matching q.
func (s *PostgresJobStore) Count(ctx context.Context, q store.JobQuery) (int, error) {
	where, args := buildWhere(q.Normalized())
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_generation_jobs`+where, args...).Scan(&n)
	if err != nil {
		return 0, store.NewStoreError(store.EntityJob, store.OpCount, "query failed", MapError(err))
	}
	return n, nil
}

// ConditionalUpdate applies patch only while the row still has the expected
// status. The row lock taken by UPDATE makes concurrent attempts serialize,
// and only the first one sees the expected status.
func (s *PostgresJobStore) ConditionalUpdate(
	ctx context.Context,
	id uuid.UUID,
	expected domain.JobStatus,
	patch domain.JobPatch,
) (int64, error) {
	var meta any
	if patch.Metadata != nil {
		b, err := domain.MarshalMetadata(patch.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to encode job metadata: %w", err)
		}
		meta = string(b)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE media_generation_jobs
		SET status = $3,
			output_url = CASE WHEN $4::text IS NULL THEN output_url ELSE NULLIF($4::text, '') END,
			error = CASE WHEN $5::text IS NULL THEN error ELSE NULLIF($5::text, '') END,
			completed_at = COALESCE($6::timestamptz, completed_at),
			metadata = COALESCE($7::jsonb, metadata),
			updated_at = $8
		WHERE id = $1 AND status = $2`,
		id,
		string(expected),
		string(patch.Status),
		nullString(patch.OutputURL),
		nullString(patch.Error),
		nullTime(patch.CompletedAt),
		meta,
		patch.UpdatedAt.UTC(),
	)
	if err != nil {
		logger.FromContext(ctx).Error("conditional update failed",
			"job_id", id,
			"expected_status", expected,
			"target_status", patch.Status,
			"error", err)
		return 0, store.NewStoreError(store.EntityJob, store.OpConditionalUpdate,
			"expected status "+string(expected), fmt.Errorf("%w: %w", store.ErrUpdateFailed, MapError(err)))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError(store.EntityJob, store.OpConditionalUpdate, "rows affected unavailable", err)
	}
	return affected, nil
}

func buildWhere(q store.JobQuery) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.Filter.ModuleID != "" {
		add("module_id = $%d", q.Filter.ModuleID)
	}
	if q.Filter.LessonID != "" {
		add("lesson_id = $%d", q.Filter.LessonID)
	}
	if q.Filter.AssetType != "" {
		add("asset_type = $%d", string(q.Filter.AssetType))
	}
	if len(q.Statuses) > 0 {
		placeholders := make([]string, 0, len(q.Statuses))
		for _, st := range q.Statuses {
			args = append(args, string(st))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if q.UpdatedBefore != nil {
		add("updated_at < $%d", q.UpdatedBefore.UTC())
	}
	if q.UpdatedSince != nil {
		add("updated_at >= $%d", q.UpdatedSince.UTC())
	}
	if q.CreatedBefore != nil {
		add("created_at < $%d", q.CreatedBefore.UTC())
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job         domain.Job
		assetType   string
		status      string
		moduleID    sql.NullString
		lessonID    sql.NullString
		provider    sql.NullString
		outputURL   sql.NullString
		errText     sql.NullString
		meta        []byte
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&job.ID,
		&assetType,
		&moduleID,
		&lessonID,
		&provider,
		&status,
		&outputURL,
		&errText,
		&meta,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	m, err := domain.UnmarshalMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata for job %s: %w", job.ID, err)
	}

	job.AssetType = domain.AssetType(assetType)
	job.Status = domain.JobStatus(status)
	job.ModuleID = moduleID.String
	job.LessonID = lessonID.String
	job.Provider = provider.String
	job.OutputURL = outputURL.String
	job.Error = errText.String
	job.Metadata = m
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	return &job, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
