package api

import (
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/queue"
)

// Admin trigger bounds
const (
	DefaultBatchSize = 10
	MaxBatchSize     = 50
)

// RunJobsRequest is the body of the on-demand dispatch trigger. Every field
// is optional.
type RunJobsRequest struct {
	BatchSize *int   `json:"batchSize"`
	ModuleID  string `json:"moduleId"`
	LessonID  string `json:"lessonId"`
	AssetType string `json:"assetType" validate:"omitempty,oneof=video animation image"`
}

// ReclaimJobsRequest is the body of the on-demand reclaim trigger. Apply
// defaults to false, so a bare request only previews candidates.
type ReclaimJobsRequest struct {
	Apply         bool   `json:"apply"`
	MaxAgeMinutes *int   `json:"maxAgeMinutes"`
	Limit         *int   `json:"limit"`
	ModuleID      string `json:"moduleId"`
	LessonID      string `json:"lessonId"`
	AssetType     string `json:"assetType" validate:"omitempty,oneof=video animation image all"`
}

// FiltersResponse echoes the filters a run used; unset filters render as null.
type FiltersResponse struct {
	ModuleID  *string `json:"moduleId"`
	LessonID  *string `json:"lessonId"`
	AssetType *string `json:"assetType"`
}

func newFiltersResponse(f domain.Filter) FiltersResponse {
	nullable := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	return FiltersResponse{
		ModuleID:  nullable(f.ModuleID),
		LessonID:  nullable(f.LessonID),
		AssetType: nullable(string(f.AssetType)),
	}
}

// EmptyRunResponse is returned when no queued job matched the filters.
type EmptyRunResponse struct {
	Processed int             `json:"processed"`
	Message   string          `json:"message"`
	Filters   FiltersResponse `json:"filters"`
}

// RunJobsResponse summarizes an on-demand dispatch.
type RunJobsResponse struct {
	RunID     string             `json:"runId"`
	Processed int                `json:"processed"`
	Completed int                `json:"completed"`
	Failed    int                `json:"failed"`
	Skipped   int                `json:"skipped"`
	Filters   FiltersResponse    `json:"filters"`
	Results   []queue.JobOutcome `json:"results"`
}

// JobResponse is the public view of a job record.
type JobResponse struct {
	ID          string          `json:"id"`
	AssetType   string          `json:"assetType"`
	ModuleID    *string         `json:"moduleId"`
	LessonID    *string         `json:"lessonId"`
	Provider    string          `json:"provider,omitempty"`
	Status      string          `json:"status"`
	OutputURL   string          `json:"outputUrl,omitempty"`
	Error       string          `json:"error,omitempty"`
	Metadata    domain.Metadata `json:"metadata"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
	CompletedAt *string         `json:"completedAt"`
}
