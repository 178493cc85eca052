package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AssetType identifies the kind of media a job produces.
type AssetType string

// Supported asset types
const (
	AssetTypeVideo     AssetType = "video"
	AssetTypeAnimation AssetType = "animation"
	AssetTypeImage     AssetType = "image"
)

// Valid reports whether a is one of the supported asset types.
func (a AssetType) Valid() bool {
	switch a {
	case AssetTypeVideo, AssetTypeAnimation, AssetTypeImage:
		return true
	}
	return false
}

// ParseAssetType normalizes s into an AssetType. An empty string yields the
// empty AssetType, which filters treat as "any".
func ParseAssetType(s string) (AssetType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	a := AssetType(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q (use video|animation|image)", ErrInvalidAssetType, s)
	}
	return a, nil
}

// JobStatus represents the lifecycle state of a media generation job
type JobStatus string

// Possible job status values
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Active reports whether a job in this status is still waiting for or
// undergoing work.
func (s JobStatus) Active() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// ActiveStatuses lists the statuses counted as in-flight work.
func ActiveStatuses() []JobStatus {
	return []JobStatus{JobStatusQueued, JobStatusRunning}
}

// Job is one requested media asset and the single source of truth for its
// state. ModuleID and LessonID are empty for free-form targets.
type Job struct {
	ID          uuid.UUID
	AssetType   AssetType
	ModuleID    string
	LessonID    string
	Provider    string
	Status      JobStatus
	OutputURL   string
	Error       string
	Metadata    Metadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NewJob creates a queued job for the given target.
func NewJob(assetType AssetType, moduleID, lessonID, provider string, now time.Time) (*Job, error) {
	if !assetType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAssetType, assetType)
	}
	now = now.UTC()
	return &Job{
		ID:        uuid.New(),
		AssetType: assetType,
		ModuleID:  strings.TrimSpace(moduleID),
		LessonID:  strings.TrimSpace(lessonID),
		Provider:  strings.TrimSpace(provider),
		Status:    JobStatusQueued,
		Metadata:  Metadata{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Validate checks the invariants a stored job must satisfy.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return fmt.Errorf("%w: job id is required", ErrInvalidJob)
	}
	if !j.AssetType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAssetType, j.AssetType)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, j.Status)
	}
	if j.Status == JobStatusCompleted && j.OutputURL == "" {
		return fmt.Errorf("%w: completed job has no output url", ErrInvalidJob)
	}
	return nil
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Metadata = j.Metadata.Clone()
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ScopeKey groups jobs that target the same logical output.
type ScopeKey struct {
	ModuleID  string
	LessonID  string
	AssetType AssetType
}

// String renders the key as module::lesson::asset.
func (k ScopeKey) String() string {
	return k.ModuleID + "::" + k.LessonID + "::" + string(k.AssetType)
}

// ScopeKey returns the job's scope. The second result is false when any part
// is missing; such free-form jobs are never grouped.
func (j *Job) ScopeKey() (ScopeKey, bool) {
	if j.ModuleID == "" || j.LessonID == "" || j.AssetType == "" {
		return ScopeKey{}, false
	}
	return ScopeKey{ModuleID: j.ModuleID, LessonID: j.LessonID, AssetType: j.AssetType}, true
}

// Filter narrows a job selection. Empty fields match anything.
type Filter struct {
	ModuleID  string    `json:"moduleId,omitempty"`
	LessonID  string    `json:"lessonId,omitempty"`
	AssetType AssetType `json:"assetType,omitempty"`
}

// Matches reports whether j satisfies every non-empty field of f.
func (f Filter) Matches(j *Job) bool {
	if f.ModuleID != "" && j.ModuleID != f.ModuleID {
		return false
	}
	if f.LessonID != "" && j.LessonID != f.LessonID {
		return false
	}
	if f.AssetType != "" && j.AssetType != f.AssetType {
		return false
	}
	return true
}

// JobPatch describes a state-changing write. Nil pointer fields are left
// untouched; a pointer to the zero value clears the column. UpdatedAt is
// always written because it is the liveness signal for staleness detection.
type JobPatch struct {
	Status      JobStatus
	OutputURL   *string
	Error       *string
	CompletedAt *time.Time
	Metadata    Metadata
	UpdatedAt   time.Time
}

// Apply writes the patch onto j.
func (p JobPatch) Apply(j *Job) {
	j.Status = p.Status
	if p.OutputURL != nil {
		j.OutputURL = *p.OutputURL
	}
	if p.Error != nil {
		j.Error = *p.Error
	}
	if p.CompletedAt != nil {
		t := p.CompletedAt.UTC()
		j.CompletedAt = &t
	}
	if p.Metadata != nil {
		j.Metadata = p.Metadata.Clone()
	}
	j.UpdatedAt = p.UpdatedAt.UTC()
}

// StringPtr is a convenience for building patches.
func StringPtr(s string) *string {
	return &s
}

// TimePtr is a convenience for building patches.
func TimePtr(t time.Time) *time.Time {
	return &t
}
