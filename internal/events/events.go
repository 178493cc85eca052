package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/domain"
)

// Job lifecycle event types
const (
	TypeJobCompleted = "media_job.completed"
	TypeJobFailed    = "media_job.failed"
	TypeJobRequeued  = "media_job.requeued"
)

// JobEvent announces a terminal or recovery transition of a media job. It is
// a notification only; the job record remains the source of truth.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the TypeJob* constants
	Type string `json:"type"`

	JobID     uuid.UUID        `json:"job_id"`
	AssetType domain.AssetType `json:"asset_type"`
	ModuleID  string           `json:"module_id,omitempty"`
	LessonID  string           `json:"lesson_id,omitempty"`
	Status    domain.JobStatus `json:"status"`
	OutputURL string           `json:"output_url,omitempty"`
	Error     string           `json:"error,omitempty"`
	Runner    string           `json:"runner,omitempty"`

	// OccurredAt is the time the transition was written
	OccurredAt time.Time `json:"occurred_at"`
}

// NewJobEvent builds an event of eventType for job as it stood after the
// transition.
func NewJobEvent(eventType string, job *domain.Job, runner string, at time.Time) *JobEvent {
	return &JobEvent{
		ID:         uuid.New(),
		Type:       eventType,
		JobID:      job.ID,
		AssetType:  job.AssetType,
		ModuleID:   job.ModuleID,
		LessonID:   job.LessonID,
		Status:     job.Status,
		OutputURL:  job.OutputURL,
		Error:      job.Error,
		Runner:     runner,
		OccurredAt: at.UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the queue to publish transitions without knowing the sinks.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *JobEvent) error
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *JobEvent) error { return nil }
