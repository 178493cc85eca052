package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/events"
	"github.com/phrazzld/mediaq/internal/store"
)

// ReclaimAction is what a reclaim pass did with one stale candidate.
type ReclaimAction string

// Reclaim actions
const (
	ReclaimRequeued ReclaimAction = "requeued"
	ReclaimSkipped  ReclaimAction = "skipped"
	ReclaimRaced    ReclaimAction = "raced"
	ReclaimFailed   ReclaimAction = "failed"
)

// ReclaimerConfig holds configuration for a Reclaimer.
type ReclaimerConfig struct {
	// RunnerName is written to metadata.stale_requeued_by when a request
	// names no runner.
	RunnerName string
}

// ReclaimRequest describes one reclaim pass. Apply must be set explicitly
// for any row to change; the zero value is a dry run.
type ReclaimRequest struct {
	Filter     domain.Filter
	StaleAfter time.Duration
	Limit      int
	Apply      bool
	Runner     string
}

// ReclaimCandidate is a running job whose updated_at is older than the cutoff.
type ReclaimCandidate struct {
	ID         uuid.UUID        `json:"id"`
	AssetType  domain.AssetType `json:"assetType"`
	ModuleID   string           `json:"moduleId,omitempty"`
	LessonID   string           `json:"lessonId,omitempty"`
	Scope      string           `json:"scope,omitempty"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	AgeMinutes int              `json:"ageMinutes"`
	Action     ReclaimAction    `json:"action,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// ReclaimReport summarizes a reclaim pass. Candidates keep the
// oldest-stuck-first selection order.
type ReclaimReport struct {
	DryRun        bool               `json:"dryRun"`
	Runner        string             `json:"runner"`
	Filters       domain.Filter      `json:"filters"`
	MaxAgeMinutes float64            `json:"maxAgeMinutes"`
	Cutoff        time.Time          `json:"cutoff"`
	Candidates    []ReclaimCandidate `json:"candidates"`
	Requeued      int                `json:"requeued"`
	Skipped       int                `json:"skipped"`
	Raced         int                `json:"raced"`
	Failed        int                `json:"failed"`
}

// HasFailures reports whether any reclaim write errored.
func (r *ReclaimReport) HasFailures() bool {
	return r.Failed > 0
}

// Reclaimer returns abandoned running jobs to the queue.
type Reclaimer struct {
	store   store.JobStore
	emitter events.EventEmitter
	clock   Clock
	config  ReclaimerConfig
	logger  *slog.Logger
}

// NewReclaimer creates a Reclaimer. A nil emitter discards events and a nil
// clock uses SystemClock.
func NewReclaimer(
	jobs store.JobStore,
	emitter events.EventEmitter,
	clock Clock,
	config ReclaimerConfig,
	logger *slog.Logger,
) *Reclaimer {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if config.RunnerName == "" {
		config.RunnerName = "media-reclaimer"
	}
	return &Reclaimer{
		store:   jobs,
		emitter: emitter,
		clock:   clock,
		config:  config,
		logger:  logger.With("component", "reclaimer"),
	}
}

// Reclaim finds running jobs not updated since now - StaleAfter, oldest
// first. In a dry run it only reports them. With Apply set, each candidate
// whose scope has another active job is skipped; the rest are conditionally
// moved back to queued. A candidate that stopped running in the meantime is
// counted as raced and left alone.
func (r *Reclaimer) Reclaim(ctx context.Context, req ReclaimRequest) (*ReclaimReport, error) {
	if req.StaleAfter <= 0 {
		return nil, fmt.Errorf("%w: stale window must be positive", ErrInvalidRequest)
	}
	if req.Limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidRequest, req.Limit)
	}
	if req.Filter.AssetType != "" && !req.Filter.AssetType.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, domain.ErrInvalidAssetType)
	}
	runner := req.Runner
	if runner == "" {
		runner = r.config.RunnerName
	}

	now := r.clock.Now()
	cutoff := now.Add(-req.StaleAfter)
	report := &ReclaimReport{
		DryRun:        !req.Apply,
		Runner:        runner,
		Filters:       req.Filter,
		MaxAgeMinutes: req.StaleAfter.Minutes(),
		Cutoff:        cutoff,
		Candidates:    []ReclaimCandidate{},
	}
	log := r.logger.With("runner", runner, "dry_run", report.DryRun, "cutoff", cutoff)

	stale, err := r.store.Select(ctx, store.JobQuery{
		Filter:        req.Filter,
		Statuses:      []domain.JobStatus{domain.JobStatusRunning},
		UpdatedBefore: &cutoff,
		OrderBy:       store.OrderByUpdatedAt,
		Limit:         req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select stale jobs: %w", err)
	}
	for _, job := range stale {
		c := ReclaimCandidate{
			ID:         job.ID,
			AssetType:  job.AssetType,
			ModuleID:   job.ModuleID,
			LessonID:   job.LessonID,
			UpdatedAt:  job.UpdatedAt,
			AgeMinutes: ageMinutes(now.Sub(job.UpdatedAt)),
		}
		if key, ok := job.ScopeKey(); ok {
			c.Scope = key.String()
		}
		report.Candidates = append(report.Candidates, c)
	}

	if len(stale) == 0 {
		log.Info("no stale running jobs matched")
		return report, nil
	}
	if !req.Apply {
		log.Info("dry run, no jobs changed", "candidates", len(stale))
		return report, nil
	}

	active, err := r.store.Select(ctx, store.JobQuery{
		Filter:   req.Filter,
		Statuses: domain.ActiveStatuses(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select active jobs: %w", err)
	}
	activeByScope := make(map[domain.ScopeKey]int, len(active))
	for _, job := range active {
		if key, ok := job.ScopeKey(); ok {
			activeByScope[key]++
		}
	}

	reason := "running job exceeded " +
		strconv.FormatFloat(report.MaxAgeMinutes, 'f', -1, 64) +
		" minutes without update"

	for i, job := range stale {
		c := &report.Candidates[i]
		jlog := log.With("job_id", job.ID, "scope", c.Scope)

		// The candidate counts itself, so more than one means another
		// active job already covers this target.
		if key, ok := job.ScopeKey(); ok && activeByScope[key] > 1 {
			jlog.Info("skipping stale job, scope has another active job",
				"active_in_scope", activeByScope[key])
			c.Action = ReclaimSkipped
			report.Skipped++
			continue
		}

		patch := domain.JobPatch{
			Status: domain.JobStatusQueued,
			Error: domain.StringPtr(fmt.Sprintf(
				"Automatically re-queued after %d minutes in running state without updates.", c.AgeMinutes)),
			Metadata: job.Metadata.With(map[string]any{
				domain.MetaStaleRequeueCount:  job.Metadata.Int(domain.MetaStaleRequeueCount) + 1,
				domain.MetaStaleRequeuedAt:    isoTime(now),
				domain.MetaStaleRequeuedBy:    runner,
				domain.MetaStaleRequeueReason: reason,
				domain.MetaStaleAgeMinutes:    c.AgeMinutes,
			}),
			UpdatedAt: now,
		}
		n, err := r.store.ConditionalUpdate(ctx, job.ID, domain.JobStatusRunning, patch)
		switch {
		case err != nil:
			jlog.Error("failed to requeue stale job", "error", err)
			c.Action = ReclaimFailed
			c.Error = err.Error()
			report.Failed++
		case n == 0:
			jlog.Info("stale job changed before requeue, leaving it")
			c.Action = ReclaimRaced
			report.Raced++
		default:
			jlog.Info("requeued stale job", "age_minutes", c.AgeMinutes)
			c.Action = ReclaimRequeued
			report.Requeued++
			after := job.Clone()
			patch.Apply(after)
			if err := r.emitter.EmitEvent(ctx, events.NewJobEvent(events.TypeJobRequeued, after, runner, now)); err != nil {
				jlog.Warn("failed to emit job event", "event_type", events.TypeJobRequeued, "error", err)
			}
		}
	}

	log.Info("reclaim finished",
		"candidates", len(stale),
		"requeued", report.Requeued,
		"skipped", report.Skipped,
		"raced", report.Raced,
		"failed", report.Failed)

	return report, nil
}

// ageMinutes rounds d to whole minutes, never reporting less than one.
func ageMinutes(d time.Duration) int {
	m := int(math.Round(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}
