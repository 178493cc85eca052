package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/events"
	"github.com/phrazzld/mediaq/internal/producer"
	"github.com/phrazzld/mediaq/internal/store"
)

// ErrInvalidRequest is returned when a batch or reclaim request is malformed.
var ErrInvalidRequest = errors.New("invalid queue request")

// OutcomeStatus is the per-job result of a dispatch.
type OutcomeStatus string

// Outcome statuses
const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// Reasons attached to skipped and failed outcomes
const (
	ReasonAlreadyClaimed   = "already_claimed"
	ReasonSuperseded       = "superseded"
	ReasonCancelled        = "cancelled"
	ReasonClaimFailed      = "claim_failed"
	ReasonProducerFailed   = "producer_failed"
	ReasonCompletionFailed = "completion_write_failed"
	ReasonFinalizeFailed   = "finalize_failed"
)

// DispatcherConfig holds configuration for a Dispatcher.
type DispatcherConfig struct {
	// Concurrency is the number of jobs processed at once within a batch.
	// Values below 1 mean sequential processing.
	Concurrency int

	// RunnerName identifies scheduled and CLI runs in job metadata.
	RunnerName string
}

// Runner identifies who is executing a batch.
type Runner struct {
	// Name is written to metadata.runner. Empty uses the configured name.
	Name string

	// ProcessedBy records the admin user behind an on-demand run.
	ProcessedBy string
}

// BatchRequest selects the jobs a single dispatch pass works on.
type BatchRequest struct {
	Filter domain.Filter
	Limit  int
	Runner Runner
}

// JobOutcome is what happened to one selected job.
type JobOutcome struct {
	ID        uuid.UUID     `json:"id"`
	Status    OutcomeStatus `json:"status"`
	OutputURL string        `json:"outputUrl,omitempty"`
	Error     string        `json:"error,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// BatchSummary reports a dispatch pass. Results follow selection order.
type BatchSummary struct {
	RunID         uuid.UUID     `json:"runId"`
	Runner        string        `json:"runner"`
	Filters       domain.Filter `json:"filters"`
	Processed     int           `json:"processed"`
	Completed     int           `json:"completed"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	WriteFailures int           `json:"writeFailures"`
	Results       []JobOutcome  `json:"results"`
}

// HasFailures reports whether any selected job ended failed.
func (s *BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// FailedResults returns the failed outcomes, at most max of them when max
// is positive.
func (s *BatchSummary) FailedResults(max int) []JobOutcome {
	var out []JobOutcome
	for _, r := range s.Results {
		if r.Status != OutcomeFailed {
			continue
		}
		if max > 0 && len(out) == max {
			break
		}
		out = append(out, r)
	}
	return out
}

// Dispatcher claims queued jobs and drives them to a terminal state. The
// scheduled runs, the CLI and the admin trigger all go through RunBatch.
type Dispatcher struct {
	store    store.JobStore
	producer producer.Producer
	emitter  events.EventEmitter
	clock    Clock
	config   DispatcherConfig
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil emitter discards events and a nil
// clock uses SystemClock.
func NewDispatcher(
	jobs store.JobStore,
	p producer.Producer,
	emitter events.EventEmitter,
	clock Clock,
	config DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.RunnerName == "" {
		config.RunnerName = "media-dispatcher"
	}
	return &Dispatcher{
		store:    jobs,
		producer: p,
		emitter:  emitter,
		clock:    clock,
		config:   config,
		logger:   logger.With("component", "dispatcher"),
	}
}

type jobResult struct {
	outcome       JobOutcome
	writeFailures int
}

// RunBatch selects up to req.Limit queued jobs matching req.Filter, oldest
// first, and processes each one. Failing to list candidates aborts the run;
// every per-job problem is isolated into that job's outcome.
func (d *Dispatcher) RunBatch(ctx context.Context, req BatchRequest) (*BatchSummary, error) {
	if req.Limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidRequest, req.Limit)
	}
	if req.Filter.AssetType != "" && !req.Filter.AssetType.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, domain.ErrInvalidAssetType)
	}
	runner := req.Runner
	if runner.Name == "" {
		runner.Name = d.config.RunnerName
	}

	summary := &BatchSummary{
		RunID:   uuid.New(),
		Runner:  runner.Name,
		Filters: req.Filter,
		Results: []JobOutcome{},
	}
	log := d.logger.With("run_id", summary.RunID, "runner", runner.Name)

	jobs, err := d.store.Select(ctx, store.JobQuery{
		Filter:   req.Filter,
		Statuses: []domain.JobStatus{domain.JobStatusQueued},
		OrderBy:  store.OrderByCreatedAt,
		Limit:    req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select queued jobs: %w", err)
	}
	if len(jobs) == 0 {
		log.Debug("no queued jobs", "filters", req.Filter)
		return summary, nil
	}

	log.Info("dispatching batch", "selected", len(jobs), "concurrency", d.config.Concurrency)

	results := make([]jobResult, len(jobs))
	if d.config.Concurrency == 1 || len(jobs) == 1 {
		for i, job := range jobs {
			results[i] = d.process(ctx, log, job, runner, summary.RunID)
		}
	} else {
		sem := make(chan struct{}, d.config.Concurrency)
		var wg sync.WaitGroup
		for i, job := range jobs {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, job *domain.Job) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = d.process(ctx, log, job, runner, summary.RunID)
			}(i, job)
		}
		wg.Wait()
	}

	for _, r := range results {
		summary.Processed++
		summary.WriteFailures += r.writeFailures
		switch r.outcome.Status {
		case OutcomeCompleted:
			summary.Completed++
		case OutcomeFailed:
			summary.Failed++
		case OutcomeSkipped:
			summary.Skipped++
		}
		summary.Results = append(summary.Results, r.outcome)
	}

	log.Info("batch finished",
		"processed", summary.Processed,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"write_failures", summary.WriteFailures)

	return summary, nil
}

// process claims, produces and finalizes a single job.
func (d *Dispatcher) process(
	ctx context.Context,
	log *slog.Logger,
	job *domain.Job,
	runner Runner,
	runID uuid.UUID,
) jobResult {
	log = log.With("job_id", job.ID, "asset_type", job.AssetType)
	res := jobResult{outcome: JobOutcome{ID: job.ID}}

	if ctx.Err() != nil {
		res.outcome.Status = OutcomeSkipped
		res.outcome.Reason = ReasonCancelled
		return res
	}

	now := d.clock.Now()
	claimMeta := map[string]any{
		domain.MetaRunner:    runner.Name,
		domain.MetaRunID:     runID.String(),
		domain.MetaStartedAt: isoTime(now),
	}
	if runner.ProcessedBy != "" {
		claimMeta[domain.MetaProcessedBy] = runner.ProcessedBy
	}
	meta := job.Metadata.With(claimMeta)

	claimed, err := d.store.ConditionalUpdate(ctx, job.ID, domain.JobStatusQueued, domain.JobPatch{
		Status:    domain.JobStatusRunning,
		Error:     domain.StringPtr(""),
		Metadata:  meta,
		UpdatedAt: now,
	})
	if err != nil {
		log.Error("failed to claim job", "error", err)
		res.outcome.Status = OutcomeFailed
		res.outcome.Reason = ReasonClaimFailed
		res.outcome.Error = err.Error()
		res.writeFailures++
		return res
	}
	if claimed == 0 {
		log.Debug("job already claimed by another runner")
		res.outcome.Status = OutcomeSkipped
		res.outcome.Reason = ReasonAlreadyClaimed
		return res
	}

	output, cause := d.producer.Produce(ctx, producer.RequestFor(job))
	reason := ReasonProducerFailed
	if cause == nil && output.OutputURL == "" {
		cause = errors.New("producer returned no output url")
	}

	// The job is ours now; record its fate even if the caller gave up.
	fctx := context.WithoutCancel(ctx)

	if cause == nil {
		now = d.clock.Now()
		patch := domain.JobPatch{
			Status:      domain.JobStatusCompleted,
			OutputURL:   domain.StringPtr(output.OutputURL),
			Error:       domain.StringPtr(""),
			CompletedAt: domain.TimePtr(now),
			Metadata: meta.With(map[string]any{
				domain.MetaRunner:            runner.Name,
				domain.MetaCompletedAt:       isoTime(now),
				domain.MetaProcessedProvider: producer.ProviderLabel(producer.RequestFor(job)),
			}),
			UpdatedAt: now,
		}
		n, err := d.store.ConditionalUpdate(fctx, job.ID, domain.JobStatusRunning, patch)
		switch {
		case err == nil && n == 1:
			log.Info("job completed", "output_url", output.OutputURL)
			d.emit(fctx, log, events.TypeJobCompleted, job, patch, runner.Name)
			res.outcome.Status = OutcomeCompleted
			res.outcome.OutputURL = output.OutputURL
			return res
		case err == nil:
			log.Warn("job changed before completion was recorded")
			res.outcome.Status = OutcomeSkipped
			res.outcome.Reason = ReasonSuperseded
			return res
		}
		log.Error("failed to record completion", "error", err)
		res.writeFailures++
		cause = fmt.Errorf("failed to record completion: %w", err)
		reason = ReasonCompletionFailed
	}

	now = d.clock.Now()
	patch := domain.JobPatch{
		Status:      domain.JobStatusFailed,
		Error:       domain.StringPtr(cause.Error()),
		CompletedAt: domain.TimePtr(now),
		Metadata: meta.With(map[string]any{
			domain.MetaRunner:   runner.Name,
			domain.MetaFailedAt: isoTime(now),
		}),
		UpdatedAt: now,
	}
	n, err := d.store.ConditionalUpdate(fctx, job.ID, domain.JobStatusRunning, patch)
	if err != nil {
		// Left running; the reclaimer will return it to the queue.
		log.Error("failed to record job failure", "error", err, "cause", cause)
		res.writeFailures++
		res.outcome.Status = OutcomeFailed
		res.outcome.Reason = ReasonFinalizeFailed
		res.outcome.Error = cause.Error()
		return res
	}
	if n == 0 {
		log.Warn("job changed before failure was recorded", "cause", cause)
		res.outcome.Status = OutcomeSkipped
		res.outcome.Reason = ReasonSuperseded
		return res
	}

	log.Warn("job failed", "error", cause)
	d.emit(fctx, log, events.TypeJobFailed, job, patch, runner.Name)
	res.outcome.Status = OutcomeFailed
	res.outcome.Reason = reason
	res.outcome.Error = cause.Error()
	return res
}

func (d *Dispatcher) emit(
	ctx context.Context,
	log *slog.Logger,
	eventType string,
	job *domain.Job,
	patch domain.JobPatch,
	runner string,
) {
	after := job.Clone()
	patch.Apply(after)
	if err := d.emitter.EmitEvent(ctx, events.NewJobEvent(eventType, after, runner, patch.UpdatedAt)); err != nil {
		log.Warn("failed to emit job event", "event_type", eventType, "error", err)
	}
}
