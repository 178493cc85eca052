package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/mediaq/internal/api/shared"
	"github.com/phrazzld/mediaq/internal/config"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/queue"
	"github.com/phrazzld/mediaq/internal/store"
)

const (
	assetTypeMessage   = "assetType must be video, animation, or image."
	reclaimTypeMessage = "assetType must be video, animation, image, or all."
	emptyQueueMessage  = "No queued jobs."
)

// Reclaim bounds accepted by the API
const (
	MinReclaimAgeMinutes = 5
	MaxReclaimAgeMinutes = 10080
	MaxReclaimLimit      = 500
)

// ReclaimDefaults fills reclaim requests that omit the window or limit.
type ReclaimDefaults struct {
	MaxAgeMinutes int
	Limit         int
}

// MediaJobHandler serves the administrative media job endpoints.
type MediaJobHandler struct {
	dispatcher      *queue.Dispatcher
	reclaimer       *queue.Reclaimer
	health          *queue.HealthChecker
	jobs            store.JobStore
	reclaimDefaults ReclaimDefaults
	logger          *slog.Logger
}

// NewMediaJobHandler creates a new MediaJobHandler.
func NewMediaJobHandler(
	dispatcher *queue.Dispatcher,
	reclaimer *queue.Reclaimer,
	health *queue.HealthChecker,
	jobs store.JobStore,
	reclaimDefaults ReclaimDefaults,
	logger *slog.Logger,
) *MediaJobHandler {
	if reclaimDefaults.MaxAgeMinutes == 0 {
		reclaimDefaults.MaxAgeMinutes = 90
	}
	if reclaimDefaults.Limit == 0 {
		reclaimDefaults.Limit = 100
	}
	return &MediaJobHandler{
		dispatcher:      dispatcher,
		reclaimer:       reclaimer,
		health:          health,
		jobs:            jobs,
		reclaimDefaults: reclaimDefaults,
		logger:          logger.With("component", "media_job_handler"),
	}
}

// RunJobs handles POST /api/admin/media/jobs/run. It processes a bounded
// batch of queued jobs synchronously through the shared dispatcher.
func (h *MediaJobHandler) RunJobs(w http.ResponseWriter, r *http.Request) {
	runner, ok := adminRunner(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusForbidden, "Admin access required.")
		return
	}

	var req RunJobsRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	req.AssetType = trimmed(req.AssetType)
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, assetTypeMessage, err)
		return
	}

	batchSize := config.Clamp(req.BatchSize, DefaultBatchSize, 1, MaxBatchSize)
	filter := domain.Filter{
		ModuleID:  trimmed(req.ModuleID),
		LessonID:  trimmed(req.LessonID),
		AssetType: domain.AssetType(req.AssetType),
	}

	summary, err := h.dispatcher.RunBatch(r.Context(), queue.BatchRequest{
		Filter: filter,
		Limit:  batchSize,
		Runner: runner,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to process media jobs")
		return
	}

	if summary.Processed == 0 {
		shared.RespondWithJSON(w, r, http.StatusOK, EmptyRunResponse{
			Processed: 0,
			Message:   emptyQueueMessage,
			Filters:   newFiltersResponse(filter),
		})
		return
	}

	h.logger.Info("admin dispatch finished",
		"trace_id", shared.GetTraceID(r.Context()),
		"run_id", summary.RunID.String(),
		"runner", summary.Runner,
		"processed", summary.Processed,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"skipped", summary.Skipped)

	shared.RespondWithJSON(w, r, http.StatusOK, RunJobsResponse{
		RunID:     summary.RunID.String(),
		Processed: summary.Processed,
		Completed: summary.Completed,
		Failed:    summary.Failed,
		Skipped:   summary.Skipped,
		Filters:   newFiltersResponse(filter),
		Results:   summary.Results,
	})
}

// ReclaimJobs handles POST /api/admin/media/jobs/reclaim. Without
// "apply": true it only previews the stale candidates.
func (h *MediaJobHandler) ReclaimJobs(w http.ResponseWriter, r *http.Request) {
	runner, ok := adminRunner(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusForbidden, "Admin access required.")
		return
	}

	var req ReclaimJobsRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	req.AssetType = trimmed(req.AssetType)
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, reclaimTypeMessage, err)
		return
	}

	asset := domain.AssetType(req.AssetType)
	if asset == "all" {
		asset = ""
	}
	maxAge := config.Clamp(req.MaxAgeMinutes, h.reclaimDefaults.MaxAgeMinutes, MinReclaimAgeMinutes, MaxReclaimAgeMinutes)
	limit := config.Clamp(req.Limit, h.reclaimDefaults.Limit, 1, MaxReclaimLimit)

	report, err := h.reclaimer.Reclaim(r.Context(), queue.ReclaimRequest{
		Filter: domain.Filter{
			ModuleID:  trimmed(req.ModuleID),
			LessonID:  trimmed(req.LessonID),
			AssetType: asset,
		},
		StaleAfter: time.Duration(maxAge) * time.Minute,
		Limit:      limit,
		Apply:      req.Apply,
		Runner:     runner.Name,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reclaim media jobs")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, report)
}

// QueueHealth handles GET /api/admin/media/jobs/health.
func (h *MediaJobHandler) QueueHealth(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.health.Check(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to check queue health")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, snapshot)
}

// GetJob handles GET /api/admin/media/jobs/{id}.
func (h *MediaJobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid job ID", err)
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load media job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

func jobToResponse(j *domain.Job) JobResponse {
	nullable := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	resp := JobResponse{
		ID:        j.ID.String(),
		AssetType: string(j.AssetType),
		ModuleID:  nullable(j.ModuleID),
		LessonID:  nullable(j.LessonID),
		Provider:  j.Provider,
		Status:    string(j.Status),
		OutputURL: j.OutputURL,
		Error:     j.Error,
		Metadata:  j.Metadata,
		CreatedAt: j.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: j.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if resp.Metadata == nil {
		resp.Metadata = domain.Metadata{}
	}
	if j.CompletedAt != nil {
		s := j.CompletedAt.UTC().Format(time.RFC3339Nano)
		resp.CompletedAt = &s
	}
	return resp
}
