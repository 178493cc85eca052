package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/events"
	"github.com/phrazzld/mediaq/internal/store"
	"github.com/phrazzld/mediaq/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const staleAfter = 90 * time.Minute

func candidateIDs(r *ReclaimReport) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		out = append(out, c.ID)
	}
	return out
}

func TestReclaimDryRunNeverWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newHookStore()
	now := t0.Add(10 * time.Hour)
	clock := newFakeClock(now)

	older := seedJob(t, s, domain.AssetTypeVideo, "m1", "l1", domain.JobStatusRunning, t0, now.Add(-5*time.Hour))
	newer := seedJob(t, s, domain.AssetTypeImage, "m1", "l2", domain.JobStatusRunning, t0, now.Add(-2*time.Hour))
	seedJob(t, s, domain.AssetTypeImage, "m1", "l3", domain.JobStatusRunning, t0, now.Add(-time.Minute))

	s.ConditionalUpdateFn = func(context.Context, uuid.UUID, domain.JobStatus, domain.JobPatch) (int64, error) {
		t.Fatal("dry run must not write")
		return 0, nil
	}
	r := newTestReclaimer(s, clock, nil)

	dry, err := r.Reclaim(ctx, ReclaimRequest{StaleAfter: staleAfter, Limit: 100})
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Equal(t, []uuid.UUID{older.ID, newer.ID}, candidateIDs(dry))
	assert.Equal(t, 0, dry.Requeued)
	assert.Equal(t, 300, dry.Candidates[0].AgeMinutes)
	assert.Equal(t, "m1::l1::video", dry.Candidates[0].Scope)
	assert.Equal(t, now.Add(-staleAfter), dry.Cutoff)

	again, err := r.Reclaim(ctx, ReclaimRequest{StaleAfter: staleAfter, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, candidateIDs(dry), candidateIDs(again))
	assert.Equal(t, domain.JobStatusRunning, mustGet(t, s, older.ID).Status)

	s.ConditionalUpdateFn = nil
	applied, err := r.Reclaim(ctx, ReclaimRequest{StaleAfter: staleAfter, Limit: 100, Apply: true})
	require.NoError(t, err)
	assert.False(t, applied.DryRun)
	assert.Equal(t, candidateIDs(dry), candidateIDs(applied))
	assert.Equal(t, 2, applied.Requeued)
}

func TestReclaimStalenessBoundaryIsStrict(t *testing.T) {
	t.Parallel()
	s := memory.NewJobStore()
	now := t0.Add(10 * time.Hour)
	cutoff := now.Add(-staleAfter)

	atCutoff := seedJob(t, s, domain.AssetTypeVideo, "m1", "l1", domain.JobStatusRunning, t0, cutoff)
	justOlder := seedJob(t, s, domain.AssetTypeVideo, "m1", "l2", domain.JobStatusRunning, t0, cutoff.Add(-time.Microsecond))

	report, err := newTestReclaimer(s, newFakeClock(now), nil).Reclaim(context.Background(), ReclaimRequest{
		StaleAfter: staleAfter,
		Limit:      10,
		Apply:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{justOlder.ID}, candidateIDs(report))
	assert.Equal(t, domain.JobStatusRunning, mustGet(t, s, atCutoff.ID).Status)
	assert.Equal(t, domain.JobStatusQueued, mustGet(t, s, justOlder.ID).Status)
}

func TestReclaimSkipsScopeWithAnotherActiveJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.NewJobStore()
	now := t0.Add(10 * time.Hour)
	clock := newFakeClock(now)
	r := newTestReclaimer(s, clock, nil)
	req := ReclaimRequest{StaleAfter: staleAfter, Limit: 10, Apply: true}

	stale := seedJob(t, s, domain.AssetTypeVideo, "m1", "l1", domain.JobStatusRunning, t0, now.Add(-3*time.Hour))
	fresh := seedJob(t, s, domain.AssetTypeVideo, "m1", "l1", domain.JobStatusRunning, t0, now.Add(-time.Minute))
	// Same module and lesson, different asset type: a different scope.
	seedJob(t, s, domain.AssetTypeImage, "m1", "l1", domain.JobStatusQueued, t0, now)

	report, err := r.Reclaim(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Requeued)
	assert.Equal(t, ReclaimSkipped, report.Candidates[0].Action)
	assert.False(t, report.HasFailures())
	assert.Equal(t, domain.JobStatusRunning, mustGet(t, s, stale.ID).Status)

	n, err := s.ConditionalUpdate(ctx, fresh.ID, domain.JobStatusRunning, domain.JobPatch{
		Status:      domain.JobStatusCompleted,
		OutputURL:   domain.StringPtr("/out/fresh.mp4"),
		CompletedAt: domain.TimePtr(now),
		UpdatedAt:   now,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	report, err = r.Reclaim(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 1, report.Requeued)
	assert.Equal(t, domain.JobStatusQueued, mustGet(t, s, stale.ID).Status)
}

func TestReclaimFreeFormJobsAreNeverGrouped(t *testing.T) {
	t.Parallel()
	s := memory.NewJobStore()
	now := t0.Add(10 * time.Hour)

	a := seedJob(t, s, domain.AssetTypeImage, "", "", domain.JobStatusRunning, t0, now.Add(-3*time.Hour))
	b := seedJob(t, s, domain.AssetTypeImage, "", "", domain.JobStatusRunning, t0, now.Add(-4*time.Hour))
	seedJob(t, s, domain.AssetTypeImage, "", "", domain.JobStatusQueued, t0, now)
	c := seedJob(t, s, domain.AssetTypeImage, "m1", "", domain.JobStatusRunning, t0, now.Add(-3*time.Hour))
	seedJob(t, s, domain.AssetTypeImage, "m1", "", domain.JobStatusQueued, t0, now)

	report, err := newTestReclaimer(s, newFakeClock(now), nil).Reclaim(context.Background(), ReclaimRequest{
		StaleAfter: staleAfter,
		Limit:      10,
		Apply:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Requeued)
	assert.Equal(t, 0, report.Skipped)
	for _, id := range []uuid.UUID{a.ID, b.ID, c.ID} {
		assert.Equal(t, domain.JobStatusQueued, mustGet(t, s, id).Status)
	}
	for _, cand := range report.Candidates {
		assert.Empty(t, cand.Scope)
	}
}

func TestReclaimRequeueCounterIsMonotonic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.NewJobStore()
	clock := newFakeClock(t0)
	r := newTestReclaimer(s, clock, nil)
	req := ReclaimRequest{StaleAfter: staleAfter, Limit: 10, Apply: true}

	job := seedJob(t, s, domain.AssetTypeVideo, "m1", "l1", domain.JobStatusRunning, t0, t0)
	job.Metadata = domain.Metadata{"source": "placement"}
	s.Put(job)
	assert.Equal(t, 0, job.Metadata.Int(domain.MetaStaleRequeueCount))

	for cycle := 1; cycle <= 2; cycle++ {
		clock.Advance(staleAfter + time.Second)
		report, err := r.Reclaim(ctx, req)
		require.NoError(t, err)
		require.Equal(t, 1, report.Requeued)

		got := mustGet(t, s, job.ID)
		assert.Equal(t, cycle, got.Metadata.Int(domain.MetaStaleRequeueCount))
		assert.Equal(t, "placement", got.Metadata["source"])

		// Claimed again by a worker that then dies.
		n, err := s.ConditionalUpdate(ctx, job.ID, domain.JobStatusQueued, domain.JobPatch{
			Status:    domain.JobStatusRunning,
			Metadata:  got.Metadata,
			UpdatedAt: clock.Now(),
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
	}
}

func TestReclaimStaleJobRecoversThroughDispatcher(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.NewJobStore()
	clock := newFakeClock(t0)
	emitter := &recordingEmitter{}

	j2 := seedJob(t, s, domain.AssetTypeVideo, "m1", "l2", domain.JobStatusQueued, t0.Add(-time.Hour), t0.Add(-time.Hour))
	// Claimed at t0 by a process that died before finalizing.
	n, err := s.ConditionalUpdate(ctx, j2.ID, domain.JobStatusQueued, domain.JobPatch{
		Status:    domain.JobStatusRunning,
		Metadata:  domain.Metadata{domain.MetaRunner: "crashed-worker"},
		UpdatedAt: t0,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	clock.Set(t0.Add(staleAfter + time.Second))
	report, err := newTestReclaimer(s, clock, emitter).Reclaim(ctx, ReclaimRequest{
		StaleAfter: staleAfter,
		Limit:      100,
		Apply:      true,
		Runner:     "nightly-reclaim",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Requeued)
	assert.Equal(t, ReclaimRequeued, report.Candidates[0].Action)

	got := mustGet(t, s, j2.ID)
	assert.Equal(t, domain.JobStatusQueued, got.Status)
	assert.Equal(t, "Automatically re-queued after 90 minutes in running state without updates.", got.Error)
	assert.Equal(t, 1, got.Metadata.Int(domain.MetaStaleRequeueCount))
	assert.Equal(t, "nightly-reclaim", got.Metadata[domain.MetaStaleRequeuedBy])
	assert.Equal(t, "running job exceeded 90 minutes without update", got.Metadata[domain.MetaStaleRequeueReason])
	assert.Equal(t, 90, got.Metadata.Int(domain.MetaStaleAgeMinutes))
	assert.Equal(t, isoTime(clock.Now()), got.Metadata[domain.MetaStaleRequeuedAt])
	assert.Equal(t, clock.Now(), got.UpdatedAt)
	assert.Equal(t, []string{events.TypeJobRequeued}, emitter.Types())

	summary, err := newTestDispatcher(s, newCountingProducer(nil), clock, nil).
		RunBatch(ctx, BatchRequest{Filter: domain.Filter{ModuleID: "m1"}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)

	done := mustGet(t, s, j2.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	assert.Empty(t, done.Error)
	assert.Equal(t, 1, done.Metadata.Int(domain.MetaStaleRequeueCount))
}

func TestReclaimDropsRacedRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newHookStore()
	now := t0.Add(10 * time.Hour)
	job := seedJob(t, s, domain.AssetTypeImage, "m1", "l1", domain.JobStatusRunning, t0, now.Add(-3*time.Hour))

	// The first worker finishes just before the reclaim write lands.
	s.ConditionalUpdateFn = func(ctx context.Context, id uuid.UUID, expected domain.JobStatus, patch domain.JobPatch) (int64, error) {
		_, err := s.JobStore.ConditionalUpdate(ctx, id, domain.JobStatusRunning, domain.JobPatch{
			Status:      domain.JobStatusCompleted,
			OutputURL:   domain.StringPtr("/out/finally.png"),
			CompletedAt: domain.TimePtr(now),
			UpdatedAt:   now,
		})
		require.NoError(t, err)
		return s.JobStore.ConditionalUpdate(ctx, id, expected, patch)
	}

	report, err := newTestReclaimer(s, newFakeClock(now), nil).Reclaim(ctx, ReclaimRequest{
		StaleAfter: staleAfter,
		Limit:      10,
		Apply:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Raced)
	assert.Equal(t, 0, report.Requeued)
	assert.False(t, report.HasFailures())
	assert.Equal(t, domain.JobStatusCompleted, mustGet(t, s, job.ID).Status)
}

func TestReclaimWriteFailureIsReported(t *testing.T) {
	t.Parallel()
	s := newHookStore()
	now := t0.Add(10 * time.Hour)
	seedJob(t, s, domain.AssetTypeImage, "m1", "l1", domain.JobStatusRunning, t0, now.Add(-3*time.Hour))
	ok := seedJob(t, s, domain.AssetTypeImage, "m1", "l2", domain.JobStatusRunning, t0, now.Add(-2*time.Hour))

	calls := 0
	s.ConditionalUpdateFn = func(ctx context.Context, id uuid.UUID, expected domain.JobStatus, patch domain.JobPatch) (int64, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("statement timeout")
		}
		return s.JobStore.ConditionalUpdate(ctx, id, expected, patch)
	}

	report, err := newTestReclaimer(s, newFakeClock(now), nil).Reclaim(context.Background(), ReclaimRequest{
		StaleAfter: staleAfter,
		Limit:      10,
		Apply:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Requeued)
	assert.True(t, report.HasFailures())
	assert.Equal(t, ReclaimFailed, report.Candidates[0].Action)
	assert.Equal(t, "statement timeout", report.Candidates[0].Error)
	assert.Equal(t, domain.JobStatusQueued, mustGet(t, s, ok.ID).Status)
}

func TestReclaimHonoursFilterAndLimit(t *testing.T) {
	t.Parallel()
	s := memory.NewJobStore()
	now := t0.Add(10 * time.Hour)
	oldest := seedJob(t, s, domain.AssetTypeVideo, "m1", "l1", domain.JobStatusRunning, t0, now.Add(-6*time.Hour))
	seedJob(t, s, domain.AssetTypeVideo, "m1", "l2", domain.JobStatusRunning, t0, now.Add(-5*time.Hour))
	seedJob(t, s, domain.AssetTypeVideo, "m2", "l1", domain.JobStatusRunning, t0, now.Add(-7*time.Hour))
	seedJob(t, s, domain.AssetTypeImage, "m1", "l3", domain.JobStatusRunning, t0, now.Add(-8*time.Hour))

	report, err := newTestReclaimer(s, newFakeClock(now), nil).Reclaim(context.Background(), ReclaimRequest{
		Filter:     domain.Filter{ModuleID: "m1", AssetType: domain.AssetTypeVideo},
		StaleAfter: staleAfter,
		Limit:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{oldest.ID}, candidateIDs(report))
}

func TestReclaimNoCandidates(t *testing.T) {
	t.Parallel()
	s := newHookStore()
	s.SelectFn = func(ctx context.Context, q store.JobQuery) ([]*domain.Job, error) {
		require.Equal(t, []domain.JobStatus{domain.JobStatusRunning}, q.Statuses)
		return s.JobStore.Select(ctx, q)
	}

	report, err := newTestReclaimer(s, newFakeClock(t0), nil).Reclaim(context.Background(), ReclaimRequest{
		StaleAfter: staleAfter,
		Limit:      10,
		Apply:      true,
	})
	require.NoError(t, err)
	assert.Empty(t, report.Candidates)
	assert.Equal(t, "test-reclaimer", report.Runner)
}

func TestReclaimInvalidRequest(t *testing.T) {
	t.Parallel()
	r := newTestReclaimer(memory.NewJobStore(), nil, nil)
	ctx := context.Background()

	_, err := r.Reclaim(ctx, ReclaimRequest{StaleAfter: 0, Limit: 10})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = r.Reclaim(ctx, ReclaimRequest{StaleAfter: staleAfter, Limit: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = r.Reclaim(ctx, ReclaimRequest{StaleAfter: staleAfter, Limit: 1, Filter: domain.Filter{AssetType: "all"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestReclaimSelectErrorAborts(t *testing.T) {
	t.Parallel()
	s := newHookStore()
	s.SelectFn = func(context.Context, store.JobQuery) ([]*domain.Job, error) {
		return nil, errors.New("permission denied")
	}
	_, err := newTestReclaimer(s, nil, nil).Reclaim(context.Background(), ReclaimRequest{StaleAfter: staleAfter, Limit: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to select stale jobs")
}

func TestAgeMinutes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, ageMinutes(10*time.Second))
	assert.Equal(t, 1, ageMinutes(89*time.Second))
	assert.Equal(t, 2, ageMinutes(90*time.Second))
	assert.Equal(t, 91, ageMinutes(90*time.Minute+31*time.Second))
}
