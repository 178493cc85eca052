package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/events"
	"github.com/phrazzld/mediaq/internal/platform/logger"
	"github.com/phrazzld/mediaq/internal/producer"
	"github.com/phrazzld/mediaq/internal/store"
	"github.com/phrazzld/mediaq/internal/store/memory"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// hookStore wraps a memory store and lets a test intercept individual calls.
type hookStore struct {
	*memory.JobStore

	SelectFn            func(ctx context.Context, q store.JobQuery) ([]*domain.Job, error)
	ConditionalUpdateFn func(ctx context.Context, id uuid.UUID, expected domain.JobStatus, patch domain.JobPatch) (int64, error)
}

func newHookStore() *hookStore {
	return &hookStore{JobStore: memory.NewJobStore()}
}

func (s *hookStore) Select(ctx context.Context, q store.JobQuery) ([]*domain.Job, error) {
	if s.SelectFn != nil {
		return s.SelectFn(ctx, q)
	}
	return s.JobStore.Select(ctx, q)
}

func (s *hookStore) ConditionalUpdate(
	ctx context.Context,
	id uuid.UUID,
	expected domain.JobStatus,
	patch domain.JobPatch,
) (int64, error) {
	if s.ConditionalUpdateFn != nil {
		return s.ConditionalUpdateFn(ctx, id, expected, patch)
	}
	return s.JobStore.ConditionalUpdate(ctx, id, expected, patch)
}

// recordingEmitter keeps every emitted event.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.JobEvent
	err    error
}

func (e *recordingEmitter) EmitEvent(_ context.Context, event *events.JobEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.err
}

func (e *recordingEmitter) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

// countingProducer returns a fixed URL per job and counts calls per job id.
type countingProducer struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
	fn    func(ctx context.Context, req producer.Request) (producer.Result, error)
}

func newCountingProducer(fn func(ctx context.Context, req producer.Request) (producer.Result, error)) *countingProducer {
	if fn == nil {
		fn = func(_ context.Context, req producer.Request) (producer.Result, error) {
			return producer.Result{OutputURL: "/out/" + req.JobID.String()}, nil
		}
	}
	return &countingProducer{calls: make(map[uuid.UUID]int), fn: fn}
}

func (p *countingProducer) Produce(ctx context.Context, req producer.Request) (producer.Result, error) {
	p.mu.Lock()
	p.calls[req.JobID]++
	p.mu.Unlock()
	return p.fn(ctx, req)
}

func (p *countingProducer) Calls(id uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

func (p *countingProducer) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

func seedJob(
	t *testing.T,
	s interface{ Put(*domain.Job) },
	asset domain.AssetType,
	module, lesson string,
	status domain.JobStatus,
	created, updated time.Time,
) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(asset, module, lesson, "", created)
	require.NoError(t, err)
	job.Status = status
	job.UpdatedAt = updated
	if status == domain.JobStatusCompleted {
		job.OutputURL = "/out/done"
	}
	s.Put(job)
	return job
}

func mustGet(t *testing.T, s store.JobStore, id uuid.UUID) *domain.Job {
	t.Helper()
	job, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func newTestDispatcher(s store.JobStore, p producer.Producer, clock Clock, emitter events.EventEmitter) *Dispatcher {
	return NewDispatcher(s, p, emitter, clock, DispatcherConfig{RunnerName: "test-dispatcher"}, logger.Discard())
}

func newTestReclaimer(s store.JobStore, clock Clock, emitter events.EventEmitter) *Reclaimer {
	return NewReclaimer(s, emitter, clock, ReclaimerConfig{RunnerName: "test-reclaimer"}, logger.Discard())
}
