package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// passDrainTimeout bounds how long Stop waits for cancelled passes to return.
const passDrainTimeout = 10 * time.Second

// SchedulerConfig holds the cron schedules for periodic passes. An empty
// schedule disables that pass.
type SchedulerConfig struct {
	// Dispatch is the cron expression for dispatch passes.
	Dispatch string

	// DispatchLimit is the batch size of each scheduled dispatch.
	DispatchLimit int

	// Reclaim is the cron expression for reclaim passes.
	Reclaim string

	// ReclaimRequest is used for every scheduled reclaim. Apply stays false
	// unless explicitly enabled.
	ReclaimRequest ReclaimRequest
}

// Scheduler runs dispatch and reclaim passes on cron schedules inside a
// long-running process. A pass that is still running when its next tick
// fires is skipped; other processes are kept safe by conditional updates.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *Dispatcher
	reclaimer  *Reclaimer
	config     SchedulerConfig
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger
	stopOnce   sync.Once

	drainTimeout time.Duration
}

// NewScheduler creates a Scheduler and registers its passes. It returns an
// error if a cron expression does not parse.
func NewScheduler(d *Dispatcher, r *Reclaimer, config SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		dispatcher: d,
		reclaimer:  r,
		config:     config,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,

		drainTimeout: passDrainTimeout,
	}

	if config.Dispatch != "" && d != nil {
		if config.DispatchLimit < 1 {
			cancel()
			return nil, fmt.Errorf("%w: scheduled dispatch limit must be positive", ErrInvalidRequest)
		}
		if _, err := s.cron.AddFunc(config.Dispatch, s.runDispatch); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to schedule dispatch %q: %w", config.Dispatch, err)
		}
	}
	if config.Reclaim != "" && r != nil {
		if _, err := s.cron.AddFunc(config.Reclaim, s.runReclaim); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to schedule reclaim %q: %w", config.Reclaim, err)
		}
	}

	return s, nil
}

// Entries returns the number of registered passes.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start begins firing scheduled passes in the background.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler",
		"dispatch", s.config.Dispatch,
		"reclaim", s.config.Reclaim,
		"reclaim_apply", s.config.ReclaimRequest.Apply)
	s.cron.Start()
}

// Stop prevents new passes from starting and waits for running ones. When
// ctx is done first, running passes are cancelled and Stop waits a bounded
// time more so they can record the outcome of jobs they already claimed
// before the caller closes the store. A pass still running after that is
// abandoned; its claimed jobs stay running until the reclaimer finds them.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		done := s.cron.Stop()
		select {
		case <-done.Done():
			s.cancel()
			s.logger.Info("scheduler stopped")
			return
		case <-ctx.Done():
		}

		s.cancel()
		err = fmt.Errorf("scheduler stop interrupted: %w", ctx.Err())
		select {
		case <-done.Done():
			s.logger.Warn("scheduler stopped after cancelling running passes")
		case <-time.After(s.drainTimeout):
			s.logger.Error("scheduled pass still running after cancellation, claimed jobs left for the reclaimer",
				"drain_timeout", s.drainTimeout)
			err = fmt.Errorf("%w: pass still running", err)
		}
	})
	return err
}

func (s *Scheduler) runDispatch() {
	summary, err := s.dispatcher.RunBatch(s.ctx, BatchRequest{Limit: s.config.DispatchLimit})
	if err != nil {
		s.logger.Error("scheduled dispatch failed", "error", err)
		return
	}
	if summary.HasFailures() {
		s.logger.Warn("scheduled dispatch had failures",
			"run_id", summary.RunID,
			"failed", summary.Failed)
	}
}

func (s *Scheduler) runReclaim() {
	report, err := s.reclaimer.Reclaim(s.ctx, s.config.ReclaimRequest)
	if err != nil {
		s.logger.Error("scheduled reclaim failed", "error", err)
		return
	}
	if report.HasFailures() {
		s.logger.Warn("scheduled reclaim had failures", "failed", report.Failed)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
