package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/store"
)

// Alert categories
const (
	AlertStale        = "media_queue_stale"
	AlertBacklog      = "media_queue_backlog"
	AlertFailureSpike = "media_queue_failure_spike"
)

// Severity grades an alert.
type Severity string

// Severities
const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// HealthConfig holds the SLA thresholds. Values below 1 are raised to 1.
type HealthConfig struct {
	StaleHours      int `json:"staleHours"`
	BacklogLimit    int `json:"backlogLimit"`
	Failure24hLimit int `json:"failure24hLimit"`
}

// Alert is a threshold breach found by a health check.
type Alert struct {
	Category string         `json:"category"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// OldestActive describes the oldest queued or running job.
type OldestActive struct {
	ID        uuid.UUID        `json:"id"`
	Status    domain.JobStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	AgeHours  float64          `json:"ageHours"`
}

// HealthSnapshot is the state of the queue at CheckedAt.
type HealthSnapshot struct {
	CheckedAt     time.Time     `json:"checkedAt"`
	Thresholds    HealthConfig  `json:"thresholds"`
	ActiveCount   int           `json:"activeCount"`
	StaleCount    int           `json:"staleCount"`
	StaleCutoff   time.Time     `json:"staleCutoff"`
	Failed24h     int           `json:"failed24h"`
	FailureCutoff time.Time     `json:"failureCutoff"`
	Oldest        *OldestActive `json:"oldest,omitempty"`
	Alerts        []Alert       `json:"alerts"`
}

// Healthy reports whether no alert fired.
func (s *HealthSnapshot) Healthy() bool {
	return len(s.Alerts) == 0
}

// HealthChecker evaluates queue SLAs against the job store.
type HealthChecker struct {
	store  store.JobStore
	clock  Clock
	config HealthConfig
	logger *slog.Logger
}

// NewHealthChecker creates a HealthChecker.
func NewHealthChecker(jobs store.JobStore, clock Clock, config HealthConfig, logger *slog.Logger) *HealthChecker {
	if clock == nil {
		clock = SystemClock{}
	}
	config.StaleHours = max(1, config.StaleHours)
	config.BacklogLimit = max(1, config.BacklogLimit)
	config.Failure24hLimit = max(1, config.Failure24hLimit)
	return &HealthChecker{
		store:  jobs,
		clock:  clock,
		config: config,
		logger: logger.With("component", "health_checker"),
	}
}

// Check counts active, stale and recently failed jobs and grades them
// against the configured thresholds.
func (h *HealthChecker) Check(ctx context.Context) (*HealthSnapshot, error) {
	now := h.clock.Now()
	staleCutoff := now.Add(-time.Duration(h.config.StaleHours) * time.Hour)
	failureCutoff := now.Add(-24 * time.Hour)

	snap := &HealthSnapshot{
		CheckedAt:     now,
		Thresholds:    h.config,
		StaleCutoff:   staleCutoff,
		FailureCutoff: failureCutoff,
		Alerts:        []Alert{},
	}

	var err error
	snap.ActiveCount, err = h.store.Count(ctx, store.JobQuery{Statuses: domain.ActiveStatuses()})
	if err != nil {
		return nil, fmt.Errorf("failed to count active jobs: %w", err)
	}
	snap.StaleCount, err = h.store.Count(ctx, store.JobQuery{
		Statuses:      domain.ActiveStatuses(),
		CreatedBefore: &staleCutoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count stale jobs: %w", err)
	}
	snap.Failed24h, err = h.store.Count(ctx, store.JobQuery{
		Statuses:     []domain.JobStatus{domain.JobStatusFailed},
		UpdatedSince: &failureCutoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count failed jobs: %w", err)
	}
	oldest, err := h.store.Select(ctx, store.JobQuery{
		Statuses: domain.ActiveStatuses(),
		OrderBy:  store.OrderByCreatedAt,
		Limit:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load oldest active job: %w", err)
	}

	oldestHours := 0.0
	if len(oldest) == 1 {
		oldestHours = now.Sub(oldest[0].CreatedAt).Hours()
		snap.Oldest = &OldestActive{
			ID:        oldest[0].ID,
			Status:    oldest[0].Status,
			CreatedAt: oldest[0].CreatedAt,
			AgeHours:  math.Round(oldestHours*100) / 100,
		}
	}

	cfg := h.config
	if snap.StaleCount > 0 {
		sev := SeverityWarning
		if oldestHours >= float64(cfg.StaleHours*2) || snap.StaleCount >= cfg.BacklogLimit {
			sev = SeverityCritical
		}
		snap.Alerts = append(snap.Alerts, Alert{
			Category: AlertStale,
			Severity: sev,
			Message: fmt.Sprintf("Detected %d media jobs pending/running beyond %dh SLA.",
				snap.StaleCount, cfg.StaleHours),
			Metadata: map[string]any{
				"staleMediaCount":     snap.StaleCount,
				"staleMediaCutoff":    isoTime(staleCutoff),
				"staleHoursThreshold": cfg.StaleHours,
				"oldestAgeHours":      math.Round(oldestHours*100) / 100,
			},
		})
	}
	if snap.ActiveCount >= cfg.BacklogLimit {
		sev := SeverityWarning
		if snap.ActiveCount >= cfg.BacklogLimit*2 {
			sev = SeverityCritical
		}
		snap.Alerts = append(snap.Alerts, Alert{
			Category: AlertBacklog,
			Severity: sev,
			Message: fmt.Sprintf("Media queue backlog is %d, above threshold %d.",
				snap.ActiveCount, cfg.BacklogLimit),
			Metadata: map[string]any{
				"queuedOrRunningCount": snap.ActiveCount,
				"backlogThreshold":     cfg.BacklogLimit,
			},
		})
	}
	if snap.Failed24h >= cfg.Failure24hLimit {
		sev := SeverityWarning
		if snap.Failed24h >= cfg.Failure24hLimit*2 {
			sev = SeverityCritical
		}
		snap.Alerts = append(snap.Alerts, Alert{
			Category: AlertFailureSpike,
			Severity: sev,
			Message: fmt.Sprintf("Media queue had %d failures in the last 24h (threshold: %d).",
				snap.Failed24h, cfg.Failure24hLimit),
			Metadata: map[string]any{
				"failedMediaCount24h": snap.Failed24h,
				"failure24hCutoff":    isoTime(failureCutoff),
				"failure24hThreshold": cfg.Failure24hLimit,
			},
		})
	}

	for _, a := range snap.Alerts {
		h.logger.Warn("queue health alert",
			"category", a.Category,
			"severity", a.Severity,
			"message", a.Message)
	}
	h.logger.Info("queue health checked",
		"active", snap.ActiveCount,
		"stale", snap.StaleCount,
		"failed_24h", snap.Failed24h,
		"alerts", len(snap.Alerts))

	return snap, nil
}
