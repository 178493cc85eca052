package main

import (
	"fmt"
	"time"

	"github.com/phrazzld/mediaq/internal/config"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/queue"
	"github.com/spf13/cobra"
)

// Reclaim flag bounds
const (
	maxReclaimLimit      = 500
	minReclaimAgeMinutes = 5
	maxReclaimAgeMinutes = 10080
)

type reclaimOptions struct {
	apply         bool
	module        string
	lesson        string
	asset         string
	limit         int
	maxAgeMinutes int
}

type reclaimOutput struct {
	Mode          string                   `json:"mode"`
	Runner        string                   `json:"runner"`
	Filters       domain.Filter            `json:"filters"`
	MaxAgeMinutes int                      `json:"maxAgeMinutes"`
	Cutoff        time.Time                `json:"cutoff"`
	Stale         int                      `json:"stale"`
	Requeued      int                      `json:"requeued"`
	Skipped       int                      `json:"skipped"`
	Raced         int                      `json:"raced"`
	Failed        int                      `json:"failed"`
	Preview       []queue.ReclaimCandidate `json:"preview,omitempty"`
	Failures      []queue.ReclaimCandidate `json:"failures,omitempty"`
	Message       string                   `json:"message,omitempty"`
}

func newReclaimCmd(c *cli) *cobra.Command {
	var opts reclaimOptions

	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Return media jobs stuck in running back to the queue",
		Long: "Finds running media jobs whose updated_at is older than --max-age-minutes. " +
			"Without --apply it only previews them.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReclaim(cmd, c, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.apply, "apply", false, "requeue the stale jobs instead of previewing them")
	cmd.Flags().StringVar(&opts.module, "module", "", "only jobs for this module id")
	cmd.Flags().StringVar(&opts.lesson, "lesson", "", "only jobs for this lesson id")
	cmd.Flags().StringVar(&opts.asset, "asset", "all", "asset type: video, animation, image or all")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum stale jobs to examine, 1-500 (default from config)")
	cmd.Flags().IntVar(&opts.maxAgeMinutes, "max-age-minutes", 0,
		"minutes without an update before a running job is stale, 5-10080 (default from config)")
	return cmd
}

func parseReclaimAsset(s string) (domain.AssetType, error) {
	if s == "all" {
		return "", nil
	}
	return domain.ParseAssetType(s)
}

func runReclaim(cmd *cobra.Command, c *cli, opts reclaimOptions) error {
	asset, err := parseReclaimAsset(opts.asset)
	if err != nil {
		return err
	}
	limit := config.Clamp(intFlag(cmd, "limit", opts.limit), c.cfg.Reclaimer.Limit, 1, maxReclaimLimit)
	maxAge := config.Clamp(intFlag(cmd, "max-age-minutes", opts.maxAgeMinutes),
		c.cfg.Reclaimer.MaxAgeMinutes, minReclaimAgeMinutes, maxReclaimAgeMinutes)

	ctx := cmd.Context()
	app, err := newApplication(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.close() }()

	report, err := app.reclaimer().Reclaim(ctx, queue.ReclaimRequest{
		Filter:     domain.Filter{ModuleID: opts.module, LessonID: opts.lesson, AssetType: asset},
		StaleAfter: minutes(maxAge),
		Limit:      limit,
		Apply:      opts.apply,
	})
	if err != nil {
		return fmt.Errorf("reclaim failed: %w", err)
	}

	mode := "apply"
	if report.DryRun {
		mode = "dry-run"
	}
	out := reclaimOutput{
		Mode:          mode,
		Runner:        report.Runner,
		Filters:       report.Filters,
		MaxAgeMinutes: maxAge,
		Cutoff:        report.Cutoff,
		Stale:         len(report.Candidates),
		Requeued:      report.Requeued,
		Skipped:       report.Skipped,
		Raced:         report.Raced,
		Failed:        report.Failed,
	}
	switch {
	case len(report.Candidates) == 0:
		out.Message = "No stale running media jobs matched the provided filters."
	case report.DryRun:
		out.Preview = capped(report.Candidates, maxPreviewEntries)
		out.Message = `Use "--apply" to reset stale running jobs back to queued.`
	}
	for _, cand := range report.Candidates {
		if cand.Action == queue.ReclaimFailed {
			out.Failures = append(out.Failures, cand)
		}
	}
	out.Failures = capped(out.Failures, maxFailureDetails)

	if err := writeJSON(c.stdout, out); err != nil {
		return err
	}
	if report.HasFailures() {
		return errFailures
	}
	return nil
}
