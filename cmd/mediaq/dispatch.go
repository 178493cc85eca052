package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/config"
	"github.com/phrazzld/mediaq/internal/domain"
	"github.com/phrazzld/mediaq/internal/queue"
	"github.com/spf13/cobra"
)

const maxDispatchLimit = 200

type dispatchOptions struct {
	module string
	lesson string
	asset  string
	limit  int
}

type dispatchOutput struct {
	RunID         uuid.UUID          `json:"runId"`
	Runner        string             `json:"runner"`
	Filters       domain.Filter      `json:"filters"`
	Limit         int                `json:"limit"`
	Processed     int                `json:"processed"`
	Completed     int                `json:"completed"`
	Failed        int                `json:"failed"`
	Skipped       int                `json:"skipped"`
	WriteFailures int                `json:"writeFailures"`
	Failures      []queue.JobOutcome `json:"failures,omitempty"`
	Message       string             `json:"message,omitempty"`
}

func newDispatchCmd(c *cli) *cobra.Command {
	var opts dispatchOptions

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Process one batch of queued media jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd, c, opts)
		},
	}

	cmd.Flags().StringVar(&opts.module, "module", "", "only jobs for this module id")
	cmd.Flags().StringVar(&opts.lesson, "lesson", "", "only jobs for this lesson id")
	cmd.Flags().StringVar(&opts.asset, "asset", "", "only this asset type: video, animation or image")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum jobs to process, 1-200 (default from config)")
	return cmd
}

func runDispatch(cmd *cobra.Command, c *cli, opts dispatchOptions) error {
	asset, err := domain.ParseAssetType(opts.asset)
	if err != nil {
		return err
	}
	limit := config.Clamp(intFlag(cmd, "limit", opts.limit), c.cfg.Dispatcher.DefaultLimit, 1, maxDispatchLimit)

	ctx := cmd.Context()
	app, err := newApplication(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.close() }()

	p, err := app.buildProducer(ctx)
	if err != nil {
		return err
	}

	summary, err := app.dispatcher(p).RunBatch(ctx, queue.BatchRequest{
		Filter: domain.Filter{ModuleID: opts.module, LessonID: opts.lesson, AssetType: asset},
		Limit:  limit,
	})
	if err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}

	out := dispatchOutput{
		RunID:         summary.RunID,
		Runner:        summary.Runner,
		Filters:       summary.Filters,
		Limit:         limit,
		Processed:     summary.Processed,
		Completed:     summary.Completed,
		Failed:        summary.Failed,
		Skipped:       summary.Skipped,
		WriteFailures: summary.WriteFailures,
		Failures:      summary.FailedResults(maxFailureDetails),
	}
	if summary.Processed == 0 {
		out.Message = "No queued media jobs matched the provided filters."
	}
	if err := writeJSON(c.stdout, out); err != nil {
		return err
	}
	if summary.HasFailures() {
		return errFailures
	}
	return nil
}
