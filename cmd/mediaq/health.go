package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd(c *cli) *cobra.Command {
	var failOnAlert bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the queue against its backlog, staleness and failure thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = app.close() }()

			snapshot, err := app.healthChecker().Check(cmd.Context())
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			if err := writeJSON(c.stdout, snapshot); err != nil {
				return err
			}
			if failOnAlert && !snapshot.Healthy() {
				return errFailures
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failOnAlert, "fail-on-alert", false, "exit non-zero when any alert fires")
	return cmd
}
