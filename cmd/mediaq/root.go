package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/phrazzld/mediaq/internal/config"
	"github.com/phrazzld/mediaq/internal/platform/logger"
	"github.com/spf13/cobra"
)

// errFailures marks a run that completed but reported job-level failures.
// The summary on stdout already describes them, so nothing more is printed.
var errFailures = errors.New("run reported failures")

// cli carries state shared by every subcommand.
type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:           "mediaq",
		Short:         "Media generation job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file path (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override: debug, info, warn or error")

	cmd.AddCommand(
		newDispatchCmd(c),
		newReclaimCmd(c),
		newHealthCmd(c),
		newServeCmd(c),
		newMigrateCmd(c),
		newTokenCmd(c),
	)
	return cmd
}

func (c *cli) init() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.logLevel != "" {
		cfg.Server.LogLevel = c.logLevel
	}
	c.cfg = cfg
	c.logger = logger.Setup(cfg.Server.LogLevel, c.stderr)
	return nil
}

// intFlag returns &v when the named flag was set on the command line and nil
// otherwise, so config defaults apply only to flags the operator left out.
func intFlag(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}
