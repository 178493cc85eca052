package main

import (
	"github.com/phrazzld/mediaq/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL job table schema",
	}
	for _, sub := range []struct{ name, short string }{
		{"up", "Apply all pending migrations"},
		{"down", "Roll back the most recent migration"},
		{"status", "Show applied and pending migrations"},
	} {
		command := sub.name
		cmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := openPostgres(cmd.Context(), c.cfg)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()

				return postgres.Migrate(cmd.Context(), db, command, c.logger)
			},
		})
	}
	return cmd
}
