package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/service/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(c *cli) *cobra.Command {
	var (
		userID  string
		noAdmin bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := uuid.New()
			if userID != "" {
				parsed, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("invalid --user %q: %w", userID, err)
				}
				id = parsed
			}

			jwtService, err := auth.NewJWTService(c.cfg.Auth)
			if err != nil {
				return fmt.Errorf("failed to initialize JWT service: %w", err)
			}
			token, err := jwtService.GenerateToken(cmd.Context(), id, !noAdmin)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.stdout, token)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id to embed (default: random)")
	cmd.Flags().BoolVar(&noAdmin, "no-admin", false, "omit the admin claim")
	return cmd
}
