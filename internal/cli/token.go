package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mqtt-timescale/internal/auth"
	"mqtt-timescale/internal/config"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		subject string
		source  string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with AUTH_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("token: AUTH_JWT_SECRET is not set")
			}
			parsed, err := auth.ParseRole(role)
			if err != nil {
				return fmt.Errorf("token: %w", err)
			}
			id := auth.Identity{Role: parsed, Source: source, Subject: subject}
			signed, err := auth.IssueJWT([]byte(cfg.Auth.JWTSecret), id, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "bridge", "token subject")
	cmd.Flags().StringVar(&source, "source", "", "source recorded in ingest logs for this caller")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleWriter), "viewer, writer or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}
