package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"safetrain-backend/pkg/config"
	"safetrain-backend/pkg/models"
	"safetrain-backend/pkg/utils"
)

func newTokenCmd() *cobra.Command {
	var (
		identity models.Identity
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if cfg.IsProduction() {
				return errors.New("refusing to mint tokens in production")
			}
			if identity.ID == "" {
				return errors.New("--sub is required")
			}

			token, exp, err := utils.NewJWTService(cfg.JWTSecret).GenerateAccessToken(identity, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", time.Unix(exp, 0).UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&identity.ID, "sub", "", "identity id (token subject)")
	cmd.Flags().StringVar(&identity.FirstName, "first-name", "", "first name, used for the default organization name")
	cmd.Flags().StringVar(&identity.Email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
