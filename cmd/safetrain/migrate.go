package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"safetrain-backend/pkg/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured SQL database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			store, err := database.Open(cfg.Database(), log.Named("store"))
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			return database.Migrate(cmd.Context(), store, log.Named("migrate"))
		},
	}
}
