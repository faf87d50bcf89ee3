package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"safetrain-backend/pkg/config"
	"safetrain-backend/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "safetrain",
		Short:         "SafeTrain team training backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newPlansCmd(),
		newCoursesCmd(),
		newTokenCmd(),
	)
	return cmd
}

// loadConfig 加载并验证配置，同时构建日志
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := logger.New(logger.Options{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		return nil, nil, err
	}
	for _, warning := range cfg.Warnings() {
		log.Warn(warning)
	}
	return cfg, log, nil
}
