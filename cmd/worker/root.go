package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/oroshi/backoffice/internal/config"
	"github.com/oroshi/backoffice/internal/platform/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "worker",
		Short:         "Back-office task worker",
		Long:          "Consumes bulk task chunks for one catalog worker and serves the task ledger API.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newMigrateCmd())

	return root
}

// initializeApp loads configuration and sets up the process-wide logger.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("configuration loaded",
		"worker", cfg.Worker.Name,
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	return cfg, log, nil
}
