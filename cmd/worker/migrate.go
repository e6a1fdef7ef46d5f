package main

import (
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/oroshi/backoffice/migrations"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := initializeApp()
			if err != nil {
				return err
			}

			db, err := openDatabase(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			goose.SetBaseFS(migrations.FS)
			if err := goose.SetDialect("postgres"); err != nil {
				return fmt.Errorf("failed to set migration dialect: %w", err)
			}

			if err := goose.UpContext(cmd.Context(), db, "."); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			log.Info("migrations completed")
			return nil
		},
	}
}
