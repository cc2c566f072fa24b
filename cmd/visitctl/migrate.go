package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bizmatters/field-sales/visit-guard/internal/config"
	"github.com/bizmatters/field-sales/visit-guard/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrateRun(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.StorageDriverPostgres {
		return fmt.Errorf("migrations only apply to storage.driver postgres")
	}

	pool, err := store.Connect(ctx, cfg.Database.URL, cfg.Database.ConnectAttempts, cfg.Database.ConnectWait)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := store.NewPostgres(pool).Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		info("Database is up to date")
		return nil
	}
	for _, name := range applied {
		success("Applied %s", cyan(name))
	}
	return nil
}
