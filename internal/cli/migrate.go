package cli

import (
	"fmt"
	"log/slog"

	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/spf13/cobra"
)

func buildMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := store.RunMigrations(cfg.Database.URL); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			slog.Info("database migrations applied")
			return nil
		},
	}
}
