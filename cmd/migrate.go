package cmd

import (
	"fmt"
	"log/slog"

	"github.com/screenlens/screenlens/db"
	"github.com/screenlens/screenlens/internal/config"
)

// runMigrate applies pending database migrations and exits.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()
	logger.Info("applying database migrations",
		"host", cfg.DBHost, "database", cfg.DBName)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("database migrations applied")
	return nil
}
