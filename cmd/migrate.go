package cmd

import (
	"fmt"

	"github.com/strandhq/strand/internal/config"
	"github.com/strandhq/strand/internal/database"
)

// runMigrate applies pending schema migrations and exits.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := initLogger(cfg)

	if err := database.Migrate(cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	logger.Info("migrations applied", "database", cfg.Postgres.DBName)
	return nil
}
