package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/sonikswap/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file from the bundled template when missing, then initializes the database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); os.IsNotExist(err) {
			r.logger.Info("config file not found, creating from template", "path", r.configPath)
			if err := shared.CreateConfigFile(r.configPath); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}
			config, err := shared.LoadConfig(r.configPath)
			if err != nil {
				return fmt.Errorf("failed to load created config: %w", err)
			}
			r.config = config
			r.writePlain("✓ Config created: %s\n", r.configPath)
		}
	}

	r.logger.Info("initializing database", "path", r.cfg().Database.Path)
	if err := r.store(); err != nil {
		return err
	}

	if cmd.Bool("rollback") {
		migration, err := shared.RollbackMigration(r.db)
		if err != nil {
			return err
		}
		r.logger.Warn("migration rolled back", "version", migration.Version, "name", migration.Name)
		r.writePlain("✓ Rolled back migration %04d_%s\n", migration.Version, migration.Name)
		return nil
	}

	versions, err := shared.AppliedVersions(r.db)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	r.writePlain("✓ Database ready: %s\n", r.cfg().Database.Path)
	r.writePlain("  Migrations applied: %d\n", len(versions))
	r.logger.Infof("setup complete for database: %v", r.cfg().Database.Path)
	return nil
}
