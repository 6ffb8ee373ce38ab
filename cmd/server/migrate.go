package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alem-hub/attendance-tracker/config"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
)

var errMigrateUsage = errors.New("usage: server migrate up|down|status")

// schemaMigrator is the part of postgres.Migrator the migrate command drives.
type schemaMigrator interface {
	Migrate(ctx context.Context) error
	Rollback(ctx context.Context) error
	Status(ctx context.Context) ([]postgres.Migration, error)
}

// migrate handles `server migrate <action>` against the configured database.
func migrate(ctx context.Context, args []string) error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate needs the postgres store, configured store is %q", cfg.Store.Driver)
	}

	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	conn, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	return runMigrate(ctx, postgres.NewMigrator(conn), args, os.Stdout, log)
}

// runMigrate performs the action and then prints the migration status.
func runMigrate(ctx context.Context, m schemaMigrator, args []string, out io.Writer, log *logger.Logger) error {
	if len(args) != 1 {
		return errMigrateUsage
	}

	switch args[0] {
	case "up":
		if err := m.Migrate(ctx); err != nil {
			return err
		}
		log.Info("database migrations applied")
	case "down":
		if err := m.Rollback(ctx); err != nil {
			return err
		}
		log.Info("last database migration rolled back")
	case "status":
	default:
		return errMigrateUsage
	}

	status, err := m.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}
	for _, mig := range status {
		state := "pending"
		if mig.IsApplied {
			state = "applied " + mig.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(out, "%03d_%-28s %s\n", mig.Version, mig.Name, state)
	}
	return nil
}
