package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"eventsnow/internal/logger"
)

// Migrations holds every versioned schema change. Files in this package register
// themselves from init, named <timestamp>_<comment>.go.
var Migrations = migrate.NewMigrations()

// Runner applies and rolls back the registered migrations.
type Runner struct {
	migrator *migrate.Migrator
	log      *logger.Logger
}

func NewRunner(db *bun.DB, log *logger.Logger) *Runner {
	return &Runner{
		migrator: migrate.NewMigrator(db, Migrations),
		log:      log,
	}
}

// Initialize creates the bun_migrations bookkeeping tables.
func (r *Runner) Initialize(ctx context.Context) error {
	if err := r.migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migration tables: %w", err)
	}
	return nil
}

// RunMigrations applies all pending migrations as one group.
func (r *Runner) RunMigrations(ctx context.Context) error {
	if err := r.migrator.Lock(ctx); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer r.migrator.Unlock(ctx) //nolint:errcheck

	group, err := r.migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if group.IsZero() {
		r.log.LogDatabase("MIGRATE", "schema", "no new migrations")
		return nil
	}
	r.log.LogDatabase("MIGRATE", "schema", fmt.Sprintf("applied %s", group))
	return nil
}

// Rollback reverts the last applied migration group.
func (r *Runner) Rollback(ctx context.Context) error {
	if err := r.migrator.Lock(ctx); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer r.migrator.Unlock(ctx) //nolint:errcheck

	group, err := r.migrator.Rollback(ctx)
	if err != nil {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	if group.IsZero() {
		r.log.LogDatabase("ROLLBACK", "schema", "nothing to roll back")
		return nil
	}
	r.log.LogDatabase("ROLLBACK", "schema", fmt.Sprintf("rolled back %s", group))
	return nil
}

// Status returns the number of applied and pending migrations.
func (r *Runner) Status(ctx context.Context) (applied, pending int, err error) {
	ms, err := r.migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("migration status: %w", err)
	}
	return len(ms.Applied()), len(ms.Unapplied()), nil
}

// EnsureSchema brings the store up to date. It is safe to call on every start.
func EnsureSchema(ctx context.Context, db *bun.DB, log *logger.Logger) error {
	r := NewRunner(db, log)
	if err := r.Initialize(ctx); err != nil {
		return err
	}
	return r.RunMigrations(ctx)
}
