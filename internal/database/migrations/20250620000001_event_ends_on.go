package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"eventsnow/internal/models"
)

const endsOnIndex = "idx_events_status_ends_on"

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		// tables created from the current model already carry the column
		if !hasColumn(ctx, db, "events", "ends_on") {
			if _, err := db.NewAddColumn().
				Model((*models.Event)(nil)).
				ColumnExpr("ends_on " + timestampType(db)).
				Exec(ctx); err != nil {
				return fmt.Errorf("add events.ends_on: %w", err)
			}
		}
		if err := backfillEndsOn(ctx, db); err != nil {
			return err
		}
		if _, err := db.NewCreateIndex().
			Model((*models.Event)(nil)).
			Index(endsOnIndex).
			Column("status", "ends_on").
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", endsOnIndex, err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewDropIndex().Index(endsOnIndex).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop index %s: %w", endsOnIndex, err)
		}
		if _, err := db.NewDropColumn().
			Model((*models.Event)(nil)).
			Column("ends_on").
			Exec(ctx); err != nil {
			return fmt.Errorf("drop events.ends_on: %w", err)
		}
		return nil
	})
}

func hasColumn(ctx context.Context, db bun.IDB, table, column string) bool {
	_, err := db.NewRaw("SELECT ? FROM ? WHERE 1 = 0", bun.Ident(column), bun.Ident(table)).Exec(ctx)
	return err == nil
}

func timestampType(db *bun.DB) string {
	if db.Dialect().Name() == dialect.PG {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

// backfillEndsOn → fill ends_on for rows stored before the column existed
func backfillEndsOn(ctx context.Context, db bun.IDB) error {
	var events []models.Event
	if err := db.NewSelect().
		Model(&events).
		Column("id", "event_date", "start_date", "end_date", "sessions_start_date", "sessions_end_date").
		Where("ends_on IS NULL").
		Scan(ctx); err != nil {
		return fmt.Errorf("load events without ends_on: %w", err)
	}
	for i := range events {
		end, ok := events[i].LastDate()
		if !ok {
			continue
		}
		if _, err := db.NewUpdate().
			Model((*models.Event)(nil)).
			Set("ends_on = ?", end).
			Where("id = ?", events[i].ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("set ends_on for event %d: %w", events[i].ID, err)
		}
	}
	return nil
}
