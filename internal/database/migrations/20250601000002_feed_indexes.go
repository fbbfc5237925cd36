package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"eventsnow/internal/models"
)

type index struct {
	model   interface{}
	name    string
	columns []string
}

var feedIndexes = []index{
	{(*models.Event)(nil), "idx_events_status", []string{"status"}},
	{(*models.Event)(nil), "idx_events_organizer", []string{"organizer_id", "created_at"}},
	{(*models.EventPhoto)(nil), "idx_event_photos_event", []string{"event_id", "position"}},
	{(*models.PromoOrder)(nil), "idx_promo_orders_event", []string{"event_id"}},
	{(*models.PromoOrder)(nil), "idx_promo_orders_status", []string{"status", "created_at"}},
	{(*models.PromoOrder)(nil), "idx_promo_orders_external", []string{"external_id"}},
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		for _, idx := range feedIndexes {
			if _, err := db.NewCreateIndex().
				Model(idx.model).
				Index(idx.name).
				Column(idx.columns...).
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("create index %s: %w", idx.name, err)
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		for _, idx := range feedIndexes {
			if _, err := db.NewDropIndex().
				Index(idx.name).
				IfExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("drop index %s: %w", idx.name, err)
			}
		}
		return nil
	})
}
